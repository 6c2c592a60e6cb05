package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tandem-api/internal/auth"
	"tandem-api/internal/domain"
	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/service"

	"github.com/go-chi/chi/v5"
)

type CommentHandler struct {
	service *service.CommentService
}

func NewCommentHandler(service *service.CommentService) *CommentHandler {
	return &CommentHandler{service: service}
}

// ListComments handles GET /v1/workspaces/{workspaceId}/tasks/{taskId}/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	params := domain.ListCommentsParams{}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		params.Cursor = &cursor
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidLimit, "limit must be between 1 and 100")
			return
		}
		params.Limit = limit
	}

	response, err := h.service.ListComments(ctx, workspaceID, taskID, claims.ActorID, params)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// CreateComment handles POST /v1/workspaces/{workspaceId}/tasks/{taskId}/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	comment, err := h.service.CreateComment(ctx, workspaceID, taskID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

// UpdateComment handles PATCH /v1/workspaces/{workspaceId}/tasks/{taskId}/comments/{commentId}.
// Author-only; the body must carry expectedVersion.
func (h *CommentHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	commentID := chi.URLParam(r, "commentId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.UpdateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	comment, err := h.service.UpdateComment(ctx, workspaceID, taskID, commentID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, comment)
}

// DeleteComment handles DELETE /v1/workspaces/{workspaceId}/tasks/{taskId}/comments/{commentId}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	taskID := chi.URLParam(r, "taskId")
	commentID := chi.URLParam(r, "commentId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	if err := h.service.DeleteComment(ctx, workspaceID, taskID, commentID, claims.ActorID); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
