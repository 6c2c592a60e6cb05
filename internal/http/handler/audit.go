package handler

import (
	"net/http"
	"strconv"
	"time"

	"tandem-api/internal/auth"
	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/service"

	"github.com/go-chi/chi/v5"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// ListAuditLog handles GET /v1/workspaces/{workspaceId}/audit. Admin only;
// entries are returned newest first with timestamp cursor pagination.
func (h *AuditHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 200 {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidLimit, "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	var cursor *time.Time
	if cursorStr := r.URL.Query().Get("cursor"); cursorStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, cursorStr)
		if err != nil {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "cursor must be an RFC3339 timestamp")
			return
		}
		cursor = &parsed
	}

	response, err := h.service.ListAuditLog(ctx, workspaceID, claims.ActorID, limit, cursor)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}
