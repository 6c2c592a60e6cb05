package handler

import (
	"encoding/json"
	"net/http"

	"tandem-api/internal/auth"
	"tandem-api/internal/domain"
	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type MemberHandler struct {
	service *service.MemberService
}

func NewMemberHandler(service *service.MemberService) *MemberHandler {
	return &MemberHandler{service: service}
}

// ListMembers handles GET /v1/workspaces/{workspaceId}/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	response, err := h.service.ListMembers(ctx, workspaceID, claims.ActorID)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// InviteMember handles POST /v1/workspaces/{workspaceId}/members
func (h *MemberHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.InviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	member, err := h.service.InviteMember(ctx, workspaceID, claims.ActorID, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "member invited",
		zap.String("workspace_id", workspaceID),
		zap.String("member_id", member.ActorID),
		zap.String("role", string(member.Role)),
	)
	writeJSON(w, http.StatusCreated, member)
}

// UpdateMemberRole handles PATCH /v1/workspaces/{workspaceId}/members/{memberId}
func (h *MemberHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	memberID := chi.URLParam(r, "memberId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	var req domain.UpdateMemberRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return
	}

	if err := h.service.UpdateMemberRole(ctx, workspaceID, memberID, claims.ActorID, &req); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /v1/workspaces/{workspaceId}/members/{memberId}
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	workspaceID := chi.URLParam(r, "workspaceId")
	memberID := chi.URLParam(r, "memberId")
	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication claims not found")
		return
	}

	if err := h.service.RemoveMember(ctx, workspaceID, memberID, claims.ActorID); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
