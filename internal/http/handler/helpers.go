package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/service"

	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// handleServiceError maps service sentinel errors to the HTTP error
// envelope. A version conflict is a 409 carrying the refetch-and-retry
// hint; it is never treated as a validation failure.
func handleServiceError(w http.ResponseWriter, ctx context.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		log.Warn(ctx, "actor is not a member of this workspace", zap.Error(err))
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "insufficient permissions for this workspace")
	case errors.Is(err, service.ErrUnauthorized):
		log.Warn(ctx, "unauthorized action", zap.Error(err))
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "insufficient permissions for this action")
	case errors.Is(err, service.ErrNotCommentAuthor):
		log.Warn(ctx, "comment edit by non-author", zap.Error(err))
		httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "only the comment author may edit it")
	case errors.Is(err, service.ErrVersionConflict):
		log.Info(ctx, "version conflict", zap.Error(err))
		httperr.Conflict409(w, ctx, "the resource was modified by another request; refetch and retry with the current version")
	case errors.Is(err, service.ErrTaskNotFound):
		httperr.NotFound404(w, ctx, "task not found")
	case errors.Is(err, service.ErrCommentNotFound):
		httperr.NotFound404(w, ctx, "comment not found")
	case errors.Is(err, service.ErrProjectNotFound):
		httperr.NotFound404(w, ctx, "project not found")
	case errors.Is(err, service.ErrMemberExists):
		httperr.Conflict409(w, ctx, "actor is already a member of this workspace")
	case errors.Is(err, service.ErrLastAdmin):
		httperr.Conflict409(w, ctx, "a workspace must keep at least one admin")
	default:
		log.Error(ctx, "unhandled service error", zap.Error(err))
		httperr.InternalError500(w, ctx, "an internal error occurred")
	}
}
