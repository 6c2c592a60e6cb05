package service

import (
	"context"
	"fmt"
	"time"

	"tandem-api/internal/authz"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/repo"
)

// auditStore reads the append-only audit log. Satisfied by repo.AuditRepo.
type auditStore interface {
	List(ctx context.Context, workspaceID string, limit int, cursor *time.Time) ([]repo.AuditEntry, error)
}

type AuditService struct {
	entries auditStore
	members roleStore
	log     *logger.Logger
}

func NewAuditService(entries auditStore, members roleStore, log *logger.Logger) *AuditService {
	return &AuditService{
		entries: entries,
		members: members,
		log:     log,
	}
}

// AuditLogResponse is the audit listing payload, newest entries first.
type AuditLogResponse struct {
	Data []repo.AuditEntry `json:"data"`
	Meta struct {
		HasNextPage bool    `json:"hasNextPage"`
		NextCursor  *string `json:"nextCursor,omitempty"`
	} `json:"meta"`
}

const (
	auditDefaultLimit = 50
	auditMaxLimit     = 200
)

// ListAuditLog returns audit entries for the workspace. Reading the log is
// an admin capability; managers are explicitly denied.
func (s *AuditService) ListAuditLog(ctx context.Context, workspaceID, actorID string, limit int, cursor *time.Time) (*AuditLogResponse, error) {
	_, ability, err := resolveRole(ctx, s.log, s.members, "audit", actorID, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ability.Can(authz.ActionRead, authz.ResourceAudit) {
		return nil, ErrUnauthorized
	}

	if limit <= 0 {
		limit = auditDefaultLimit
	}
	if limit > auditMaxLimit {
		limit = auditMaxLimit
	}

	// Fetch one extra row to detect a next page.
	entries, err := s.entries.List(ctx, workspaceID, limit+1, cursor)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}

	response := &AuditLogResponse{}
	if len(entries) > limit {
		entries = entries[:limit]
		next := entries[len(entries)-1].OccurredAt.UTC().Format(time.RFC3339Nano)
		response.Meta.HasNextPage = true
		response.Meta.NextCursor = &next
	}
	response.Data = entries

	return response, nil
}
