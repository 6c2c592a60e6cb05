// Package service holds the business rules between the HTTP handlers and
// the repositories: per-request role resolution, capability checks, the
// optimistic-concurrency protocol, audit emission and realtime fan-out.
package service

import (
	"context"
	"errors"
	"fmt"

	"tandem-api/internal/audit"
	"tandem-api/internal/authz"
	"tandem-api/internal/domain"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/repo"

	"go.uber.org/zap"
)

// roleStore resolves the actor's role in a workspace. Satisfied by
// repo.WorkspaceRepository.
type roleStore interface {
	GetMemberRole(ctx context.Context, actorID, workspaceID string) (domain.Role, error)
}

// broadcaster pushes events to realtime room subscribers. Satisfied by
// realtime.Hub; delivery is best effort and never fails the write.
type broadcaster interface {
	Broadcast(ctx context.Context, room string, eventType string, data interface{})
}

// publisher hands audit events to the async pipeline. Satisfied by
// audit.Publisher.
type publisher interface {
	Publish(event audit.Event)
}

// resolveRole fetches the actor's role fresh from the membership table.
// Roles are never cached: a revoked membership takes effect on the next
// request.
func resolveRole(ctx context.Context, log *logger.Logger, members roleStore, module, actorID, workspaceID string) (domain.Role, authz.Ability, error) {
	role, err := members.GetMemberRole(ctx, actorID, workspaceID)
	if err != nil {
		if errors.Is(err, repo.ErrMemberNotFound) {
			return "", authz.Ability{}, ErrMemberNotFound
		}
		log.Error(ctx, "failed to get member role",
			logger.Module(module),
			logger.Action("authorization"),
			zap.String("actor_id", actorID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err),
		)
		return "", authz.Ability{}, fmt.Errorf("get member role: %w", err)
	}
	return role, authz.Resolve(role), nil
}
