package middleware

import (
	"context"
	"errors"
	"net/http"

	"tandem-api/internal/audit"
	"tandem-api/internal/auth"
	"tandem-api/internal/authz"
	"tandem-api/internal/domain"
	"tandem-api/internal/http/httperr"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/repo"

	"go.uber.org/zap"
)

// RoleResolver resolves the actor's role in a workspace. Satisfied by
// repo.WorkspaceRepository.
type RoleResolver interface {
	GetMemberRole(ctx context.Context, actorID, workspaceID string) (domain.Role, error)
}

// AuditPublisher hands denial events to the async audit pipeline.
type AuditPublisher interface {
	Publish(event audit.Event)
}

// Gate is the authorization middleware factory. Every mutating or reading
// route declares the (action, resource) pair it needs; requests whose role
// lacks the capability get a 403 and exactly one denied audit event.
type Gate struct {
	roles  RoleResolver
	audits AuditPublisher
	log    *logger.Logger
}

func NewGate(roles RoleResolver, audits AuditPublisher, log *logger.Logger) *Gate {
	return &Gate{roles: roles, audits: audits, log: log}
}

// Require returns a middleware enforcing the declared capability. The role
// is fetched fresh from the membership table on every request; there is no
// role cache to invalidate when a membership changes.
func (g *Gate) Require(action authz.Action, resource authz.Resource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			claims, ok := auth.GetClaims(ctx)
			if !ok {
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication required")
				return
			}

			workspaceID, ok := GetWorkspaceID(ctx)
			if !ok {
				httperr.InternalError(w, ctx)
				return
			}

			role, err := g.roles.GetMemberRole(ctx, claims.ActorID, workspaceID)
			if err != nil {
				if errors.Is(err, repo.ErrMemberNotFound) {
					g.deny(ctx, w, claims.ActorID, workspaceID, action, resource, "not_a_member")
					return
				}
				g.log.Error(ctx, "role lookup failed",
					logger.Module("authz"),
					logger.Action("gate"),
					zap.String("actor_id", claims.ActorID),
					zap.String("workspace_id", workspaceID),
					zap.Error(err),
				)
				httperr.InternalError(w, ctx)
				return
			}

			if !authz.Resolve(role).Can(action, resource) {
				g.deny(ctx, w, claims.ActorID, workspaceID, action, resource, "capability_denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DenyByDefault is the terminal handler for any route under an
// authenticated workspace subtree that never declared a capability.
// Undeclared means denied, never silently allowed.
func (g *Gate) DenyByDefault() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		actorID := ""
		if claims, ok := auth.GetClaims(ctx); ok {
			actorID = claims.ActorID
		}
		workspaceID, _ := GetWorkspaceID(ctx)

		g.deny(ctx, w, actorID, workspaceID, "", "", "undeclared_route")
	}
}

// deny writes the 403 and publishes the single denied audit event carrying
// the caller's IP and user agent.
func (g *Gate) deny(ctx context.Context, w http.ResponseWriter, actorID, workspaceID string, action authz.Action, resource authz.Resource, reason string) {
	meta := audit.MetaFromContext(ctx)

	event := audit.Event{
		WorkspaceID:  workspaceID,
		Action:       "authz." + reason,
		ResourceType: string(resource),
		Outcome:      audit.OutcomeDenied,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}
	if actorID != "" {
		event.ActorID = &actorID
	}
	if action != "" {
		event.Changes = map[string]interface{}{
			"action":   action,
			"resource": resource,
		}
	}
	g.audits.Publish(event)

	g.log.Warn(ctx, "authorization denied",
		logger.Module("authz"),
		logger.Action("gate"),
		zap.String("actor_id", actorID),
		zap.String("workspace_id", workspaceID),
		zap.String("denied_action", string(action)),
		zap.String("denied_resource", string(resource)),
		zap.String("reason", reason),
	)

	httperr.Forbidden403(w, ctx, httperr.ErrCodeForbidden, "you do not have permission to perform this action")
}
