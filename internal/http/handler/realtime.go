package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tandem-api/internal/auth"
	"tandem-api/internal/domain"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/realtime"
	"tandem-api/internal/repo"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// membershipChecker backs room-join authorization with the same fresh
// lookups the HTTP gate uses. Satisfied by repo.WorkspaceRepository.
type membershipChecker interface {
	GetMemberRole(ctx context.Context, actorID, workspaceID string) (domain.Role, error)
	GetProject(ctx context.Context, workspaceID, projectID string) (*domain.Project, error)
}

// RealtimeHandler upgrades GET /v1/realtime to a websocket and hands the
// connection to the hub.
type RealtimeHandler struct {
	hub        *realtime.Hub
	resolver   *auth.KeyResolver
	membership membershipChecker
	origins    []string
	log        *logger.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, resolver *auth.KeyResolver, membership membershipChecker, origins []string, log *logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:        hub,
		resolver:   resolver,
		membership: membership,
		origins:    origins,
		log:        log,
	}
}

// ServeHTTP authenticates the upgrade request with the same JWT validation
// as the REST API, accepts the websocket, and runs the client pumps until
// the connection closes. Browsers cannot set headers on websocket
// requests, so the token may also arrive as a query parameter.
func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		h.log.Warn(ctx, "realtime token rejected",
			logger.Module("realtime"), logger.Action("accept"), zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Admission requires current workspace membership, not just a valid
	// token: a revoked member with an unexpired JWT is turned away here.
	if _, err := h.membership.GetMemberRole(ctx, claims.ActorID, claims.WorkspaceID); err != nil {
		if errors.Is(err, repo.ErrMemberNotFound) {
			http.Error(w, "not a workspace member", http.StatusForbidden)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn(ctx, "websocket accept failed",
			logger.Module("realtime"), logger.Action("accept"), zap.Error(err))
		return
	}

	client := realtime.NewClient(h.hub, conn, &joinAuthorizer{membership: h.membership}, claims.ActorID, claims.WorkspaceID)
	h.hub.Register(client)

	h.log.Info(ctx, "realtime connection established",
		logger.Module("realtime"), logger.Action("accept"),
		zap.String("actor_id", claims.ActorID),
		zap.String("workspace_id", claims.WorkspaceID),
	)

	go client.WritePump(context.Background())
	client.ReadPump(context.Background())
}

// bearerToken pulls the JWT from the Authorization header or, failing
// that, the token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// joinAuthorizer checks room subscriptions against the membership tables.
type joinAuthorizer struct {
	membership membershipChecker
}

// AuthorizeJoin allows workspace:{id} only for the token's own workspace,
// and project:{id} only when the project belongs to that workspace. Both
// checks hit the database on every join; membership revoked after connect
// still blocks new rooms.
func (a *joinAuthorizer) AuthorizeJoin(ctx context.Context, actorID, workspaceID, room string) error {
	kind, id, err := realtime.ParseRoom(room)
	if err != nil {
		return err
	}

	if _, err := a.membership.GetMemberRole(ctx, actorID, workspaceID); err != nil {
		return fmt.Errorf("membership check: %w", err)
	}

	switch kind {
	case realtime.RoomKindWorkspace:
		if id != workspaceID {
			return fmt.Errorf("room %s is outside the authenticated workspace", room)
		}
	case realtime.RoomKindProject:
		if _, err := a.membership.GetProject(ctx, workspaceID, id); err != nil {
			return fmt.Errorf("project lookup: %w", err)
		}
	}
	return nil
}
