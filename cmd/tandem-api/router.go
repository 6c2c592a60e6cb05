package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"tandem-api/internal/auth"
	"tandem-api/internal/authz"
	"tandem-api/internal/config"
	"tandem-api/internal/http/docs"
	"tandem-api/internal/http/handler"
	"tandem-api/internal/http/middleware"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/ratelimit"
	"tandem-api/internal/repo"
	"tandem-api/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps carries everything buildRouter needs to assemble the HTTP surface.
type RouterDeps struct {
	Cfg             *config.Config
	Log             *logger.Logger
	Resolver        *auth.KeyResolver
	S2SStore        *auth.S2STokenStore
	IdempotencyRepo *repo.IdempotencyRepo
	RateLimiter     *ratelimit.RedisRateLimiter
	Metrics         *telemetry.Metrics
	Pool            *pgxpool.Pool // health checks and debug handler
	Gate            *middleware.Gate

	// Handlers
	TaskHandler     *handler.TaskHandler
	CommentHandler  *handler.CommentHandler
	MemberHandler   *handler.MemberHandler
	AuditHandler    *handler.AuditHandler
	RealtimeHandler *handler.RealtimeHandler
	DebugHandler    *handler.DebugHandler
}

// buildRouter assembles the chi router. Every workspace route declares the
// capability it requires through the gate; a subtree-level fallback denies
// anything that slips through without a declaration.
func buildRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(deps.Log))
	r.Use(middleware.RecoveryMiddleware(deps.Log))
	r.Use(middleware.RequestMetaMiddleware)
	r.Use(telemetry.OTelMiddleware(deps.Cfg.OTELServiceName))
	if deps.Metrics != nil {
		r.Use(telemetry.MetricsMiddleware(deps.Metrics))
	}

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/openapi.yaml", docs.OpenAPIHandler().ServeHTTP)
	r.Get("/docs", docs.ScalarDocsHandler("/openapi.yaml").ServeHTTP)

	r.Get("/metrics", metricsHandler(deps.Cfg.MetricsToken))

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Pool == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready","note":"pool is nil"}`))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := deps.Pool.Ping(ctx); err != nil {
			deps.Log.Error(ctx, "readiness check failed: database unavailable", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"error","message":"database unavailable"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Realtime upgrade endpoint. Token validation and workspace admission
	// happen inside the handler; room joins are authorized per join request.
	if deps.RealtimeHandler != nil {
		r.Get("/v1/realtime", deps.RealtimeHandler.ServeHTTP)
	}

	// Debug routes (dev-only)
	if deps.Cfg.AppEnv == "dev" || deps.Cfg.AppEnv == "development" {
		r.Route("/debug", func(r chi.Router) {
			if deps.DebugHandler != nil {
				r.With(auth.AuthMiddleware(deps.Resolver, deps.S2SStore)).Get("/auth", deps.DebugHandler.GetAuthDebug)
				r.With(auth.AuthMiddleware(deps.Resolver, deps.S2SStore)).Get("/auth/workspaces/{workspaceId}", deps.DebugHandler.GetAuthDebugWithWorkspace)
				r.Get("/db/ping", deps.DebugHandler.PingDB)
			}
		})
	}

	// Protected routes with workspace isolation. Order matters: claims,
	// workspace match, rate limit, then the per-route capability gate.
	r.Route("/v1/workspaces/{workspaceId}", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.Resolver, deps.S2SStore))
		r.Use(middleware.WorkspaceMiddleware)
		r.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Cfg.RateLimitPerWorkspacePerMin))

		gate := deps.Gate
		idem := middleware.IdempotencyMiddleware(deps.IdempotencyRepo)

		// Tasks
		if deps.TaskHandler != nil {
			r.Route("/tasks", func(r chi.Router) {
				r.With(gate.Require(authz.ActionRead, authz.ResourceTask)).Get("/", deps.TaskHandler.ListTasks)
				r.With(gate.Require(authz.ActionCreate, authz.ResourceTask), idem).Post("/", deps.TaskHandler.CreateTask)
				r.Route("/{taskId}", func(r chi.Router) {
					r.With(gate.Require(authz.ActionRead, authz.ResourceTask)).Get("/", deps.TaskHandler.GetTask)
					r.With(gate.Require(authz.ActionUpdate, authz.ResourceTask), idem).Patch("/", deps.TaskHandler.UpdateTask)
					r.With(gate.Require(authz.ActionUpdate, authz.ResourceTask), idem).Post("/move", deps.TaskHandler.MoveTask)
					r.With(gate.Require(authz.ActionDelete, authz.ResourceTask)).Delete("/", deps.TaskHandler.DeleteTask)

					// Comments
					if deps.CommentHandler != nil {
						r.Route("/comments", func(r chi.Router) {
							r.With(gate.Require(authz.ActionRead, authz.ResourceComment)).Get("/", deps.CommentHandler.ListComments)
							r.With(gate.Require(authz.ActionCreate, authz.ResourceComment), idem).Post("/", deps.CommentHandler.CreateComment)
							r.Route("/{commentId}", func(r chi.Router) {
								r.With(gate.Require(authz.ActionUpdate, authz.ResourceComment), idem).Patch("/", deps.CommentHandler.UpdateComment)
								r.With(gate.Require(authz.ActionDelete, authz.ResourceComment)).Delete("/", deps.CommentHandler.DeleteComment)
							})
						})
					}
				})
			})
		}

		// Members
		if deps.MemberHandler != nil {
			r.Route("/members", func(r chi.Router) {
				r.With(gate.Require(authz.ActionRead, authz.ResourceMember)).Get("/", deps.MemberHandler.ListMembers)
				r.With(gate.Require(authz.ActionCreate, authz.ResourceMember), idem).Post("/", deps.MemberHandler.InviteMember)
				r.Route("/{memberId}", func(r chi.Router) {
					r.With(gate.Require(authz.ActionUpdate, authz.ResourceMember), idem).Patch("/", deps.MemberHandler.UpdateMemberRole)
					r.With(gate.Require(authz.ActionDelete, authz.ResourceMember)).Delete("/", deps.MemberHandler.RemoveMember)
				})
			})
		}

		// Audit log
		if deps.AuditHandler != nil {
			r.With(gate.Require(authz.ActionRead, authz.ResourceAudit)).Get("/audit", deps.AuditHandler.ListAuditLog)
		}

		// Anything else under an authenticated workspace is denied, audited,
		// and never silently routed.
		r.NotFound(gate.DenyByDefault())
	})

	return r
}

// metricsHandler exposes the Prometheus scrape endpoint. When a token is
// configured, the scraper must present it via X-Metrics-Token or a bearer
// Authorization header.
func metricsHandler(token string) http.HandlerFunc {
	prom := promhttp.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			presented := r.Header.Get("X-Metrics-Token")
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"ok":false,"error":{"code":"UNAUTHORIZED","message":"unauthorized"}}`))
				return
			}
		}
		prom.ServeHTTP(w, r)
	}
}
