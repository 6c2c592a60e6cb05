package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tandem-api/internal/audit"
	"tandem-api/internal/auth"
	"tandem-api/internal/config"
	"tandem-api/internal/database"
	"tandem-api/internal/http/handler"
	"tandem-api/internal/http/middleware"
	"tandem-api/internal/integrations/webhook"
	"tandem-api/internal/observability/logger"
	"tandem-api/internal/ratelimit"
	"tandem-api/internal/realtime"
	"tandem-api/internal/repo"
	"tandem-api/internal/service"
	"tandem-api/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Tandem API HTTP server with all middlewares and observability`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.OTELServiceName, "info")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info(context.Background(), "starting tandem api",
		zap.String("version", "1.0.0"),
		zap.String("service", cfg.OTELServiceName),
	)

	// Run database migrations
	log.Info(ctx, "running database migrations")
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info(ctx, "migrations completed successfully")

	// Initialize telemetry strictly as opt-in
	var tracerProvider *sdktrace.TracerProvider
	var meterProvider *sdkmetric.MeterProvider
	var metrics *telemetry.Metrics

	if cfg.TelemetryEnabled() {
		log.Info(ctx, "initializing telemetry", zap.String("endpoint", cfg.OTELExporterEndpoint))

		tp, err := telemetry.InitTracer(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint, cfg.OTELSamplingRatio)
		if err != nil {
			log.Warn(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			tracerProvider = tp
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
					log.Error(shutdownCtx, "failed to shutdown tracer provider", zap.Error(err))
				}
			}()
		}

		mp, m, err := telemetry.InitMetrics(ctx, cfg.OTELServiceName, cfg.OTELExporterEndpoint)
		if err != nil {
			log.Warn(ctx, "failed to initialize metrics, continuing without metrics", zap.Error(err))
		} else {
			meterProvider = mp
			metrics = m
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := meterProvider.Shutdown(shutdownCtx); err != nil {
					log.Error(shutdownCtx, "failed to shutdown meter provider", zap.Error(err))
				}
			}()
		}

		log.Info(ctx, "telemetry initialized", zap.Bool("tracing", tracerProvider != nil), zap.Bool("metrics", metrics != nil))
	} else {
		log.Info(ctx, "telemetry disabled (opt-in only or missing endpoint)")
	}

	// Connect to database
	log.Info(ctx, "connecting to database")
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info(ctx, "database connected")

	// Connect to Redis
	log.Info(ctx, "connecting to redis")
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info(ctx, "redis connected")

	// Initialize JWT key store and resolver
	log.Info(ctx, "initializing JWT authentication")
	keyStore := auth.NewKeyStore()

	// JWT_HS256_SECRET must be Base64-encoded
	secretBytes, err := base64.StdEncoding.DecodeString(cfg.JWTHS256Secret)
	if err != nil {
		return fmt.Errorf("JWT_HS256_SECRET must be valid Base64-encoded: %w", err)
	}
	if len(secretBytes) < 32 {
		return fmt.Errorf("JWT_HS256_SECRET decoded bytes must be at least 32 bytes (256 bits), got %d bytes", len(secretBytes))
	}

	allowedIssuers := cfg.GetAllowedIssuers()
	if len(allowedIssuers) == 0 {
		return fmt.Errorf("JWT_ALLOWED_ISSUERS must contain at least one valid issuer")
	}

	// Load HS256 key for all allowed issuers (same secret for all)
	for _, issuer := range allowedIssuers {
		keyStore.LoadHS256Key(issuer, "v1", secretBytes)
	}

	// Load RS256 key for the automation issuer (if configured)
	const automationIssuer = "tandem-automation"
	if cfg.JWTRS256PublicKey != "" {
		if err := keyStore.LoadRS256Key(automationIssuer, "v1", cfg.JWTRS256PublicKey); err != nil {
			return fmt.Errorf("failed to load automation public key: %w", err)
		}
	}

	clockSkew := time.Duration(cfg.JWTClockSkewSeconds) * time.Second
	resolver := auth.NewKeyResolver(allowedIssuers, []string{cfg.JWTAudience})

	for _, issuer := range allowedIssuers {
		hs256Validator := auth.NewHS256Validator(keyStore, issuer, clockSkew)
		resolver.RegisterValidator(issuer, hs256Validator)
	}

	if cfg.JWTRS256PublicKey != "" {
		rs256Validator := auth.NewRS256Validator(keyStore, automationIssuer, clockSkew)
		resolver.RegisterValidator(automationIssuer, rs256Validator)
		hasRS256Issuer := false
		for _, issuer := range allowedIssuers {
			if issuer == automationIssuer {
				hasRS256Issuer = true
				break
			}
		}
		if !hasRS256Issuer {
			allowedIssuers = append(allowedIssuers, automationIssuer)
		}
	}

	log.Info(ctx, "JWT authentication initialized",
		zap.Strings("allowed_issuers", allowedIssuers),
		zap.Int("clock_skew_seconds", cfg.JWTClockSkewSeconds),
	)

	// Initialize S2S token store
	s2sStore := auth.NewS2STokenStore()
	if cfg.S2STokenWeb != "" {
		s2sStore.RegisterToken(cfg.S2STokenWeb, "web")
		log.Info(ctx, "S2S token registered", zap.String("client", "web"))
	}
	if cfg.S2STokenAutomation != "" {
		s2sStore.RegisterToken(cfg.S2STokenAutomation, "automation")
		log.Info(ctx, "S2S token registered", zap.String("client", "automation"))
	}

	// Initialize repositories
	idempotencyRepo := repo.NewIdempotencyRepo(pool)
	workspaceRepo := repo.NewWorkspaceRepository(pool)
	auditRepo := repo.NewAuditRepo(pool)
	taskRepo := repo.NewTaskRepository(pool)
	commentRepo := repo.NewCommentRepository(pool)

	// Audit pipeline: async fan-out to the pg recorder, the structured log
	// mirror, and (optionally) an external webhook sink.
	recorders := []audit.Recorder{auditRepo, audit.NewLogRecorder(log)}
	if cfg.AuditWebhookURL != "" {
		recorders = append(recorders, webhook.NewRecorder(cfg.AuditWebhookURL, cfg.AuditWebhookSecret))
		log.Info(ctx, "audit webhook sink enabled")
	}
	auditPublisher := audit.NewPublisher(log, recorders...)
	defer auditPublisher.Close()

	// Realtime hub with the redis backplane
	backplane := realtime.NewRedisBackplane(redisClient, cfg.RealtimeChannel, log)
	hub := realtime.NewHub(log, backplane)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start realtime hub: %w", err)
	}

	// Initialize services
	taskService := service.NewTaskService(taskRepo, workspaceRepo, auditPublisher, hub, log)
	commentService := service.NewCommentService(commentRepo, taskRepo, workspaceRepo, auditPublisher, hub, log)
	memberService := service.NewMemberService(workspaceRepo, auditPublisher, hub, log)
	auditService := service.NewAuditService(auditRepo, workspaceRepo, log)

	// Initialize handlers
	taskHandler := handler.NewTaskHandler(taskService)
	commentHandler := handler.NewCommentHandler(commentService)
	memberHandler := handler.NewMemberHandler(memberService)
	auditHandler := handler.NewAuditHandler(auditService)
	realtimeHandler := handler.NewRealtimeHandler(hub, resolver, workspaceRepo, cfg.GetWSOrigins(), log)
	debugHandler := handler.NewDebugHandler(pool)

	// Authorization gate shared by all workspace routes
	gate := middleware.NewGate(workspaceRepo, auditPublisher, log)

	// Initialize rate limiter
	var rateLimitCounter metric.Int64Counter
	if metrics != nil {
		rateLimitCounter = metrics.RateLimitRejections
	}
	rateLimiter := ratelimit.NewRedisRateLimiter(redisClient, rateLimitCounter)

	// Build router
	r := buildRouter(RouterDeps{
		Cfg:             cfg,
		Log:             log,
		Resolver:        resolver,
		S2SStore:        s2sStore,
		IdempotencyRepo: idempotencyRepo,
		RateLimiter:     rateLimiter,
		Metrics:         metrics,
		Pool:            pool,
		Gate:            gate,
		TaskHandler:     taskHandler,
		CommentHandler:  commentHandler,
		MemberHandler:   memberHandler,
		AuditHandler:    auditHandler,
		RealtimeHandler: realtimeHandler,
		DebugHandler:    debugHandler,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info(ctx, "starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info(ctx, "shutdown signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	// Stop accepting HTTP first, then drain websocket clients, then flush
	// the audit pipeline (deferred Close) before the pools go away.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", zap.Error(err))
	}

	hub.Shutdown()
	if err := backplane.Close(); err != nil {
		log.Error(shutdownCtx, "backplane close error", zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete")
	return nil
}
