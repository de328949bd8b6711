package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/actions"
	"github.com/trackwise/assistant/internal/classifier"
	"github.com/trackwise/assistant/internal/config"
	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/handlers"
	"github.com/trackwise/assistant/internal/logger"
	"github.com/trackwise/assistant/internal/middleware"
	"github.com/trackwise/assistant/internal/orchestrator"
	"github.com/trackwise/assistant/internal/queue"
	"github.com/trackwise/assistant/internal/ratelimit"
	"github.com/trackwise/assistant/internal/services/ai"
	"github.com/trackwise/assistant/internal/services/auth"
	"github.com/trackwise/assistant/internal/services/retrieval"
	"github.com/trackwise/assistant/internal/session"
	"github.com/trackwise/assistant/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(context.Background(), "trackwise-assistant", cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	zapLogger.Info("connected_to_database")

	if err := db.Migrate(context.Background()); err != nil {
		zapLogger.Fatal("failed_to_run_migrations", zap.Error(err))
	}

	sessionStore, err := session.NewRedisStore(cfg.RedisURL, session.Config{
		TTL:         cfg.SessionTTL,
		MaxMessages: cfg.SessionMaxMessages,
		MaxEntities: cfg.SessionMaxEntities,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() { _ = sessionStore.Close() }()
	zapLogger.Info("connected_to_redis")

	// The RabbitMQ queue is optional: deferred actions survive in the
	// database and the worker's sweep picks them up either way
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("rabbitmq_unavailable_deferred_actions_rely_on_sweep", zap.Error(err))
		} else {
			jobQueue = q
			defer func() { _ = q.Close() }()
			zapLogger.Info("connected_to_rabbitmq")
		}
	}

	actionLogRepo := database.NewActionLogRepository(db)
	deferredRepo := database.NewDeferredActionRepository(db)
	tuningRepo := database.NewTuningConfigRepository(db)

	rateCfg := ratelimit.Config{
		MinuteBase:   cfg.MinuteBase,
		MinuteBurst:  cfg.MinuteBurst,
		HourCapacity: cfg.HourCapacity,
	}
	weights := classifier.DefaultWeights()
	weights.FallbackThreshold = cfg.FallbackThreshold
	weights.ContinuityBonus = cfg.ContinuityBonus
	weights.EntityBonus = cfg.EntityBonus
	weights.ComplexWordCount = cfg.ComplexWordCount

	// Stored tuning overrides environment defaults when present
	if tuning, err := tuningRepo.Get(context.Background()); err != nil {
		zapLogger.Warn("tuning_config_load_failed", zap.Error(err))
	} else if tuning != nil {
		weights.FallbackThreshold = tuning.FallbackThreshold
		weights.ContinuityBonus = tuning.ContinuityBonus
		weights.EntityBonus = tuning.EntityBonus
		weights.ComplexWordCount = tuning.ComplexWordCount
		rateCfg.MinuteBase = tuning.MinuteBase
		rateCfg.MinuteBurst = tuning.MinuteBurst
		rateCfg.HourCapacity = tuning.HourCapacity
		zapLogger.Info("tuning_config_loaded",
			zap.Float64("fallback_threshold", weights.FallbackThreshold))
	}

	limiter := ratelimit.New(ratelimit.NewRedisStore(sessionStore.Client()), rateCfg, zapLogger)

	var fallback classifier.Fallback
	if cfg.OpenAIKey != "" {
		fallback = ai.NewOpenAIProviderWithLogger(
			cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, cfg.FallbackTimeout, zapLogger, debugMode)
		zapLogger.Info("fallback_classifier_enabled", zap.String("model", cfg.AIModel))
	} else {
		zapLogger.Warn("fallback_classifier_disabled_no_api_key")
	}

	backend := retrieval.NewHTTPClient(cfg.RetrievalURL, cfg.RetrievalTimeout, zapLogger)
	actionHandler := actions.NewHandler(backend, actionLogRepo, deferredRepo, jobQueue, zapLogger)
	pipeline := orchestrator.New(
		sessionStore,
		limiter,
		classifier.New(fallback, weights, zapLogger),
		backend,
		actionHandler,
		cfg.MaxQueryChars,
		zapLogger,
	)

	jwksManager := auth.NewJWKSManager()
	verifier := auth.NewVerifier(jwksManager, cfg.JWKSURL, cfg.JWTIssuer)

	chatHandler := handlers.NewChatHandler(pipeline, sessionStore, zapLogger)
	healthHandler := handlers.NewHealthHandler(buildHealthChecks(db, sessionStore, backend, fallback, jobQueue), zapLogger)

	ipLimitMW, err := middleware.IPRateLimit(sessionStore.Client(), cfg.IPRate)
	if err != nil {
		zapLogger.Fatal("failed_to_create_ip_rate_limiter", zap.Error(err))
	}

	r := mux.NewRouter()
	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware("trackwise-assistant"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Health is public and exempt from auth and per-IP limiting
	r.HandleFunc("/chat/health", healthHandler.Health).Methods("GET")

	chatRouter := r.PathPrefix("").Subrouter()
	chatRouter.Use(ipLimitMW)
	chatRouter.Use(middleware.Auth(verifier, zapLogger))
	chatHandler.RegisterRoutes(chatRouter)

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

// buildHealthChecks wires the dependency probes. Database, sessions and
// the retrieval backend are critical; the fallback classifier and job
// queue only degrade.
func buildHealthChecks(
	db *database.DB,
	sessions *session.RedisStore,
	backend *retrieval.HTTPClient,
	fallback classifier.Fallback,
	jobQueue queue.JobQueue,
) []handlers.Check {
	checks := []handlers.Check{
		{Name: "database", Critical: true, Probe: db.PingContext},
		{Name: "sessions", Critical: true, Probe: sessions.Ping},
		{Name: "retrieval", Critical: true, Probe: backend.Ping},
	}
	if provider, ok := fallback.(*ai.OpenAIProvider); ok {
		checks = append(checks, handlers.Check{Name: "fallback", Critical: false, Probe: provider.Ping})
	}
	if jobQueue != nil {
		checks = append(checks, handlers.Check{Name: "queue", Critical: false, Probe: jobQueue.HealthCheck})
	}
	return checks
}
