package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duynhne/onboarding-service/config"
	database "github.com/duynhne/onboarding-service/internal/core"
	"github.com/duynhne/onboarding-service/internal/core/domain"
	"github.com/duynhne/onboarding-service/internal/core/events"
	"github.com/duynhne/onboarding-service/internal/core/linking"
	"github.com/duynhne/onboarding-service/internal/core/repository/memory"
	"github.com/duynhne/onboarding-service/internal/core/repository/psql"
	"github.com/duynhne/onboarding-service/internal/core/repository/redisstore"
	"github.com/duynhne/onboarding-service/internal/core/storage"
	logicv1 "github.com/duynhne/onboarding-service/internal/logic/v1"
	v1 "github.com/duynhne/onboarding-service/internal/web/v1"
	"github.com/duynhne/onboarding-service/middleware"
)

func main() {
	// Load configuration from environment variables (with .env file support for local dev)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Logging)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Service starting",
		zap.String("service", cfg.Service.Name),
		zap.String("version", cfg.Service.Version),
		zap.String("env", cfg.Service.Env),
		zap.String("port", cfg.Service.Port),
	)

	if cfg.Tracing.Enabled {
		if _, err := middleware.InitTracing(cfg); err != nil {
			logger.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.Info("Tracing initialized",
				zap.String("endpoint", cfg.Tracing.Endpoint),
				zap.Float64("sample_rate", cfg.Tracing.SampleRate),
			)
		}
	} else {
		logger.Info("Tracing disabled (TRACING_ENABLED=false)")
	}

	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg.Profiling); err != nil {
			logger.Warn("Failed to initialize profiling", zap.Error(err))
		} else {
			logger.Info("Profiling initialized", zap.String("endpoint", cfg.Profiling.Endpoint))
			defer middleware.StopProfiling()
		}
	} else {
		logger.Info("Profiling disabled (PROFILING_ENABLED=false)")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// Profiles: PostgreSQL when configured, process memory otherwise (local dev)
	var (
		pool     *pgxpool.Pool
		profiles domain.ProfileRepository
	)
	if cfg.Database.Host != "" {
		pool, err = database.Connect(startupCtx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		if cfg.Database.AutoMigrate {
			if err := database.EnsureSchema(startupCtx, pool); err != nil {
				logger.Fatal("Failed to apply database schema", zap.Error(err))
			}
		}
		profiles = psql.NewProfileRepository(pool)
		logger.Info("Database connection pool established")
	} else {
		profiles = memory.NewProfileRepository()
		logger.Warn("DB_HOST not set, completed profiles are kept in memory")
	}

	// Sessions and verification codes: Redis when configured
	var (
		redisClient *redis.Client
		sessions    domain.SessionStore
		codes       domain.CodeStore
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = database.ConnectRedis(startupCtx, cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		sessions = redisstore.NewSessionStore(redisClient, cfg.Redis.SessionTTL)
		codes = redisstore.NewCodeStore(redisClient)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		sessions = memory.NewSessionStore(cfg.Redis.SessionTTL)
		codes = memory.NewCodeStore()
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}

	// Events and code delivery: Kafka when brokers are configured
	var (
		publisher  domain.EventPublisher
		codeSender domain.CodeSender
		closers    []*events.KafkaPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		eventsPublisher := events.NewKafkaPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, logger))
		notifications := events.NewKafkaPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, logger))
		closers = append(closers, eventsPublisher, notifications)
		publisher = eventsPublisher
		codeSender = events.NewNotificationSender(notifications)
		logger.Info("Kafka publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("events_topic", cfg.Kafka.EventsTopic),
		)
	} else {
		publisher = events.NewLogPublisher(logger)
		codeSender = events.NewLogCodeSender(logger)
		logger.Warn("KAFKA_BROKERS not set, events and verification codes are only logged")
	}

	avatars, err := storage.NewFileAvatarStore(cfg.Avatar)
	if err != nil {
		logger.Fatal("Failed to initialize avatar storage", zap.Error(err))
	}

	var linker domain.AccountLinker
	if cfg.AccountLinkServiceURL != "" {
		linker = linking.NewClient(cfg.AccountLinkServiceURL)
	} else {
		logger.Warn("ACCOUNT_LINK_SERVICE_URL not set, the connect step is unavailable")
	}

	verification := logicv1.NewVerificationService(codes, codeSender, logicv1.VerificationConfig{
		CodeTTL:        cfg.Onboarding.VerificationCodeTTL,
		ResendCooldown: cfg.Onboarding.ResendCooldown,
		MaxAttempts:    cfg.Onboarding.MaxVerifyAttempts,
	}, logger)

	service := logicv1.NewOnboardingService(logicv1.Dependencies{
		Sessions:     sessions,
		Profiles:     profiles,
		Usernames:    logicv1.NewUsernameChecker(profiles, cfg.Onboarding.UsernameCheckTimeout),
		Verification: verification,
		Avatars:      avatars,
		Linker:       linker,
		Events:       publisher,
	}, logicv1.Rules{BioMaxLength: cfg.Onboarding.BioMaxLength}, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	var isShuttingDown atomic.Bool

	// Tracing middleware (must be first for context propagation)
	r.Use(middleware.TracingMiddleware())
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.PrometheusMiddleware())

	authClient := middleware.NewAuthClient(cfg.AuthServiceURL)
	logger.Info("Auth client initialized", zap.String("auth_service_url", cfg.AuthServiceURL))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness fails once shutdown has started so traffic drains before the HTTP server stops.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database_unavailable"})
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis_unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	handler := v1.NewOnboardingHandler(service)
	handler.RegisterRoutes(r.Group("/api/v1"),
		middleware.AuthMiddleware(authClient, logger, cfg.AuthAllowUnauthenticatedFallback))

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting onboarding service", zap.String("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		logger.Info("Readiness drain delay started", zap.Duration("delay", drainDelay))
		time.Sleep(drainDelay)
		logger.Info("Readiness drain delay completed", zap.Duration("delay", drainDelay))
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server...", zap.Duration("timeout", shutdownTimeout))

	// Cleanup order: HTTP server, Kafka writers, Redis, database, tracer.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shutdown complete")
	}

	for _, p := range closers {
		if err := p.Close(); err != nil {
			logger.Error("Kafka writer close error", zap.Error(err))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	if pool != nil {
		pool.Close()
		logger.Info("Database pool closed")
	}

	// Flushes pending spans; a no-op when tracing was never initialized.
	if err := middleware.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown error", zap.Error(err))
	} else {
		logger.Info("Tracer shutdown complete")
	}

	logger.Info("Graceful shutdown complete")
}
