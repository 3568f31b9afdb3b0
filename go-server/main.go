package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shortly/shortly/go-server/config"
	db "github.com/shortly/shortly/go-server/internal/database"
	"github.com/shortly/shortly/go-server/internal/handler"
	"github.com/shortly/shortly/go-server/internal/logger"
	"github.com/shortly/shortly/go-server/internal/metrics"
	"github.com/shortly/shortly/go-server/internal/middleware"
	"github.com/shortly/shortly/go-server/internal/observability"
	"github.com/shortly/shortly/go-server/internal/repository"
	route "github.com/shortly/shortly/go-server/internal/routes"
	"github.com/shortly/shortly/go-server/internal/service"
	"github.com/shortly/shortly/go-server/internal/token"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("error loading configuration", zap.Error(err))
	}

	log, flushLogs, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Environment: cfg.App.Environment,
		ServiceName: cfg.Telemetry.ServiceName,
		LokiURL:     cfg.Log.LokiURL,
	})
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("error building logger", zap.Error(err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Options{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.App.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Logger:         log,
	})
	if err != nil {
		log.Fatal("observability failed to initialize", zap.Error(err))
	}

	pgClient, err := db.NewPostgresClient(ctx, cfg)
	if err != nil {
		log.Fatal("postgres failed to initialize", zap.Error(err))
	}
	log.Info("postgres connection established")

	if err := db.Migrate(ctx, pgClient); err != nil {
		log.Fatal("schema migration failed", zap.Error(err))
	}

	redisClient, err := db.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatal("redis failed to initialize", zap.Error(err))
	}

	checks := map[string]handler.PingFunc{"postgres": pgClient.Ping, "redis": nil}

	var limiter middleware.Limiter
	if redisClient != nil {
		log.Info("redis connection established")
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	} else {
		log.Info("redis disabled, slug cache off and rate limiting kept in process")
		memLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	metrics.StartSystemMetricsCollection(ctx, 15*time.Second, func() metrics.PoolStats { return pgClient.Stat() })

	if err := handler.RegisterValidators(cfg.Slug.MaxLength); err != nil {
		log.Fatal("validator registration failed", zap.Error(err))
	}

	tokens := token.NewManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	urlService := service.NewURLService(
		repository.NewPostgresURLRepository(pgClient, redisClient, cfg.Redis.CacheTTL),
		service.SlugOptions{
			Length:      cfg.Slug.Length,
			MaxLength:   cfg.Slug.MaxLength,
			MaxAttempts: cfg.Slug.MaxAttempts,
		},
	)
	authService := service.NewAuthService(repository.NewUserRepository(pgClient), tokens, bcrypt.DefaultCost)

	r := route.SetupRouter(route.Dependencies{
		URLHandler:     handler.NewURLHandler(urlService, cfg.App.BaseURL),
		AuthHandler:    handler.NewAuthHandler(authService),
		HealthHandler:  handler.NewHealthHandler(checks),
		Tokens:         tokens,
		Limiter:        limiter,
		MetricsHandler: obs.MetricsHandler,
		AllowAnonymous: cfg.App.AllowAnonymous,
		AllowedOrigins: cfg.App.AllowedOrigins,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", server.Addr),
			zap.String("base_url", cfg.App.BaseURL),
			zap.Bool("allow_anonymous", cfg.App.AllowAnonymous),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Error("server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error("observability shutdown failed", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis", zap.Error(err))
		}
	}
	pgClient.Close()

	log.Info("server stopped")
	if err := flushLogs(shutdownCtx); err != nil {
		log.Warn("failed to flush log shipper", zap.Error(err))
	}
}
