package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"devicehub/backend/internal/config"
	"devicehub/backend/internal/db"
	dirrepo "devicehub/backend/internal/directory/repository"
	"devicehub/backend/internal/httpapi"
	"devicehub/backend/internal/logging"
	"devicehub/backend/internal/ratelimit"
	rtrepo "devicehub/backend/internal/refreshtoken/repository"
	"devicehub/backend/internal/security"
	"devicehub/backend/internal/session"
	otelsetup "devicehub/backend/internal/telemetry/otel"
	"devicehub/backend/internal/token"
)

const serviceName = "devicehub-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	slog.SetDefault(logger)

	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	codec, err := token.New(token.Config{
		Secret:   []byte(cfg.JWTSigningSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Error("token codec init failed", "error", err)
		os.Exit(1)
	}

	passwordHasher := security.NewPasswordHasher(cfg.BcryptCost)

	var (
		dir   session.Directory
		store rtrepo.Store
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		dir = dirrepo.NewPostgresDirectory(sqlDB, passwordHasher)
		store = rtrepo.NewPostgresStore(sqlDB)
		logger.Info("using postgres storage")
	} else {
		dir = dirrepo.NewMemoryDirectory(passwordHasher)
		store = rtrepo.NewMemoryStore()
		logger.Warn("DATABASE_URL not set; using in-memory storage, all state is lost on restart")
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.LoginAttemptsPerMinute, time.Minute)
		logger.Info("using redis login limiter", "addr", cfg.RedisAddr)
	} else {
		limiter = ratelimit.NewWindowLimiter(cfg.LoginAttemptsPerMinute, time.Minute)
	}

	metrics, err := session.NewMetrics(providers.MeterProvider)
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	svc := session.New(
		dir,
		store,
		codec,
		security.NewRefreshHasher(),
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
		logger,
		metrics,
	)

	apiServer := httpapi.NewServer(svc, codec, limiter, logger, providers.TracerProvider)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped")
}
