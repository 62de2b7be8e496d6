package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"medipos/backend/internal/cache"
	"medipos/backend/internal/config"
	"medipos/backend/internal/httpapi"
	"medipos/backend/internal/remotesync"
	"medipos/backend/internal/service"
	"medipos/backend/internal/session"
	"medipos/backend/internal/store"
	"medipos/backend/internal/store/local"
	"medipos/backend/internal/store/memory"
	pgstore "medipos/backend/internal/store/postgres"
	redisstore "medipos/backend/internal/store/redis"
	"medipos/backend/internal/store/sqlite"
)

func main() {
	cfg := config.Load()
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid storage configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	medium, err := openMedium(ctx, cfg)
	if err != nil {
		logger.Fatal("storage medium unavailable", zap.String("medium", cfg.StorageMedium), zap.Error(err))
	}
	closers = append(closers, medium.Close)
	logger.Info("storage medium ready", zap.String("medium", cfg.StorageMedium))

	repo := local.New(medium)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("record migration failed", zap.Error(err))
	}
	if cfg.SeedDefaults {
		if err := local.Seed(ctx, repo, logger); err != nil {
			logger.Fatal("seeding failed", zap.Error(err))
		}
	}

	analyticsCache := cache.AnalyticsCache(cache.NoopAnalyticsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAnalyticsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		} else {
			analyticsCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("analytics cache: redis")
		}
	}

	var remote remotesync.Remote
	if cfg.SyncEnabled() {
		client := remotesync.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
		remote = client
		closers = append(closers, client.Close)
		logger.Info("remote sync enabled", zap.String("base_url", cfg.RemoteBaseURL))
	} else {
		logger.Info("remote sync disabled")
	}
	bridge := remotesync.NewBridge(repo, remote, cfg.SyncMaxBackoff, logger.Named("sync"))

	svc := service.New(repo, service.Options{
		Logger: logger.Named("service"),
		Bridge: bridge,
		Cache:  analyticsCache,
	})
	if err := svc.Prime(ctx); err != nil {
		logger.Fatal("receipt sequence", zap.Error(err))
	}
	sessions := session.NewManager(repo, cfg.AuthSecret, logger.Named("session"))
	api := httpapi.New(svc, sessions, cfg.AllowedOrigin, logger.Named("http"))

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		remotesync.NewWorker(bridge, cfg.SyncInterval, logger.Named("sync")).Run(runCtx)
	}()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("pharmacy POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	<-workerDone

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openMedium(ctx context.Context, cfg config.Config) (store.Medium, error) {
	switch cfg.StorageMedium {
	case config.MediumMemory:
		return memory.New(cfg.StorageQuotaBytes), nil
	case config.MediumSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.MediumPostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pgstore.New(ctx, cfg.DatabaseURL)
	case config.MediumRedis:
		m := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "medipos:")
		if err := m.Ping(ctx); err != nil {
			_ = m.Close()
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown medium %q", cfg.StorageMedium)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.RemoteBaseURL != "" {
		parsed, err := url.Parse(cfg.RemoteBaseURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("REMOTE_BASE_URL must be an absolute http(s) URL")
		}
	}
	return nil
}
