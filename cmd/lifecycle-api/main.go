// cmd/lifecycle-api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"finserv-applications/internal/aggregation"
	"finserv-applications/internal/common/config"
	"finserv-applications/internal/common/database"
	"finserv-applications/internal/common/logger"
	"finserv-applications/internal/common/observability"
	"finserv-applications/internal/httpapi"
	"finserv-applications/internal/lifecycle"
	"finserv-applications/internal/store"
	"finserv-applications/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting lifecycle API...",
		zap.String("environment", cfg.App.Environment),
		zap.String("driver", cfg.Database.Driver),
	)

	reg := registry.Default()
	if cfg.Registry.Path != "" {
		reg, err = registry.LoadRegistry(cfg.Registry.Path)
		if err != nil {
			zapLog.Fatal("registry load failed", zap.Error(err))
		}
	}
	zapLog.Info("Registry loaded", zap.String("version", reg.Version), zap.Int("entries", reg.Len()))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	checks := map[string]httpapi.HealthCheck{}

	// --- Record store ---
	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		zapLog.Warn("Using in-memory store; records are lost on restart")
		st = store.NewMemoryStore(reg)

	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		pgStore := store.NewPostgresStore(pg.GetDB(), log)
		if cfg.Database.Postgres.AutoMigrate {
			for _, entry := range reg.All() {
				if err := pgStore.EnsureCollection(ctx, entry); err != nil {
					zapLog.Fatal("collection migration failed", zap.String("collection", entry.Collection), zap.Error(err))
				}
			}
			zapLog.Info("Collections migrated", zap.Int("count", reg.Len()))
		}
		st = pgStore
		checks["postgres"] = pg.Ping
	}

	// --- Summary cache (optional) ---
	aggCfg := aggregation.Config{
		EntryTimeout: config.GetDuration(cfg.Aggregation.EntryTimeout),
		MaxParallel:  cfg.Aggregation.MaxParallel,
	}
	if cfg.Database.Redis.Address != "" && cfg.Aggregation.CacheTTL > 0 {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 5, time.Second, zapLog, "Redis connection")
		if err != nil {
			// The dashboard works without a cache.
			zapLog.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			aggCfg.Cache = aggregation.NewRedisCache(rdb.GetClient(), config.GetDuration(cfg.Aggregation.CacheTTL))
			checks["redis"] = rdb.Ping
			zapLog.Info("Redis connected successfully")
		}
	}

	service := lifecycle.NewService(reg, st, log)
	engine := aggregation.NewEngine(aggCfg, reg, st, log)

	opts := httpapi.RouterOptions{
		Authenticator:  httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AdminRole, log),
		Observability:  obs,
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	}
	router := httpapi.NewRouter(httpapi.NewHandler(service, engine, checks, log), opts)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	zapLog.Info("Lifecycle API stopped")
}
