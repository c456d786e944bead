package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/miuvuu/miuvuu-backend/api/controllers"
	"github.com/miuvuu/miuvuu-backend/api/routes"
	"github.com/miuvuu/miuvuu-backend/internal/locks"
	"github.com/miuvuu/miuvuu-backend/internal/media"
	products "github.com/miuvuu/miuvuu-backend/internal/products"
	"github.com/miuvuu/miuvuu-backend/pkg/config"
	"github.com/miuvuu/miuvuu-backend/pkg/db"
	"github.com/miuvuu/miuvuu-backend/pkg/logger"
	"github.com/miuvuu/miuvuu-backend/pkg/metrics"
	"github.com/miuvuu/miuvuu-backend/pkg/migrate"
	"github.com/miuvuu/miuvuu-backend/pkg/redis"
)

const (
	productLockScope = "product-media"
	shutdownTimeout  = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mediaMetrics := metrics.NewMediaMetrics(registry)

	stack, err := media.NewStack(media.StackParams{
		Config:  cfg,
		DB:      dbClient.DB(),
		Logger:  logg,
		Metrics: mediaMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build media stack", err)
		os.Exit(1)
	}

	var productLocks locks.Keyed
	var redisPinger controllers.Pinger
	if redisClient != nil {
		productLocks, err = locks.NewRedisKeyed(locks.RedisKeyedParams{
			Client:  redisClient,
			Scope:   productLockScope,
			TTL:     cfg.Media.LockTTL,
			Wait:    cfg.Media.LockWait,
			Metrics: mediaMetrics,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create product locks", err)
			os.Exit(1)
		}
		redisPinger = redisClient
	} else {
		productLocks = locks.NewLocalKeyed(cfg.Media.LockWait, mediaMetrics)
	}

	productService, err := products.NewService(products.ServiceParams{
		Repo:       products.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Reconciler: stack.Reconciler,
		Cleanup:    stack.Cleanup,
		Locks:      productLocks,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"storage_root": stack.Mapper.Root(),
		"redis":        redisClient != nil,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisPinger, registry, productService),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
