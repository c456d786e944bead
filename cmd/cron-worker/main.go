package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/miuvuu/miuvuu-backend/internal/cron"
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

const lockKeyFormat = "miuvuu:cron-worker:lock:%s"

func main() {
	jobName := flag.String("job", "", "run a single registered job once and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	mediaMetrics := metrics.NewMediaMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

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
	productRepo := products.NewRepository(dbClient.DB())

	sweep, err := cron.NewOrphanSweepJob(cron.OrphanSweepJobParams{
		Logger:      logg,
		Ledger:      stack.Orphans,
		References:  productRepo,
		Cleanup:     stack.Cleanup,
		Grace:       cfg.Cron.OrphanGrace,
		MaxAttempts: cfg.Cron.OrphanMaxAttempt,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan sweep job", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(sweep)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron registry", err)
		os.Exit(1)
	}
	if cfg.Cron.AuditEnabled {
		auditor, err := media.NewAuditor(media.AuditorParams{
			Mapper:  stack.Mapper,
			Cleanup: stack.Cleanup,
			Store:   productRepo,
			Logger:  logg,
			Grace:   cfg.Cron.AuditGrace,
			Delete:  cfg.Cron.AuditDelete,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create media auditor", err)
			os.Exit(1)
		}
		audit, err := cron.NewOrphanAuditJob(logg, auditor)
		if err != nil {
			logg.Error(context.Background(), "failed to create orphan audit job", err)
			os.Exit(1)
		}
		if err := registry.Register(audit); err != nil {
			logg.Error(context.Background(), "failed to register orphan audit job", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *jobName != "" {
		job, ok := registry.Lookup(*jobName)
		if !ok {
			logg.Error(ctx, "unknown cron job", fmt.Errorf("job %q is not registered", *jobName))
			os.Exit(1)
		}
		if err := job.Run(logg.WithField(ctx, "job", job.Name())); err != nil {
			logg.Error(ctx, "cron job failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "cron job completed")
		return
	}

	var lock locks.Lock
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = locks.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "redis not configured, cron lock is process-local")
		lock = locks.NewLocalLock()
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
