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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/sheerent-backend/internal/cron"
	"github.com/angelmondragon/sheerent-backend/internal/notices"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/config"
	"github.com/angelmondragon/sheerent-backend/pkg/db"
	"github.com/angelmondragon/sheerent-backend/pkg/env"
	"github.com/angelmondragon/sheerent-backend/pkg/instance"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/angelmondragon/sheerent-backend/pkg/metrics"
	"github.com/angelmondragon/sheerent-backend/pkg/migrate"
	"github.com/angelmondragon/sheerent-backend/pkg/redis"
)

const lockKeyFormat = "sheerent:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(env.Get("SHEERENT_ENV_FILE", ".env")); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	var lock cron.Lock = &cron.LocalLock{}
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
		lock, err = cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured, cron lock is process-local")
	}

	clk := clock.New(cfg.Settlement.UTCOffsetHours)
	conn := dbClient.DB()
	noticeRepo := notices.NewRepository(conn)

	overdue, err := cron.NewOverdueReminderJob(cron.OverdueReminderJobParams{
		Logger:    logg,
		DB:        dbClient,
		Rentals:   rentals.NewRepository(conn),
		Notices:   noticeRepo,
		Clock:     clk,
		BatchSize: cfg.Cron.OverdueBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create overdue reminder job", err)
		os.Exit(1)
	}
	retention, err := cron.NewNoticeRetentionJob(cron.NoticeRetentionJobParams{
		Logger:        logg,
		Notices:       noticeRepo,
		Clock:         clk,
		RetentionDays: cfg.Cron.NoticeRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notice retention job", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(overdue, retention),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
		"interval": cfg.Cron.Interval.String(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + env.Get("SHEERENT_CRON_METRICS_PORT", "9102"),
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cron metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(appEnv string) string {
	if appEnv == "" {
		appEnv = "local"
	}
	return fmt.Sprintf(lockKeyFormat, appEnv)
}
