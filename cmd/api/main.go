package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sheerent-backend/api/routes"
	"github.com/angelmondragon/sheerent-backend/internal/items"
	"github.com/angelmondragon/sheerent-backend/internal/ledger"
	"github.com/angelmondragon/sheerent-backend/internal/messages"
	"github.com/angelmondragon/sheerent-backend/internal/pricing"
	"github.com/angelmondragon/sheerent-backend/internal/rentals"
	"github.com/angelmondragon/sheerent-backend/internal/users"
	"github.com/angelmondragon/sheerent-backend/pkg/clock"
	"github.com/angelmondragon/sheerent-backend/pkg/config"
	"github.com/angelmondragon/sheerent-backend/pkg/db"
	"github.com/angelmondragon/sheerent-backend/pkg/detector"
	"github.com/angelmondragon/sheerent-backend/pkg/env"
	"github.com/angelmondragon/sheerent-backend/pkg/imagestore"
	"github.com/angelmondragon/sheerent-backend/pkg/instance"
	"github.com/angelmondragon/sheerent-backend/pkg/logger"
	"github.com/angelmondragon/sheerent-backend/pkg/metrics"
	"github.com/angelmondragon/sheerent-backend/pkg/migrate"
	"github.com/angelmondragon/sheerent-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(env.Get("SHEERENT_ENV_FILE", ".env")); err != nil {
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	deps := routes.Deps{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		closers = append(closers, redisClient)
		deps.Redis = redisClient
		deps.Idempotency = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotent replay disabled")
	}

	images, err := imagestore.New(ctx, cfg.Storage, cfg.GCP, logg)
	if err != nil {
		return err
	}
	if c, ok := images.(io.Closer); ok {
		closers = append(closers, c)
	}

	damage, err := detector.NewClient(cfg.Detector.URL, detector.WithTimeout(cfg.Detector.Timeout))
	if err != nil {
		return err
	}

	clk := clock.New(cfg.Settlement.UTCOffsetHours)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conn := dbClient.DB()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), clk)
	if err != nil {
		return err
	}
	messageRepo := messages.NewRepository(conn)
	messageSvc, err := messages.NewService(messageRepo, clk)
	if err != nil {
		return err
	}
	rentalSvc, err := rentals.NewService(rentals.ServiceParams{
		Tx:         dbClient,
		Rentals:    rentals.NewRepository(conn),
		Users:      users.NewRepository(conn),
		Items:      items.NewRepository(conn),
		Messages:   messageRepo,
		Ledger:     ledgerSvc,
		Calculator: pricing.NewCalculator(pricing.RatesFromConfig(cfg.Settlement)),
		Clock:      clk,
		Images:     images,
		Detector:   damage,
		Logger:     logg,
		Metrics:    metrics.NewRentalMetrics(registry),
	})
	if err != nil {
		return err
	}

	deps.Clock = clk
	deps.Gatherer = registry
	deps.Rentals = rentalSvc
	deps.Messages = messageSvc
	deps.Ledger = ledgerSvc

	addr := ":" + env.Get("PORT", cfg.App.Port)
	srvCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(srvCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(srvCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
