package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/aipainter/backend/internal/accounts"
	"github.com/aipainter/backend/internal/catalog"
	"github.com/aipainter/backend/internal/config"
	"github.com/aipainter/backend/internal/events"
	"github.com/aipainter/backend/internal/ledger"
	"github.com/aipainter/backend/internal/metrics"
	"github.com/aipainter/backend/internal/migrations"
	"github.com/aipainter/backend/internal/payments"
	"github.com/aipainter/backend/internal/ratelimit"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to PostgreSQL")

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	slog.Info("migrations applied")

	m := metrics.New()
	store := ledger.NewRepository(pool)
	accountSvc := accounts.NewService(store, cfg.Limits.InitialCredits, m, logger)
	reconciler := payments.NewReconciler(store, catalog.Default(), m, logger)

	workers := river.NewWorkers()
	events.Register(workers, reconciler, accountSvc)
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	queue := events.NewQueue(riverClient)

	g, gctx := errgroup.WithContext(ctx)

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		limiter = ratelimit.NewRedisWindow(rdb, cfg.Limits.ThrottleWindow, cfg.Limits.ThrottleMax)
		slog.Info("using shared redis throttle", "addr", cfg.RedisAddr)
	} else {
		window := ratelimit.NewWindow(cfg.Limits.ThrottleWindow, cfg.Limits.ThrottleMax)
		limiter = window
		g.Go(func() error { return window.RunSweeper(gctx, cfg.Limits.ThrottleWindow) })
	}

	handler, err := newAPIHandler(cfg, store, accountSvc, queue, limiter, m, logger)
	if err != nil {
		return err
	}

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("painter-api"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		bridge := events.NewBridge(js, queue, logger)
		g.Go(func() error { return bridge.Start(gctx) })
	}

	g.Go(func() error {
		if err := riverClient.Start(gctx); err != nil {
			return fmt.Errorf("start river: %w", err)
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return riverClient.Stop(stopCtx)
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("shutdown complete")
	return err
}
