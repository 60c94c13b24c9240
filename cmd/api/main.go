package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/josh-kwaku/payflow/internal/broker"
	"github.com/josh-kwaku/payflow/internal/config"
	"github.com/josh-kwaku/payflow/internal/handler"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
	"github.com/josh-kwaku/payflow/internal/repository"
	"github.com/josh-kwaku/payflow/internal/server"
	"github.com/josh-kwaku/payflow/internal/service"
	"github.com/josh-kwaku/payflow/internal/service/payment"
)

func main() {
	if err := run(); err != nil {
		slog.Error("payflow-api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init("payflow-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}
	defer stores.Close()
	logger.Info("stores ready", "driver", cfg.StoreDriver)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.WatchActivePayments(stores.Payments.CountActive)
		if cfg.StoreDriver == config.StoreDriverSQLite {
			m.WatchSQLite(stores.DB, cfg.SQLitePath)
		}
	}

	conn := broker.NewConnection(cfg.RabbitMQURL, broker.RetryPolicy{
		MaxAttempts: cfg.PublishMaxAttempts,
		Delay:       cfg.PublishRetryDelay,
	}, "publisher", logger, m)
	defer conn.Close()

	publisher := broker.NewPublisher(conn, cfg.PublishQueueSize, logger, m)
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		publisher.Run(ctx)
	}()

	janitor := service.NewIdempotencyJanitor(stores.Idempotency, logger, cfg.IdempotencyCleanupInterval)
	go janitor.Start(ctx)

	payments := payment.NewService(stores.Payments, publisher, m)

	if cfg.OperatorJWTSecret == "" {
		logger.Warn("OPERATOR_JWT_SECRET not set, operator endpoints are unauthenticated")
	}

	router := newRouter(routerDeps{
		payments: handler.NewPaymentHandler(payments),
		health: handler.NewHealthHandler("payflow-api", handler.ReadinessCheck{
			Name:  "database",
			Check: stores.Payments.Ping,
		}),
		idempotency:    stores.Idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		operatorSecret: cfg.OperatorJWTSecret,
		metrics:        m,
	})

	if err := server.Serve(ctx, cfg.Port, router); err != nil {
		return err
	}

	<-publisherDone
	logger.Info("publisher drained")
	return nil
}
