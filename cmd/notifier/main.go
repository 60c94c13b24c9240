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
	"github.com/josh-kwaku/payflow/internal/service/notification"
)

func main() {
	if err := run(); err != nil {
		slog.Error("payflow-notifier exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init("payflow-notifier", cfg.LogLevel, cfg.AppEnv)

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
		if cfg.StoreDriver == config.StoreDriverSQLite {
			m.WatchSQLite(stores.DB, cfg.SQLitePath)
		}
	}

	notifications := notification.NewService(stores.Notifications, m)

	conn := broker.NewConnection(cfg.RabbitMQURL, broker.RetryPolicy{
		MaxAttempts: cfg.ConsumerMaxAttempts,
		Delay:       cfg.ConsumerRetryDelay,
	}, "consumer", logger, m)
	defer conn.Close()

	consumer := broker.NewConsumer(conn, notifications, logger, m)
	supervisor := broker.NewSupervisor(consumer.Run, cfg.SupervisorMinBackoff, cfg.SupervisorMaxBackoff, logger, m)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Start(ctx)
	}()

	health := handler.NewHealthHandler("payflow-notifier",
		handler.ReadinessCheck{Name: "database", Check: stores.Notifications.Ping},
		handler.ReadinessCheck{Name: "consumer", Check: func(context.Context) error {
			if state := consumer.State(); state != broker.StateConsuming {
				return fmt.Errorf("consumer is %s", state)
			}
			return nil
		}},
	)

	router := newRouter(routerDeps{
		notifications: handler.NewNotificationHandler(notifications),
		health:        health,
		worker:        supervisor,
		metrics:       m,
	})

	if err := server.Serve(ctx, cfg.Port, router); err != nil {
		return err
	}

	<-supervisorDone
	logger.Info("consumer stopped", "restarts", supervisor.Status().Restarts)
	return nil
}
