package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/payflow/internal/auth"
	"github.com/josh-kwaku/payflow/internal/broker"
	"github.com/josh-kwaku/payflow/internal/config"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/repository"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema for STORE_DRIVER",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreDriverMemory {
				return errors.New("migrate: the memory store has no schema")
			}

			stores, err := repository.Open(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer stores.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		secret  string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the process and refund completion endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.LoadTooling()
				if err != nil {
					return err
				}
				secret = cfg.OperatorJWTSecret
			}
			if secret == "" {
				return errors.New("token: OPERATOR_JWT_SECRET is not set")
			}

			token, err := auth.GenerateOperatorToken(subject, secret, ttl)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Operator identity recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to OPERATOR_JWT_SECRET)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func publishTestCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish-test [payment-id]",
		Short: "Publish a payment_complete event without touching the payment store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paymentID := uuid.New()
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("publish-test: invalid payment id: %w", err)
				}
				paymentID = id
			}

			cfg, err := config.LoadTooling()
			if err != nil {
				return err
			}
			logger := logging.Init("payflowctl", cfg.LogLevel, cfg.AppEnv)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn := broker.NewConnection(cfg.RabbitMQURL, broker.RetryPolicy{
				MaxAttempts: cfg.PublishMaxAttempts,
				Delay:       cfg.PublishRetryDelay,
			}, "payflowctl", logger, nil)
			defer conn.Close()

			if err := broker.NewPublisher(conn, 1, logger, nil).Publish(ctx, paymentID); err != nil {
				return fmt.Errorf("publish-test: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published payment_complete for %s\n", paymentID)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")

	return cmd
}
