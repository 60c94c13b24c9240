package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

// retry calls op until it succeeds, the attempts run out, or ctx ends,
// sleeping Delay between attempts.
func retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, op func() error) error {
	maxAttempts := policy.attempts()
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(maxAttempts-1)),
		ctx,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		logger.Info("attempting to connect to broker", "attempt", attempt, "max_attempts", maxAttempts)
		return op()
	}, b, func(err error, wait time.Duration) {
		logger.Warn("broker connection attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_in", wait,
			"error", err,
		)
	})
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry: %w", ctxErr)
	}
	logger.Error("max retries exceeded, cannot connect to broker", "attempts", attempt, "error", err)
	return fmt.Errorf("%w after %d attempts: %w", ErrBrokerUnavailable, attempt, err)
}
