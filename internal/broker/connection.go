package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

// Connection is the single shared broker connection of one process side.
type Connection struct {
	url       string
	policy    RetryPolicy
	component string
	dial      Dialer
	prefetch  int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	conn   Conn
	ch     Channel
	closed bool
}

// NewConnection does not dial; the first Channel call does.
func NewConnection(url string, policy RetryPolicy, component string, logger *slog.Logger, m *metrics.Metrics) *Connection {
	return &Connection{
		url:       url,
		policy:    policy,
		component: component,
		dial:      DialAMQP,
		logger:    logging.Component(logger, component).With("exchange", ExchangeName, "queue", QueueName),
		metrics:   m,
	}
}

func (c *Connection) setPrefetch(n int) {
	c.mu.Lock()
	c.prefetch = n
	c.mu.Unlock()
}

// Channel returns the open channel, dialling first when there is none or
// the server closed the previous one. Concurrent callers share one dial.
func (c *Connection) Channel(ctx context.Context) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.healthyLocked() {
		return c.ch, nil
	}
	if c.conn != nil {
		c.logger.Warn("broker connection lost, reconnecting")
	}
	c.teardownLocked()

	err := retry(ctx, c.policy, c.logger, func() error {
		conn, ch, err := c.open()
		if err != nil {
			return err
		}
		c.conn, c.ch = conn, ch
		return nil
	})
	if err != nil {
		c.metrics.SetBrokerConnected(c.component, false)
		return nil, fmt.Errorf("Channel: %w", err)
	}

	c.metrics.SetBrokerConnected(c.component, true)
	c.logger.Info("connected to broker")
	return c.ch, nil
}

func (c *Connection) open() (Conn, Channel, error) {
	conn, err := c.dial(c.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("set prefetch: %w", err)
		}
	}

	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// connected reports whether an open channel is held right now.
func (c *Connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.healthyLocked()
}

// Reset drops the current connection; the next Channel call dials again.
func (c *Connection) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardownLocked()
}

// Close releases the connection for good.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if err := c.teardownLocked(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}

func (c *Connection) healthyLocked() bool {
	return c.conn != nil && !c.conn.IsClosed() && c.ch != nil && !c.ch.IsClosed()
}

func (c *Connection) teardownLocked() error {
	var errs []error
	if c.ch != nil && !c.ch.IsClosed() {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil && !c.conn.IsClosed() {
		errs = append(errs, c.conn.Close())
	}
	if c.conn != nil {
		c.metrics.SetBrokerConnected(c.component, false)
	}
	c.conn, c.ch = nil, nil
	return errors.Join(errs...)
}
