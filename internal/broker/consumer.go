package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

type ConsumerState string

const (
	StateDisconnected ConsumerState = "disconnected"
	StateConnecting   ConsumerState = "connecting"
	StateConsuming    ConsumerState = "consuming"
	StateClosed       ConsumerState = "closed"
)

const (
	consumerTag          = "payflow-notifier"
	defaultHandleTimeout = 10 * time.Second
)

// EventHandler turns a decoded payment event into a stored notification.
type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, msg domain.EventMessage) (*domain.Notification, error)
}

// Consumer reads payment events one at a time and hands them to an
// EventHandler. Every delivery is acknowledged after handling, whatever the
// outcome; nothing is redelivered or dead-lettered.
type Consumer struct {
	conn          *Connection
	handler       EventHandler
	handleTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	mu         sync.RWMutex
	state      ConsumerState
	deliveries <-chan amqp.Delivery
}

func NewConsumer(conn *Connection, handler EventHandler, logger *slog.Logger, m *metrics.Metrics) *Consumer {
	conn.setPrefetch(1)
	return &Consumer{
		conn:          conn,
		handler:       handler,
		handleTimeout: defaultHandleTimeout,
		logger:        logging.Component(logger, "consumer"),
		metrics:       m,
		state:         StateDisconnected,
	}
}

func (c *Consumer) State() ConsumerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Consumer) setState(s ConsumerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect establishes the channel with prefetch 1 and subscribes to the
// queue with manual acknowledgement.
func (c *Consumer) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	ch, err := c.conn.Channel(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("Connect: %w", err)
	}

	deliveries, err := ch.Consume(QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("Connect: consume: %w", err)
	}

	c.mu.Lock()
	c.deliveries = deliveries
	c.state = StateConsuming
	c.mu.Unlock()
	return nil
}

// Consume processes deliveries until ctx ends (nil) or the delivery stream
// closes because the connection dropped (error).
func (c *Consumer) Consume(ctx context.Context) error {
	c.mu.RLock()
	deliveries := c.deliveries
	c.mu.RUnlock()
	if deliveries == nil {
		return fmt.Errorf("Consume: %w", ErrConnectionClosed)
	}

	c.logger.Info("consuming payment events", "queue", QueueName)
	for {
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.setState(StateDisconnected)
				return fmt.Errorf("Consume: %w", ErrDeliveriesClosed)
			}
			c.handle(ctx, d)
		}
	}
}

// Run is one supervised lifetime: connect, consume, and release the
// connection on every exit path.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.conn.Reset(); err != nil {
			c.logger.Warn("failed to close broker connection", "error", err)
		}
		c.mu.Lock()
		c.deliveries = nil
		if ctx.Err() != nil {
			c.state = StateClosed
		} else {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
	}()

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("Run: %w", err)
	}
	return c.Consume(ctx)
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	log := c.logger.With("delivery_tag", d.DeliveryTag)
	if d.MessageId != "" {
		log = log.With("message_id", d.MessageId)
	}

	// An in-flight message is finished even when shutdown begins.
	handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.handleTimeout)
	defer cancel()

	outcome := "processed"
	var msg domain.EventMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		outcome = "malformed"
		log.Error("discarding undecodable message", "error", fmt.Errorf("%w: %w", ErrMalformedMessage, err))
	} else if n, err := c.handler.HandlePaymentEvent(handleCtx, msg); err != nil {
		outcome = "failed"
		log.Error("failed to persist notification, message dropped",
			"payment_id", msg.PaymentID,
			"error", err,
		)
	} else {
		log.Info("notification created from payment event",
			"payment_id", msg.PaymentID,
			"notification_id", n.ID,
		)
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to acknowledge message", "error", err)
	}
	c.metrics.MessageConsumed(outcome)
	c.metrics.ObserveHandle(time.Since(start))
}
