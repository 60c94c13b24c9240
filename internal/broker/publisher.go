package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultDrainTimeout   = 10 * time.Second
)

// Publisher announces successful payments. The payment flow only ever
// enqueues; Run does the broker work on its own goroutine.
type Publisher struct {
	conn           *Connection
	queue          chan uuid.UUID
	publishTimeout time.Duration
	drainTimeout   time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

func NewPublisher(conn *Connection, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		conn:           conn,
		queue:          make(chan uuid.UUID, max(queueSize, 1)),
		publishTimeout: defaultPublishTimeout,
		drainTimeout:   defaultDrainTimeout,
		logger:         logging.Component(logger, "publisher"),
		metrics:        m,
		now:            time.Now,
	}
}

// PaymentSucceeded never blocks. When the queue is full the event is dropped
// and logged.
func (p *Publisher) PaymentSucceeded(paymentID uuid.UUID) {
	select {
	case p.queue <- paymentID:
		p.metrics.SetQueueDepth(len(p.queue))
	default:
		p.metrics.EventPublished("dropped")
		p.logger.Error("dropping payment event",
			"payment_id", paymentID,
			"error", ErrPublishQueueFull,
		)
	}
}

// Run publishes queued events until ctx ends, then flushes what is already
// queued within the drain timeout.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("publisher started", "queue_size", cap(p.queue))
	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.logger.Info("publisher stopped")
			return
		case id := <-p.queue:
			p.metrics.SetQueueDepth(len(p.queue))
			p.publishAndLog(ctx, id)
		}
	}
}

func (p *Publisher) drain() {
	if len(p.queue) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()

	p.logger.Info("draining publish queue", "pending", len(p.queue))
	for {
		select {
		case id := <-p.queue:
			p.publishAndLog(ctx, id)
		default:
			p.metrics.SetQueueDepth(0)
			return
		}
	}
}

func (p *Publisher) publishAndLog(ctx context.Context, id uuid.UUID) {
	if err := p.Publish(ctx, id); err != nil {
		p.metrics.EventPublished("failed")
		p.logger.Error("failed to publish payment event", "payment_id", id, "error", err)
		return
	}
	p.metrics.EventPublished("published")
	p.logger.Info("published payment event", "payment_id", id)
}

// Publish sends one payment_complete event synchronously.
func (p *Publisher) Publish(ctx context.Context, paymentID uuid.UUID) error {
	body, err := json.Marshal(domain.NewPaymentCompleteEvent(paymentID))
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Type:         domain.EventTypePaymentComplete,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}
