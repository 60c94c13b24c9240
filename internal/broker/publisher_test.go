package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

func TestPublisher_Publish(t *testing.T) {
	b := &fakeBroker{}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), 4, logging.Discard(), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	id := uuid.New()
	require.NoError(t, pub.Publish(context.Background(), id))

	msgs := b.lastConn().ch.publishedMessages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, domain.EventTypePaymentComplete, msg.Type)
	assert.Equal(t, fixed, msg.Timestamp)
	assert.NotEmpty(t, msg.MessageId)

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, map[string]string{
		"type":       "payment_complete",
		"payment_id": id.String(),
		"message":    "Payment " + id.String() + " completed successfully",
	}, body)
}

func TestPublisher_PublishBrokerUnavailable(t *testing.T) {
	b := &fakeBroker{failDials: 100}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 2}), 4, logging.Discard(), nil)

	err := pub.Publish(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, 2, b.dialCount())
}

func TestPublisher_PaymentSucceededNeverBlocks(t *testing.T) {
	m := metrics.New()
	b := &fakeBroker{}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), 1, logging.Discard(), m)

	done := make(chan struct{})
	go func() {
		pub.PaymentSucceeded(uuid.New())
		pub.PaymentSucceeded(uuid.New())
		pub.PaymentSucceeded(uuid.New())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PaymentSucceeded blocked on a full queue")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("dropped")))
	assert.Equal(t, 0, b.dialCount(), "enqueueing does not touch the broker")
}

func TestPublisher_RunDrainsQueueOnShutdown(t *testing.T) {
	m := metrics.New()
	b := &fakeBroker{}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), 8, logging.Discard(), m)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		pub.PaymentSucceeded(id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	msgs := b.lastConn().ch.publishedMessages()
	require.Len(t, msgs, len(ids))
	for i, msg := range msgs {
		var event domain.EventMessage
		require.NoError(t, json.Unmarshal(msg.Body, &event))
		assert.Equal(t, ids[i].String(), event.PaymentID, "events keep enqueue order")
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("published")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PublishQueueDepth))
}

func TestPublisher_RunSwallowsFailures(t *testing.T) {
	m := metrics.New()
	b := &fakeBroker{newChannel: func() *fakeChannel {
		return &fakeChannel{publishErr: errors.New("channel flow paused")}
	}}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), 8, logging.Discard(), m)

	pub.PaymentSucceeded(uuid.New())
	pub.PaymentSucceeded(uuid.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("published")))
}

func TestPublisher_RunPublishesWhileLive(t *testing.T) {
	b := &fakeBroker{}
	pub := NewPublisher(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), 8, logging.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(stopped)
	}()

	pub.PaymentSucceeded(uuid.New())
	require.Eventually(t, func() bool {
		conn := b.lastConn()
		return conn != nil && len(conn.ch.publishedMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
}
