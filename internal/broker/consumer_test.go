package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/metrics"
)

func deliveriesOf(acker *fakeAcker, bodies ...string) chan amqp.Delivery {
	ch := make(chan amqp.Delivery, len(bodies))
	for i, body := range bodies {
		ch <- amqp.Delivery{
			Acknowledger: acker,
			DeliveryTag:  uint64(i + 1),
			Body:         []byte(body),
		}
	}
	return ch
}

func newTestConsumer(deliveries chan amqp.Delivery, handler EventHandler, m *metrics.Metrics) (*Consumer, *fakeBroker) {
	b := &fakeBroker{newChannel: func() *fakeChannel {
		return &fakeChannel{deliveries: deliveries}
	}}
	return NewConsumer(newTestConnection(b, RetryPolicy{MaxAttempts: 1}), handler, logging.Discard(), m), b
}

func TestConsumer_AcksEveryDelivery(t *testing.T) {
	m := metrics.New()
	acker := &fakeAcker{}
	deliveries := deliveriesOf(acker,
		`{not json`,
		`{"type":"payment_complete","payment_id":"p-1","message":"Payment p-1 completed successfully"}`,
		`[1,2,3]`,
		`{"payment_id":"p-2"}`,
	)
	close(deliveries)
	handler := &fakeHandler{}
	consumer, _ := newTestConsumer(deliveries, handler, m)

	err := consumer.Run(context.Background())
	assert.ErrorIs(t, err, ErrDeliveriesClosed, "a closed delivery stream means the connection dropped")

	assert.Equal(t, []uint64{1, 2, 3, 4}, acker.ackedTags())
	received := handler.received()
	require.Len(t, received, 2)
	assert.Equal(t, "p-1", received[0].PaymentID)
	assert.Equal(t, "p-2", received[1].PaymentID)
	assert.Empty(t, received[1].Type)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("malformed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("processed")))
	assert.Equal(t, StateDisconnected, consumer.State())
}

func TestConsumer_PersistenceFailureIsAcked(t *testing.T) {
	m := metrics.New()
	acker := &fakeAcker{}
	deliveries := deliveriesOf(acker, `{"type":"payment_complete","payment_id":"p-1","message":"done"}`)
	close(deliveries)
	handler := &fakeHandler{err: errors.New("disk full")}
	consumer, _ := newTestConsumer(deliveries, handler, m)

	err := consumer.Run(context.Background())
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
	assert.Equal(t, []uint64{1}, acker.ackedTags(), "failed messages are dropped, not redelivered")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesConsumed.WithLabelValues("failed")))
}

func TestConsumer_ConnectSetsPrefetchOne(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	consumer, b := newTestConsumer(deliveries, &fakeHandler{}, nil)

	require.NoError(t, consumer.Connect(context.Background()))
	assert.Equal(t, StateConsuming, consumer.State())
	assert.Equal(t, []int{1}, b.lastConn().ch.qos)
}

func TestConsumer_ConnectFailure(t *testing.T) {
	consumer := NewConsumer(
		newTestConnection(&fakeBroker{failDials: 100}, RetryPolicy{MaxAttempts: 3}),
		&fakeHandler{}, logging.Discard(), nil,
	)

	err := consumer.Run(context.Background())
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, StateDisconnected, consumer.State())
}

func TestConsumer_ConsumeWithoutConnect(t *testing.T) {
	consumer, _ := newTestConsumer(make(chan amqp.Delivery), &fakeHandler{}, nil)
	assert.Error(t, consumer.Consume(context.Background()))
}

func TestConsumer_CancelStopsCleanly(t *testing.T) {
	acker := &fakeAcker{}
	deliveries := make(chan amqp.Delivery, 1)
	handler := &fakeHandler{}
	consumer, b := newTestConsumer(deliveries, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return consumer.State() == StateConsuming
	}, time.Second, 5*time.Millisecond)

	deliveries <- amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: []byte(`{"payment_id":"p-9"}`)}
	require.Eventually(t, func() bool {
		return len(acker.ackedTags()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}

	assert.Equal(t, StateClosed, consumer.State())
	assert.True(t, b.lastConn().IsClosed(), "connection released on exit")
	assert.Len(t, handler.received(), 1)
}
