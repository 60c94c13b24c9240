package broker_test

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/payflow/internal/broker"
	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
	"github.com/josh-kwaku/payflow/internal/repository"
	"github.com/josh-kwaku/payflow/internal/service/notification"
	"github.com/josh-kwaku/payflow/internal/service/payment"
	"github.com/josh-kwaku/payflow/internal/testutil"
)

func TestPaymentSuccessReachesNotificationStore(t *testing.T) {
	url := testutil.SetupRabbitMQ(t)
	db := testutil.SetupTestDB(t)
	logger := logging.Discard()
	policy := broker.RetryPolicy{MaxAttempts: 5, Delay: 500 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubConn := broker.NewConnection(url, policy, "publisher", logger, nil)
	defer pubConn.Close()
	publisher := broker.NewPublisher(pubConn, 16, logger, nil)
	go publisher.Run(ctx)

	notifications := notification.NewService(repository.NewNotificationRepository(db), nil)
	subConn := broker.NewConnection(url, policy, "consumer", logger, nil)
	defer subConn.Close()
	consumer := broker.NewConsumer(subConn, notifications, logger, nil)
	supervisor := broker.NewSupervisor(consumer.Run, 100*time.Millisecond, time.Second, logger, nil)
	go supervisor.Start(ctx)

	require.Eventually(t, func() bool {
		return consumer.State() == broker.StateConsuming
	}, 30*time.Second, 50*time.Millisecond)

	payments := payment.NewService(repository.NewPaymentRepository(db), publisher, nil)
	p, err := payments.Create(ctx, payment.CreatePaymentRequest{Amount: decimal.RequireFromString("10.00")})
	require.NoError(t, err)
	_, err = payments.Process(ctx, p.ID, true)
	require.NoError(t, err)

	var got []domain.Notification
	require.Eventually(t, func() bool {
		got, err = notifications.List(ctx)
		return err == nil && len(got) == 1
	}, 15*time.Second, 100*time.Millisecond)

	n := got[0]
	assert.Equal(t, domain.NotificationTypeOrderPlaced, n.Type)
	assert.Equal(t, "Payment "+p.ID.String()+" completed successfully", n.Message)
	assert.Nil(t, n.Recipient)
	assert.Equal(t, domain.NotificationStatusSent, n.Status)

	// A rejected second success must not produce another notification.
	_, err = payments.Process(ctx, p.ID, true)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	time.Sleep(500 * time.Millisecond)
	got, err = notifications.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestConsumerSkipsMalformedMessages(t *testing.T) {
	url := testutil.SetupRabbitMQ(t)
	logger := logging.Discard()
	policy := broker.RetryPolicy{MaxAttempts: 5, Delay: 500 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := broker.NewConnection(url, policy, "raw", logger, nil)
	defer conn.Close()
	ch, err := conn.Channel(ctx)
	require.NoError(t, err)

	store := repository.NewMemoryNotificationRepository()
	subConn := broker.NewConnection(url, policy, "consumer", logger, nil)
	defer subConn.Close()
	consumer := broker.NewConsumer(subConn, notification.NewService(store, nil), logger, nil)
	go func() { _ = consumer.Run(ctx) }()
	require.Eventually(t, func() bool {
		return consumer.State() == broker.StateConsuming
	}, 30*time.Second, 50*time.Millisecond)

	for _, body := range []string{`{oops`, `{"type":"payment_complete","payment_id":"p-7","message":"ok"}`} {
		require.NoError(t, ch.PublishWithContext(ctx, broker.ExchangeName, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(body),
		}))
	}

	require.Eventually(t, func() bool {
		all, _ := store.List(ctx)
		return len(all) == 1
	}, 15*time.Second, 100*time.Millisecond)
}
