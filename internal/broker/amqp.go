// Package broker carries payment success events from the payments API to the
// notification service over RabbitMQ.
//
// Both sides share one fixed topology: a durable fanout exchange named
// "notifications" with the durable queue "payment_notifications" bound to it.
// A Connection owns the broker connection and its channel, dials lazily under
// a mutex, and re-dials when either has been closed by the server. Dialling
// follows a bounded, fixed-delay RetryPolicy; running out of attempts yields
// ErrBrokerUnavailable.
//
// The Publisher never blocks its callers: events are queued and a dedicated
// goroutine publishes them, logging failures. The Consumer handles one
// delivery at a time (prefetch 1) and acknowledges every delivery once it
// has been dealt with, including malformed ones. A Supervisor restarts the
// consumer with exponential backoff when its run ends with an error.
package broker

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "notifications"
	QueueName    = "payment_notifications"
)

var (
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrConnectionClosed  = errors.New("broker connection closed")
	ErrDeliveriesClosed  = errors.New("delivery stream closed")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrPublishQueueFull  = errors.New("publish queue full")
)

// Channel is the subset of *amqp.Channel the publisher and consumer use.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	IsClosed() bool
	Close() error
}

type Conn interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

type Dialer func(url string) (Conn, error)

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func DialAMQP(url string) (Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// DeclareTopology is idempotent; both sides call it on every (re)connect.
func DeclareTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("DeclareTopology: exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("DeclareTopology: queue: %w", err)
	}
	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return fmt.Errorf("DeclareTopology: bind: %w", err)
	}
	return nil
}
