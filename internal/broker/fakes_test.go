package broker

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/payflow/internal/domain"
	"github.com/josh-kwaku/payflow/internal/logging"
)

type fakeChannel struct {
	mu         sync.Mutex
	closed     bool
	exchanges  []string
	queues     []string
	bindings   []string
	qos        []int
	published  []amqp.Publishing
	publishErr error
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return errors.New("exchange must be durable")
	}
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.queues = append(c.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, name+"<-"+exchange+"/"+key)
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qos = append(c.qos, prefetchCount)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	if exchange != ExchangeName {
		return errors.New("unexpected exchange " + exchange)
	}
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("consumer must ack manually")
	}
	if queue != QueueName {
		return nil, errors.New("unexpected queue " + queue)
	}
	return c.deliveries, nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) publishedMessages() []amqp.Publishing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]amqp.Publishing(nil), c.published...)
}

type fakeConn struct {
	mu     sync.Mutex
	ch     *fakeChannel
	closed bool
}

func (c *fakeConn) Channel() (Channel, error) {
	return c.ch, nil
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeBroker hands out a fresh connection per dial. The first failDials
// dials fail.
type fakeBroker struct {
	mu         sync.Mutex
	dials      int
	failDials  int
	conns      []*fakeConn
	newChannel func() *fakeChannel
}

func (b *fakeBroker) dial(string) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.dials <= b.failDials {
		return nil, errors.New("connection refused")
	}
	ch := &fakeChannel{}
	if b.newChannel != nil {
		ch = b.newChannel()
	}
	conn := &fakeConn{ch: ch}
	b.conns = append(b.conns, conn)
	return conn, nil
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

func (b *fakeBroker) lastConn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

type fakeAcker struct {
	mu    sync.Mutex
	acked []uint64
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(uint64, bool, bool) error {
	return errors.New("nack not expected")
}

func (a *fakeAcker) Reject(uint64, bool) error {
	return errors.New("reject not expected")
}

func (a *fakeAcker) ackedTags() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...)
}

type fakeHandler struct {
	mu   sync.Mutex
	msgs []domain.EventMessage
	err  error
}

func (h *fakeHandler) HandlePaymentEvent(_ context.Context, msg domain.EventMessage) (*domain.Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	if h.err != nil {
		return nil, h.err
	}
	return &domain.Notification{Type: domain.NotificationTypeOrDefault(msg.Type), Message: msg.Message}, nil
}

func (h *fakeHandler) received() []domain.EventMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.EventMessage(nil), h.msgs...)
}

func newTestConnection(b *fakeBroker, policy RetryPolicy) *Connection {
	conn := NewConnection("amqp://test", policy, "test", logging.Discard(), nil)
	conn.dial = b.dial
	return conn
}
