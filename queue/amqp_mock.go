package queue

import (
	"sync"

	"github.com/streadway/amqp"
)

// MockAMQPDialer returns a shared mock connection.
type MockAMQPDialer struct {
	Conn    *MockAMQPConnection
	DialErr error
}

func NewMockAMQPDialer() *MockAMQPDialer {
	return &MockAMQPDialer{Conn: &MockAMQPConnection{Chan: NewMockAMQPChannel()}}
}

func (d *MockAMQPDialer) Dial(url string) (AMQPConnection, error) {
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Conn, nil
}

// MockAMQPConnection hands out a shared mock channel.
type MockAMQPConnection struct {
	Chan    *MockAMQPChannel
	ChanErr error
	Closed  bool
}

func (c *MockAMQPConnection) Channel() (AMQPChannel, error) {
	if c.ChanErr != nil {
		return nil, c.ChanErr
	}
	return c.Chan, nil
}

func (c *MockAMQPConnection) Close() error {
	c.Closed = true
	return nil
}

// PublishedMessage records one Publish call.
type PublishedMessage struct {
	Exchange string
	Key      string
	Body     []byte
}

// MockAMQPChannel records declared queues and published messages, and feeds
// deliveries to consumers.
type MockAMQPChannel struct {
	mu         sync.Mutex
	Declared   map[string]amqp.Table
	Published  []PublishedMessage
	PublishErr error
	Deliveries chan amqp.Delivery
	Closed     bool
}

func NewMockAMQPChannel() *MockAMQPChannel {
	return &MockAMQPChannel{
		Declared:   make(map[string]amqp.Table),
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

func (c *MockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Declared[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *MockAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.Published = append(c.Published, PublishedMessage{Exchange: exchange, Key: key, Body: msg.Body})
	return nil
}

func (c *MockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.Deliveries, nil
}

func (c *MockAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return nil
}

func (c *MockAMQPChannel) Close() error {
	c.Closed = true
	return nil
}

// MockAcknowledger records the terminal state of one delivery.
type MockAcknowledger struct {
	mu      sync.Mutex
	Acked   bool
	Nacked  bool
	Requeue bool
	Done    chan struct{}
}

func NewMockAcknowledger() *MockAcknowledger {
	return &MockAcknowledger{Done: make(chan struct{})}
}

func (a *MockAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acked = true
	close(a.Done)
	return nil
}

func (a *MockAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacked = true
	a.Requeue = requeue
	close(a.Done)
	return nil
}

func (a *MockAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}
