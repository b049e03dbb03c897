package queue

import (
	"github.com/streadway/amqp"
)

// AMQPConnection abstracts the RabbitMQ connection to enable dependency
// injection and testing with mock implementations.
type AMQPConnection interface {
	Channel() (AMQPChannel, error)
	Close() error
}

// AMQPChannel abstracts the RabbitMQ channel.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// AMQPDialer allows injecting custom dialers for testing.
type AMQPDialer interface {
	Dial(url string) (AMQPConnection, error)
}

// RealAMQPConnection wraps a real amqp.Connection.
type RealAMQPConnection struct {
	conn *amqp.Connection
}

func (r *RealAMQPConnection) Channel() (AMQPChannel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &RealAMQPChannel{ch: ch}, nil
}

func (r *RealAMQPConnection) Close() error {
	return r.conn.Close()
}

// RealAMQPChannel wraps a real amqp.Channel.
type RealAMQPChannel struct {
	ch *amqp.Channel
}

func (r *RealAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return r.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (r *RealAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return r.ch.Publish(exchange, key, mandatory, immediate, msg)
}

func (r *RealAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return r.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (r *RealAMQPChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return r.ch.Qos(prefetchCount, prefetchSize, global)
}

func (r *RealAMQPChannel) Close() error {
	return r.ch.Close()
}

// RealAMQPDialer dials with the real AMQP library.
type RealAMQPDialer struct{}

func (r *RealAMQPDialer) Dial(url string) (AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &RealAMQPConnection{conn: conn}, nil
}
