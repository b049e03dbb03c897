// Package queue connects the gateway to its peers over RabbitMQ. The gateway
// owns one durable queue; messages it cannot consume are dead-lettered to a
// DLQ for operator inspection instead of being retried forever.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/config"
)

// ErrConsumeMessage marks a delivery that can never succeed: unknown type,
// malformed payload, missing entity, or a stale lifecycle state. Such
// deliveries are dead-lettered, not requeued.
var ErrConsumeMessage = errors.New("message cannot be consumed")

// Publisher publishes envelopes to named queues.
type Publisher interface {
	Publish(ctx context.Context, queueName, msgType string, payload interface{}) error
	Close() error
}

// Handler processes one inbound envelope.
type Handler func(ctx context.Context, env *Envelope) error

// Broker is the RabbitMQ runtime: it declares the topology and serves both
// publishing and the consume loop.
type Broker struct {
	connection AMQPConnection
	channel    AMQPChannel
	cfg        config.BrokerConfig

	mu sync.Mutex
}

// NewBroker connects to RabbitMQ and declares the gateway topology.
func NewBroker(cfg config.BrokerConfig) (*Broker, error) {
	return NewBrokerWithDialer(cfg, &RealAMQPDialer{})
}

// NewBrokerWithDialer allows injecting a dialer for testing.
func NewBrokerWithDialer(cfg config.BrokerConfig, dialer AMQPDialer) (*Broker, error) {
	conn, err := dialer.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	// The DLQ must exist before the own queue references it.
	if _, err := ch.QueueDeclare(cfg.DLQ, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring dlq %q: %w", cfg.DLQ, err)
	}
	ownArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQ,
	}
	if _, err := ch.QueueDeclare(cfg.OwnQueue, true, false, false, false, ownArgs); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", cfg.OwnQueue, err)
	}
	for _, peer := range []string{cfg.SchedulerQueue, cfg.JiraQueue, cfg.YouTrackQueue, cfg.PoolManagerQueue} {
		if peer == "" {
			continue
		}
		if _, err := ch.QueueDeclare(peer, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declaring queue %q: %w", peer, err)
		}
	}

	return &Broker{connection: conn, channel: ch, cfg: cfg}, nil
}

// Publish sends a typed payload to a named queue through the default
// exchange.
func (b *Broker) Publish(ctx context.Context, queueName, msgType string, payload interface{}) error {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.channel.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publishing %s to %q: %w", msgType, queueName, err)
	}
	common.Logger.WithFields(logrus.Fields{
		"queue": queueName,
		"type":  msgType,
	}).Debug("published message")
	return nil
}

// Consume runs the delivery loop with a pool of workers until ctx ends.
// Handled deliveries are acked; deliveries failing with ErrConsumeMessage
// are dead-lettered; transient failures are requeued.
func (b *Broker) Consume(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	if err := b.channel.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}
	deliveries, err := b.channel.Consume(b.cfg.OwnQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consuming %q: %w", b.cfg.OwnQueue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					b.handleDelivery(ctx, &d, handler)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (b *Broker) handleDelivery(ctx context.Context, d *amqp.Delivery, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		common.Logger.WithError(err).Error("dropping malformed delivery")
		_ = d.Nack(false, false)
		return
	}
	err := handler(ctx, &env)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrConsumeMessage):
		common.Logger.WithFields(logrus.Fields{
			"type":  env.Type,
			"error": err.Error(),
		}).Warn("dead-lettering message")
		_ = d.Nack(false, false)
	default:
		common.Logger.WithFields(logrus.Fields{
			"type":  env.Type,
			"error": err.Error(),
		}).Error("requeueing message after transient failure")
		_ = d.Nack(false, true)
	}
}

// Close releases the channel and connection.
func (b *Broker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.connection != nil {
		b.connection.Close()
	}
	return nil
}
