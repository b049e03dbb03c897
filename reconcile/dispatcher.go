// Package reconcile consumes broker events from the scheduler, the crash
// analyzer, the bug-tracker reporters, and the pool manager, and folds them
// into the gateway's state. Events that reference missing entities or arrive
// in an impossible lifecycle state are dead-lettered.
package reconcile

import (
	"context"
	"fmt"

	"github.com/fuzzbed/gateway/config"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/queue"
)

// Sender publishes outbound messages, parking them when the broker is down.
type Sender interface {
	Send(ctx context.Context, queueName, msgType string, payload interface{}) error
}

// Dispatcher routes inbound envelopes to their handlers.
type Dispatcher struct {
	store  *db.Store
	sender Sender
	broker config.BrokerConfig
}

// NewDispatcher wires the consumer side of the gateway.
func NewDispatcher(store *db.Store, sender Sender, broker config.BrokerConfig) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, broker: broker}
}

// Handle implements queue.Handler.
func (d *Dispatcher) Handle(ctx context.Context, env *queue.Envelope) error {
	switch env.Type {
	case queue.TypeUniqueCrashFound:
		return d.handleUniqueCrash(ctx, env)
	case queue.TypeDuplicateCrashFound:
		return d.handleDuplicateCrash(ctx, env)
	case queue.TypeFuzzerVerified:
		return d.handleFuzzerVerified(ctx, env)
	case queue.TypeFuzzerStopped:
		return d.handleFuzzerStopped(ctx, env)
	case queue.TypeFuzzerStatusChanged:
		return d.handleFuzzerStatusChanged(ctx, env)
	case queue.TypeFuzzerRunResult:
		return d.handleFuzzerRunResult(ctx, env)
	case queue.TypeIntegrationResult:
		return d.handleIntegrationResult(ctx, env)
	case queue.TypeReportUndelivered:
		return d.handleReportUndelivered(ctx, env)
	case queue.TypePoolDeleted:
		return d.handlePoolDeleted(ctx, env)
	}
	return fmt.Errorf("%w: unknown message type %q", queue.ErrConsumeMessage, env.Type)
}
