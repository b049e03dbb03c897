package queue

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/fuzzbed/gateway/common"
)

// UnsentSink parks payloads that could not be published so a drain loop can
// retry them later.
type UnsentSink interface {
	Park(ctx context.Context, target, msgType string, payload []byte) error
}

// Outbox publishes through a Publisher and falls back to the sink when the
// broker is unavailable. Domain writes never fail because of a broker
// outage.
type Outbox struct {
	publisher Publisher
	sink      UnsentSink
}

// NewOutbox wires a publisher with its fallback sink.
func NewOutbox(publisher Publisher, sink UnsentSink) *Outbox {
	return &Outbox{publisher: publisher, sink: sink}
}

// Send publishes, parking the message on failure.
func (o *Outbox) Send(ctx context.Context, queueName, msgType string, payload interface{}) error {
	err := o.publisher.Publish(ctx, queueName, msgType, payload)
	if err == nil {
		return nil
	}
	common.Logger.WithFields(logrus.Fields{
		"queue": queueName,
		"type":  msgType,
		"error": err.Error(),
	}).Warn("publish failed, parking message")
	raw, merr := json.Marshal(payload)
	if merr != nil {
		return merr
	}
	return o.sink.Park(ctx, queueName, msgType, raw)
}
