package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
	"github.com/fuzzbed/gateway/storage"
)

// ObjectEraser removes stored artifacts under a key prefix.
type ObjectEraser interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// Eraser permanently removes documents whose trash-bin grace period has run
// out, together with their stored artifacts, and drops expired sessions.
type Eraser struct {
	store    *db.Store
	objects  ObjectEraser
	interval time.Duration
}

// NewEraser builds the erasure sweeper.
func NewEraser(store *db.Store, objects ObjectEraser, interval time.Duration) *Eraser {
	return &Eraser{store: store, objects: objects, interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (e *Eraser) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.SweepOnce(ctx); err != nil {
				common.Logger.WithError(err).Error("erasure sweep failed")
			}
		}
	}
}

// SweepOnce erases every document whose erasure date has passed. Revisions
// and fuzzers drop their object-store artifacts first, so a crash between
// the two deletes leaves the document behind for the next sweep rather than
// orphaning objects.
func (e *Eraser) SweepOnce(ctx context.Context) error {
	revisions, err := e.store.Revisions.ListErasing(ctx)
	if err != nil {
		return err
	}
	for i := range revisions {
		revision := &revisions[i]
		if err := e.objects.DeletePrefix(ctx, storage.RevisionPrefix(revision.FuzzerID, revision.ID)); err != nil {
			return err
		}
		if err := e.store.Revisions.Erase(ctx, revision); err != nil {
			return err
		}
	}

	fuzzers, err := e.store.Fuzzers.ListErasing(ctx)
	if err != nil {
		return err
	}
	for i := range fuzzers {
		fuzzer := &fuzzers[i]
		if err := e.objects.DeletePrefix(ctx, storage.FuzzerPrefix(fuzzer.ID)); err != nil {
			return err
		}
		if err := e.store.Fuzzers.Erase(ctx, fuzzer); err != nil {
			return err
		}
	}

	integrations, err := e.store.Integrations.ListErasing(ctx)
	if err != nil {
		return err
	}
	for i := range integrations {
		if err := e.store.Integrations.Erase(ctx, &integrations[i]); err != nil {
			return err
		}
	}

	projects, err := e.store.Projects.ListErasing(ctx)
	if err != nil {
		return err
	}
	for i := range projects {
		if err := e.store.Projects.Erase(ctx, &projects[i]); err != nil {
			return err
		}
	}

	users, err := e.store.Users.ListErasing(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		if err := e.store.Users.Erase(ctx, &users[i]); err != nil {
			return err
		}
	}

	deleted, err := e.store.Sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	erased := len(revisions) + len(fuzzers) + len(integrations) + len(projects) + len(users)
	if erased > 0 || deleted > 0 {
		common.Logger.WithFields(logrus.Fields{
			"documents": erased,
			"sessions":  deleted,
		}).Info("erasure sweep done")
	}
	return nil
}

// ParkedSink adapts the unsent-message store to the outbox sink.
type ParkedSink struct {
	unsent db.UnsentStore
}

// NewParkedSink wires the sink over the store.
func NewParkedSink(unsent db.UnsentStore) *ParkedSink {
	return &ParkedSink{unsent: unsent}
}

// Park stores an undeliverable payload for the drain loop.
func (s *ParkedSink) Park(ctx context.Context, target, msgType string, payload []byte) error {
	return s.unsent.Add(ctx, &model.UnsentMessage{
		Target:  target,
		Type:    msgType,
		Payload: string(payload),
		Created: common.FormatTime(time.Now().UTC()),
	})
}

// Drainer retries parked messages once the broker is reachable again.
type Drainer struct {
	unsent    db.UnsentStore
	publisher queue.Publisher
	interval  time.Duration
	batch     int
}

// NewDrainer builds the retry loop for parked messages.
func NewDrainer(unsent db.UnsentStore, publisher queue.Publisher, interval time.Duration) *Drainer {
	return &Drainer{unsent: unsent, publisher: publisher, interval: interval, batch: 100}
}

// Run drains on a fixed interval until the context is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx); err != nil {
				common.Logger.WithError(err).Warn("drain of parked messages failed")
			}
		}
	}
}

// DrainOnce republishes one batch of parked messages, deleting each on
// success. A publish failure stops the batch; the broker is still down.
func (d *Drainer) DrainOnce(ctx context.Context) error {
	msgs, err := d.unsent.List(ctx, d.batch)
	if err != nil {
		return err
	}
	for i := range msgs {
		msg := &msgs[i]
		if err := d.publisher.Publish(ctx, msg.Target, msg.Type, json.RawMessage(msg.Payload)); err != nil {
			return err
		}
		if err := d.unsent.Delete(ctx, msg); err != nil {
			return err
		}
		common.Logger.WithFields(logrus.Fields{
			"queue": msg.Target,
			"type":  msg.Type,
		}).Info("delivered parked message")
	}
	return nil
}
