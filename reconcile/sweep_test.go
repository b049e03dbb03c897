package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db/dbtest"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/storage"
)

type fakeObjectEraser struct {
	prefixes []string
	err      error
}

func (f *fakeObjectEraser) DeletePrefix(ctx context.Context, prefix string) error {
	if f.err != nil {
		return f.err
	}
	f.prefixes = append(f.prefixes, prefix)
	return nil
}

type fakePublisher struct {
	published []sentMessage
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, queueName, msgType string, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, sentMessage{Queue: queueName, Type: msgType, Payload: payload})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func past() model.Erasable {
	return model.Erasable{ErasureDate: common.FormatTime(time.Now().UTC().Add(-time.Hour))}
}

func future() model.Erasable {
	return model.Erasable{ErasureDate: common.FormatTime(time.Now().UTC().Add(time.Hour))}
}

func TestEraserSweepsExpiredDocuments(t *testing.T) {
	store, fake := dbtest.NewStore()
	objects := &fakeObjectEraser{}
	eraser := NewEraser(store, objects, time.Minute)

	fake.Revisions["r1"] = &model.Revision{ID: "r1", Rev: "1", Kind: model.KindRevision, FuzzerID: "f1", Erasable: past()}
	fake.Revisions["r2"] = &model.Revision{ID: "r2", Rev: "1", Kind: model.KindRevision, FuzzerID: "f1", Erasable: future()}
	fake.Fuzzers["f1"] = &model.Fuzzer{ID: "f1", Rev: "1", Kind: model.KindFuzzer, ProjectID: "p1", Erasable: past()}
	fake.Projects["p1"] = &model.Project{ID: "p1", Rev: "1", Kind: model.KindProject, OwnerID: "u1", Erasable: past()}
	fake.Integrations["i1"] = &model.Integration{ID: "i1", Rev: "1", Kind: model.KindIntegration, ProjectID: "p1", Erasable: past()}
	fake.Users["u1"] = &model.User{ID: "u1", Rev: "1", Kind: model.KindUser, Name: "alice", Erasable: past()}
	fake.Users["u2"] = &model.User{ID: "u2", Rev: "1", Kind: model.KindUser, Name: "bob"}

	require.NoError(t, eraser.SweepOnce(context.Background()))

	assert.NotContains(t, fake.Revisions, "r1")
	assert.Contains(t, fake.Revisions, "r2")
	assert.Empty(t, fake.Fuzzers)
	assert.Empty(t, fake.Projects)
	assert.Empty(t, fake.Integrations)
	assert.NotContains(t, fake.Users, "u1")
	assert.Contains(t, fake.Users, "u2")

	assert.Contains(t, objects.prefixes, storage.RevisionPrefix("f1", "r1"))
	assert.Contains(t, objects.prefixes, storage.FuzzerPrefix("f1"))
}

func TestEraserDropsExpiredSessions(t *testing.T) {
	store, fake := dbtest.NewStore()
	eraser := NewEraser(store, &fakeObjectEraser{}, time.Minute)

	fake.Sessions["old"] = &model.Session{ID: "old", Kind: model.KindSession, UserID: "u1", Expires: common.FormatTime(time.Now().UTC().Add(-time.Minute))}
	fake.Sessions["live"] = &model.Session{ID: "live", Kind: model.KindSession, UserID: "u1", Expires: common.FormatTime(time.Now().UTC().Add(time.Hour))}

	require.NoError(t, eraser.SweepOnce(context.Background()))
	assert.NotContains(t, fake.Sessions, "old")
	assert.Contains(t, fake.Sessions, "live")
}

func TestEraserKeepsDocumentWhenObjectDeleteFails(t *testing.T) {
	store, fake := dbtest.NewStore()
	objects := &fakeObjectEraser{err: errors.New("s3 down")}
	eraser := NewEraser(store, objects, time.Minute)

	fake.Revisions["r1"] = &model.Revision{ID: "r1", Rev: "1", Kind: model.KindRevision, FuzzerID: "f1", Erasable: past()}

	require.Error(t, eraser.SweepOnce(context.Background()))
	assert.Contains(t, fake.Revisions, "r1")
}

func TestParkedSinkStoresPayload(t *testing.T) {
	store, fake := dbtest.NewStore()
	sink := NewParkedSink(store.Unsent)

	require.NoError(t, sink.Park(context.Background(), "scheduler", "start_fuzzer", []byte(`{"fuzzer_id":"f1"}`)))

	require.Len(t, fake.Unsent, 1)
	for _, msg := range fake.Unsent {
		assert.Equal(t, "scheduler", msg.Target)
		assert.Equal(t, "start_fuzzer", msg.Type)
		assert.JSONEq(t, `{"fuzzer_id":"f1"}`, msg.Payload)
		assert.NotEmpty(t, msg.Created)
	}
}

func TestDrainerRepublishesAndDeletes(t *testing.T) {
	store, fake := dbtest.NewStore()
	publisher := &fakePublisher{}
	drainer := NewDrainer(store.Unsent, publisher, time.Minute)

	fake.Unsent["m1"] = &model.UnsentMessage{ID: "m1", Kind: model.KindUnsentMessage, Target: "scheduler", Type: "stop_fuzzer", Payload: `{"fuzzer_id":"f1"}`}

	require.NoError(t, drainer.DrainOnce(context.Background()))
	assert.Empty(t, fake.Unsent)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "scheduler", publisher.published[0].Queue)
	assert.Equal(t, "stop_fuzzer", publisher.published[0].Type)
	raw, err := json.Marshal(publisher.published[0].Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fuzzer_id":"f1"}`, string(raw))
}

func TestDrainerStopsOnPublishFailure(t *testing.T) {
	store, fake := dbtest.NewStore()
	publisher := &fakePublisher{err: errors.New("broker down")}
	drainer := NewDrainer(store.Unsent, publisher, time.Minute)

	fake.Unsent["m1"] = &model.UnsentMessage{ID: "m1", Kind: model.KindUnsentMessage, Target: "scheduler", Type: "stop_fuzzer", Payload: `{}`}

	require.Error(t, drainer.DrainOnce(context.Background()))
	assert.Len(t, fake.Unsent, 1)
}
