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
	"github.com/fuzzbed/gateway/config"
	"github.com/fuzzbed/gateway/db/dbtest"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

type sentMessage struct {
	Queue   string
	Type    string
	Payload interface{}
}

type recordingSender struct {
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(ctx context.Context, queueName, msgType string, payload interface{}) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{Queue: queueName, Type: msgType, Payload: payload})
	return nil
}

func testBroker() config.BrokerConfig {
	return config.BrokerConfig{
		SchedulerQueue: "scheduler",
		JiraQueue:      "reporter-jira",
		YouTrackQueue:  "reporter-youtrack",
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *dbtest.Fake, *recordingSender) {
	t.Helper()
	store, fake := dbtest.NewStore()
	sender := &recordingSender{}
	return NewDispatcher(store, sender, testBroker()), fake, sender
}

func envelope(t *testing.T, msgType string, payload interface{}) *queue.Envelope {
	t.Helper()
	env, err := queue.NewEnvelope(msgType, payload)
	require.NoError(t, err)
	return env
}

func seedFuzzer(fake *dbtest.Fake, id, projectID string) *model.Fuzzer {
	fuzzer := &model.Fuzzer{
		ID:        id,
		Rev:       "1",
		Kind:      model.KindFuzzer,
		Name:      "fz-" + id,
		ProjectID: projectID,
	}
	fake.Fuzzers[id] = fuzzer
	return fuzzer
}

func seedRevision(fake *dbtest.Fake, id, fuzzerID string, status model.RevisionStatus) *model.Revision {
	revision := &model.Revision{
		ID:       id,
		Rev:      "1",
		Kind:     model.KindRevision,
		Name:     "rev-" + id,
		FuzzerID: fuzzerID,
		Status:   status,
	}
	fake.Revisions[id] = revision
	return revision
}

func seedIntegration(fake *dbtest.Fake, id, projectID string, tracker model.BugTrackerType, enabled bool) *model.Integration {
	integration := &model.Integration{
		ID:        id,
		Rev:       "1",
		Kind:      model.KindIntegration,
		Name:      "int-" + id,
		ProjectID: projectID,
		Status:    model.IntegrationSucceeded,
		Enabled:   enabled,
		UpdateRev: "u1",
		Config:    model.IntegrationConfig{Type: tracker},
	}
	fake.Integrations[id] = integration
	return integration
}

func TestHandleUnknownTypeIsDeadLettered(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	err := d.Handle(context.Background(), &queue.Envelope{Type: "mystery", Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, queue.ErrConsumeMessage)
}

func TestHandleFuzzerVerifiedSuccess(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedRevision(fake, "r1", "f1", model.RevisionVerifying)

	env := envelope(t, queue.TypeFuzzerVerified, queue.FuzzerVerifiedPayload{
		FuzzerID: "f1", RevisionID: "r1", Verified: true,
	})
	require.NoError(t, d.Handle(context.Background(), env))

	got := fake.Revisions["r1"]
	assert.Equal(t, model.RevisionRunning, got.Status)
	assert.True(t, got.IsVerified)
	assert.Equal(t, model.HealthOk, got.Health)
	assert.NotEmpty(t, got.LastStartDate)
}

func TestHandleFuzzerVerifiedRejection(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedRevision(fake, "r1", "f1", model.RevisionVerifying)

	env := envelope(t, queue.TypeFuzzerVerified, queue.FuzzerVerifiedPayload{
		FuzzerID: "f1", RevisionID: "r1", Verified: false, Feedback: "target binary missing",
	})
	require.NoError(t, d.Handle(context.Background(), env))

	got := fake.Revisions["r1"]
	assert.Equal(t, model.RevisionUnverified, got.Status)
	assert.False(t, got.IsVerified)
	assert.Equal(t, model.HealthError, got.Health)
	assert.Equal(t, "target binary missing", got.Feedback)
}

func TestHandleFuzzerVerifiedWrongState(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedRevision(fake, "r1", "f1", model.RevisionStopped)

	env := envelope(t, queue.TypeFuzzerVerified, queue.FuzzerVerifiedPayload{
		FuzzerID: "f1", RevisionID: "r1", Verified: true,
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandleFuzzerVerifiedMissingRevision(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	env := envelope(t, queue.TypeFuzzerVerified, queue.FuzzerVerifiedPayload{
		FuzzerID: "f1", RevisionID: "nope", Verified: true,
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandleFuzzerStoppedIsIdempotent(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedRevision(fake, "r1", "f1", model.RevisionRunning)

	env := envelope(t, queue.TypeFuzzerStopped, queue.FuzzerStoppedPayload{
		FuzzerID: "f1", RevisionID: "r1", Feedback: "pool drained",
	})
	require.NoError(t, d.Handle(context.Background(), env))
	require.NoError(t, d.Handle(context.Background(), env))

	got := fake.Revisions["r1"]
	assert.Equal(t, model.RevisionStopped, got.Status)
	assert.Equal(t, "pool drained", got.Feedback)
	assert.NotEmpty(t, got.LastStopDate)
	assert.Equal(t, "2", got.Rev)
}

func TestHandleFuzzerStatusChanged(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedRevision(fake, "r1", "f1", model.RevisionRunning)

	env := envelope(t, queue.TypeFuzzerStatusChanged, queue.FuzzerStatusChangedPayload{
		FuzzerID: "f1", RevisionID: "r1", Health: model.HealthWarning, Feedback: "slow executions",
	})
	require.NoError(t, d.Handle(context.Background(), env))
	assert.Equal(t, model.HealthWarning, fake.Revisions["r1"].Health)

	stopped := seedRevision(fake, "r2", "f1", model.RevisionStopped)
	env = envelope(t, queue.TypeFuzzerStatusChanged, queue.FuzzerStatusChangedPayload{
		FuzzerID: "f1", RevisionID: stopped.ID, Health: model.HealthError,
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandleFuzzerRunResult(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")

	env := envelope(t, queue.TypeFuzzerRunResult, queue.FuzzerRunResultPayload{
		FuzzerID:  "f1",
		FuzzerRev: "r1",
		Family:    model.FamilyLibFuzzer,
		Date:      "2026-08-24T10:00:00Z",
		LibFuzzer: &model.LibFuzzerStats{ExecsPerSec: 1200, ExecsDone: 500000},
	})
	require.NoError(t, d.Handle(context.Background(), env))
	require.Len(t, fake.FuzzerStats, 1)
	assert.Equal(t, model.FamilyLibFuzzer, fake.FuzzerStats[0].Family)
	assert.EqualValues(t, 1200, fake.FuzzerStats[0].LibFuzzer.ExecsPerSec)
}

func TestHandleFuzzerRunResultFamilyMismatch(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")

	env := envelope(t, queue.TypeFuzzerRunResult, queue.FuzzerRunResultPayload{
		FuzzerID:  "f1",
		FuzzerRev: "r1",
		Family:    model.FamilyAFL,
		Date:      "2026-08-24T10:00:00Z",
		LibFuzzer: &model.LibFuzzerStats{},
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
	assert.Empty(t, fake.FuzzerStats)
}

func TestHandleUniqueCrashRecordsAndNotifies(t *testing.T) {
	d, fake, sender := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedIntegration(fake, "i1", "p1", model.TrackerJira, true)
	seedIntegration(fake, "i2", "p1", model.TrackerYouTrack, true)
	seedIntegration(fake, "i3", "p1", model.TrackerJira, false)

	env := envelope(t, queue.TypeUniqueCrashFound, queue.CrashFoundPayload{
		FuzzerID:  "f1",
		FuzzerRev: "fr1",
		InputHash: "abc123",
		Brief:     "heap-buffer-overflow",
		Type:      "heap-buffer-overflow",
	})
	require.NoError(t, d.Handle(context.Background(), env))

	require.Len(t, fake.Crashes, 1)
	for _, crash := range fake.Crashes {
		assert.Equal(t, "abc123", crash.InputHash)
		assert.Zero(t, crash.DuplicateCount)
	}

	day := time.Now().UTC().Format("2006-01-02")
	rollup := fake.CrashDays["f1|"+day]
	require.NotNil(t, rollup)
	assert.EqualValues(t, 1, rollup.Unique)
	assert.EqualValues(t, 1, rollup.Total)

	// Disabled integrations are skipped.
	require.Len(t, sender.sent, 2)
	queues := map[string]bool{}
	for _, msg := range sender.sent {
		assert.Equal(t, queue.TypeReportCrash, msg.Type)
		queues[msg.Queue] = true
	}
	assert.True(t, queues["reporter-jira"])
	assert.True(t, queues["reporter-youtrack"])
}

func TestHandleUniqueCrashWithholdsReportFromUnverifiedIntegration(t *testing.T) {
	d, fake, sender := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedIntegration(fake, "i1", "p1", model.TrackerJira, true)
	failed := seedIntegration(fake, "i2", "p1", model.TrackerJira, true)
	failed.Status = model.IntegrationFailed

	env := envelope(t, queue.TypeUniqueCrashFound, queue.CrashFoundPayload{
		FuzzerID:  "f1",
		FuzzerRev: "fr1",
		InputHash: "abc123",
		Brief:     "heap-buffer-overflow",
	})
	require.NoError(t, d.Handle(context.Background(), env))

	// Only the verified integration gets the report.
	require.Len(t, sender.sent, 1)
	report := sender.sent[0].Payload.(queue.ReportCrashPayload)
	assert.Equal(t, "i1", report.IntegrationID)

	// The unverified one accumulates it as undelivered.
	assert.Equal(t, 1, fake.Integrations["i2"].NumUndelivered)
	assert.Equal(t, "2", fake.Integrations["i2"].Rev)
	assert.Zero(t, fake.Integrations["i1"].NumUndelivered)
}

func TestHandleUniqueCrashUnknownFuzzer(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	env := envelope(t, queue.TypeUniqueCrashFound, queue.CrashFoundPayload{FuzzerID: "ghost"})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandleDuplicateCrashNotifiesFirstAndEveryTenth(t *testing.T) {
	d, fake, sender := newTestDispatcher(t)
	seedFuzzer(fake, "f1", "p1")
	seedIntegration(fake, "i1", "p1", model.TrackerJira, true)
	fake.Crashes["c1"] = &model.Crash{
		ID:        "c1",
		Rev:       "1",
		Kind:      model.KindCrash,
		FuzzerID:  "f1",
		FuzzerRev: "fr1",
		InputHash: "abc123",
		Created:   common.FormatTime(time.Now().UTC()),
	}

	env := envelope(t, queue.TypeDuplicateCrashFound, queue.DuplicateCrashPayload{
		FuzzerID: "f1", FuzzerRev: "fr1", InputHash: "abc123",
	})
	for i := 0; i < 12; i++ {
		require.NoError(t, d.Handle(context.Background(), env))
	}

	assert.Equal(t, 12, fake.Crashes["c1"].DuplicateCount)

	day := time.Now().UTC().Format("2006-01-02")
	rollup := fake.CrashDays["f1|"+day]
	require.NotNil(t, rollup)
	assert.EqualValues(t, 0, rollup.Unique)
	assert.EqualValues(t, 12, rollup.Total)

	// Counts 1 and 10 trigger a tracker ping.
	require.Len(t, sender.sent, 2)
	first := sender.sent[0].Payload.(queue.ReportCrashPayload)
	assert.True(t, first.Duplicate)
	assert.Equal(t, 1, first.DuplicateCount)
	tenth := sender.sent[1].Payload.(queue.ReportCrashPayload)
	assert.Equal(t, 10, tenth.DuplicateCount)
}

func TestHandleDuplicateCrashUnknownHash(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	env := envelope(t, queue.TypeDuplicateCrashFound, queue.DuplicateCrashPayload{
		FuzzerID: "f1", FuzzerRev: "fr1", InputHash: "never-seen",
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandleIntegrationResult(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedIntegration(fake, "i1", "p1", model.TrackerJira, true)

	env := envelope(t, queue.TypeIntegrationResult, queue.IntegrationResultPayload{
		IntegrationID: "i1", UpdateRev: "u1", Succeeded: false, Error: "401 from tracker",
	})
	require.NoError(t, d.Handle(context.Background(), env))
	assert.Equal(t, model.IntegrationFailed, fake.Integrations["i1"].Status)
	assert.Equal(t, "401 from tracker", fake.Integrations["i1"].LastError)

	// A stale update_rev is discarded without touching the document.
	env = envelope(t, queue.TypeIntegrationResult, queue.IntegrationResultPayload{
		IntegrationID: "i1", UpdateRev: "old", Succeeded: true,
	})
	require.NoError(t, d.Handle(context.Background(), env))
	assert.Equal(t, model.IntegrationFailed, fake.Integrations["i1"].Status)
}

func TestHandleReportUndelivered(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	seedIntegration(fake, "i1", "p1", model.TrackerJira, true)

	env := envelope(t, queue.TypeReportUndelivered, queue.ReportUndeliveredPayload{
		IntegrationID: "i1", UpdateRev: "u1",
	})
	require.NoError(t, d.Handle(context.Background(), env))
	require.NoError(t, d.Handle(context.Background(), env))
	assert.Equal(t, 2, fake.Integrations["i1"].NumUndelivered)

	env = envelope(t, queue.TypeReportUndelivered, queue.ReportUndeliveredPayload{
		IntegrationID: "ghost", UpdateRev: "u1",
	})
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}

func TestHandlePoolDeleted(t *testing.T) {
	d, fake, sender := newTestDispatcher(t)
	fake.Projects["p1"] = &model.Project{ID: "p1", Rev: "1", Kind: model.KindProject, Name: "alpha", OwnerID: "u1", PoolID: "pool-9"}
	fake.Projects["p2"] = &model.Project{ID: "p2", Rev: "1", Kind: model.KindProject, Name: "beta", OwnerID: "u1", PoolID: "other"}

	env := envelope(t, queue.TypePoolDeleted, queue.PoolDeletedPayload{PoolID: "pool-9"})
	require.NoError(t, d.Handle(context.Background(), env))

	assert.Empty(t, fake.Projects["p1"].PoolID)
	assert.Equal(t, "other", fake.Projects["p2"].PoolID)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "scheduler", sender.sent[0].Queue)
	assert.Equal(t, queue.TypeStopFuzzersInPool, sender.sent[0].Type)
}

func TestHandleStoreErrorIsTransient(t *testing.T) {
	d, fake, _ := newTestDispatcher(t)
	fake.Err = errors.New("couch down")

	env := envelope(t, queue.TypeFuzzerStopped, queue.FuzzerStoppedPayload{
		FuzzerID: "f1", RevisionID: "r1",
	})
	err := d.Handle(context.Background(), env)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrConsumeMessage)
}

func TestHandleMalformedPayload(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	env := &queue.Envelope{Type: queue.TypeFuzzerVerified, Payload: json.RawMessage(`{"verified":"yes`)}
	assert.ErrorIs(t, d.Handle(context.Background(), env), queue.ErrConsumeMessage)
}
