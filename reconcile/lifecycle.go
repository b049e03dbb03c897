package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

// handleFuzzerVerified applies the scheduler's verification verdict. The
// verdict only makes sense while the revision is verifying; anything else
// means the event raced a user action and can never be applied.
func (d *Dispatcher) handleFuzzerVerified(ctx context.Context, env *queue.Envelope) error {
	var payload queue.FuzzerVerifiedPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	revision, err := d.store.Revisions.GetByID(ctx, payload.RevisionID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrRevisionNotFound.Code) {
			return fmt.Errorf("%w: revision %q not found", queue.ErrConsumeMessage, payload.RevisionID)
		}
		return err
	}
	if revision.Status != model.RevisionVerifying {
		return fmt.Errorf("%w: revision %q is %s, not Verifying", queue.ErrConsumeMessage, revision.ID, revision.Status)
	}

	now := common.FormatTime(time.Now().UTC())
	if payload.Verified {
		revision.Status = model.RevisionRunning
		revision.IsVerified = true
		revision.Health = model.HealthOk
		revision.Feedback = ""
		revision.LastStartDate = now
	} else {
		revision.Status = model.RevisionUnverified
		revision.Health = model.HealthError
		revision.Feedback = payload.Feedback
	}
	if err := d.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}
	common.Logger.WithFields(logrus.Fields{
		"revision": revision.ID,
		"verified": payload.Verified,
	}).Info("applied verification verdict")
	return nil
}

// handleFuzzerStopped records a revision leaving the pool. Already-stopped
// revisions make this a no-op, so redeliveries are harmless.
func (d *Dispatcher) handleFuzzerStopped(ctx context.Context, env *queue.Envelope) error {
	var payload queue.FuzzerStoppedPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	revision, err := d.store.Revisions.GetByID(ctx, payload.RevisionID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrRevisionNotFound.Code) {
			return fmt.Errorf("%w: revision %q not found", queue.ErrConsumeMessage, payload.RevisionID)
		}
		return err
	}
	if revision.Status == model.RevisionStopped {
		return nil
	}
	revision.Status = model.RevisionStopped
	revision.LastStopDate = common.FormatTime(time.Now().UTC())
	if payload.Feedback != "" {
		revision.Feedback = payload.Feedback
	}
	return d.store.Revisions.Update(ctx, revision)
}

// handleFuzzerStatusChanged folds scheduler health updates into a running
// revision.
func (d *Dispatcher) handleFuzzerStatusChanged(ctx context.Context, env *queue.Envelope) error {
	var payload queue.FuzzerStatusChangedPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	revision, err := d.store.Revisions.GetByID(ctx, payload.RevisionID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrRevisionNotFound.Code) {
			return fmt.Errorf("%w: revision %q not found", queue.ErrConsumeMessage, payload.RevisionID)
		}
		return err
	}
	if revision.Status != model.RevisionRunning {
		return fmt.Errorf("%w: revision %q is %s, not Running", queue.ErrConsumeMessage, revision.ID, revision.Status)
	}
	revision.Health = payload.Health
	revision.Feedback = payload.Feedback
	return d.store.Revisions.Update(ctx, revision)
}

// handleFuzzerRunResult stores one periodic statistics record. The payload
// variant must match the declared engine family.
func (d *Dispatcher) handleFuzzerRunResult(ctx context.Context, env *queue.Envelope) error {
	var payload queue.FuzzerRunResultPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	switch payload.Family {
	case model.FamilyLibFuzzer:
		if payload.LibFuzzer == nil || payload.AFL != nil {
			return fmt.Errorf("%w: libfuzzer record without libfuzzer payload", queue.ErrConsumeMessage)
		}
	case model.FamilyAFL:
		if payload.AFL == nil || payload.LibFuzzer != nil {
			return fmt.Errorf("%w: afl record without afl payload", queue.ErrConsumeMessage)
		}
	default:
		return fmt.Errorf("%w: unknown engine family %q", queue.ErrConsumeMessage, payload.Family)
	}
	if _, err := d.store.Fuzzers.GetByID(ctx, payload.FuzzerID); err != nil {
		if apierr.IsCode(err, apierr.ErrFuzzerNotFound.Code) {
			return fmt.Errorf("%w: fuzzer %q not found", queue.ErrConsumeMessage, payload.FuzzerID)
		}
		return err
	}
	return d.store.Statistics.InsertFuzzerStats(ctx, &model.FuzzerStatistics{
		FuzzerID:  payload.FuzzerID,
		FuzzerRev: payload.FuzzerRev,
		Family:    payload.Family,
		Date:      payload.Date,
		LibFuzzer: payload.LibFuzzer,
		AFL:       payload.AFL,
	})
}

// handlePoolDeleted detaches projects from a removed pool and asks the
// scheduler to stop whatever was still running on it.
func (d *Dispatcher) handlePoolDeleted(ctx context.Context, env *queue.Envelope) error {
	var payload queue.PoolDeletedPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	projects, err := d.store.Projects.ListByPool(ctx, payload.PoolID)
	if err != nil {
		return err
	}
	for i := range projects {
		project := projects[i]
		project.PoolID = ""
		if err := d.store.Projects.Update(ctx, &project); err != nil {
			return err
		}
	}
	if err := d.sender.Send(ctx, d.broker.SchedulerQueue, queue.TypeStopFuzzersInPool, queue.StopFuzzersInPoolPayload{PoolID: payload.PoolID}); err != nil {
		return err
	}
	common.Logger.WithFields(logrus.Fields{
		"pool":     payload.PoolID,
		"projects": len(projects),
	}).Info("detached projects from deleted pool")
	return nil
}
