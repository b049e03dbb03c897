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

// handleUniqueCrash records a new crash from the analyzer, bumps the daily
// rollup, and fans the report out to the enabled, verified integrations of
// the fuzzer's project.
func (d *Dispatcher) handleUniqueCrash(ctx context.Context, env *queue.Envelope) error {
	var payload queue.CrashFoundPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	fuzzer, err := d.store.Fuzzers.GetByID(ctx, payload.FuzzerID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrFuzzerNotFound.Code) {
			return fmt.Errorf("%w: fuzzer %q not found", queue.ErrConsumeMessage, payload.FuzzerID)
		}
		return err
	}

	now := time.Now().UTC()
	crash := &model.Crash{
		Created:    common.FormatTime(now),
		FuzzerID:   payload.FuzzerID,
		FuzzerRev:  payload.FuzzerRev,
		Preview:    payload.Preview,
		InputID:    payload.InputID,
		InputHash:  payload.InputHash,
		Output:     payload.Output,
		Brief:      payload.Brief,
		Reproduced: payload.Reproduced,
		Type:       payload.Type,
	}
	if err := d.store.Crashes.Insert(ctx, crash); err != nil {
		return err
	}
	if err := d.store.Statistics.BumpCrashDay(ctx, fuzzer.ID, now.Format("2006-01-02"), 1, 1); err != nil {
		return err
	}
	if err := d.notifyTrackers(ctx, fuzzer.ProjectID, crash, false); err != nil {
		return err
	}
	common.Logger.WithFields(logrus.Fields{
		"fuzzer": fuzzer.ID,
		"crash":  crash.ID,
		"type":   crash.Type,
	}).Info("recorded unique crash")
	return nil
}

// handleDuplicateCrash advances the duplicate counter of an already known
// crash. Trackers are only pinged on the first duplicate and then every
// tenth, to keep issue comments from drowning the report.
func (d *Dispatcher) handleDuplicateCrash(ctx context.Context, env *queue.Envelope) error {
	var payload queue.DuplicateCrashPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	crash, err := d.store.Crashes.GetByInputHash(ctx, payload.FuzzerRev, payload.InputHash)
	if err != nil {
		return err
	}
	if crash == nil {
		return fmt.Errorf("%w: no crash with input hash %q", queue.ErrConsumeMessage, payload.InputHash)
	}
	crash.DuplicateCount++
	if err := d.store.Crashes.Update(ctx, crash); err != nil {
		return err
	}
	if err := d.store.Statistics.BumpCrashDay(ctx, crash.FuzzerID, time.Now().UTC().Format("2006-01-02"), 0, 1); err != nil {
		return err
	}
	if crash.DuplicateCount == 1 || crash.DuplicateCount%10 == 0 {
		fuzzer, err := d.store.Fuzzers.GetByID(ctx, crash.FuzzerID)
		if err != nil {
			if apierr.IsCode(err, apierr.ErrFuzzerNotFound.Code) {
				return nil
			}
			return err
		}
		if err := d.notifyTrackers(ctx, fuzzer.ProjectID, crash, true); err != nil {
			return err
		}
	}
	return nil
}

// notifyTrackers publishes a report for each enabled integration of the
// project whose credentials are verified, routed to the reporter queue
// matching its tracker type. Enabled integrations that are not yet (or no
// longer) verified accumulate the report in num_undelivered instead.
func (d *Dispatcher) notifyTrackers(ctx context.Context, projectID string, crash *model.Crash, duplicate bool) error {
	integrations, err := d.store.Integrations.ListEnabledByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for i := range integrations {
		integration := &integrations[i]
		if integration.Status != model.IntegrationSucceeded {
			integration.NumUndelivered++
			if err := d.store.Integrations.Update(ctx, integration); err != nil {
				return err
			}
			common.Logger.WithFields(logrus.Fields{
				"integration": integration.ID,
				"status":      integration.Status,
				"undelivered": integration.NumUndelivered,
			}).Warn("integration not verified, report withheld")
			continue
		}
		target, ok := d.reporterQueue(integration.Config.Type)
		if !ok {
			common.Logger.WithFields(logrus.Fields{
				"integration": integration.ID,
				"tracker":     integration.Config.Type,
			}).Warn("no reporter queue for tracker type")
			continue
		}
		report := queue.ReportCrashPayload{
			IntegrationID:  integration.ID,
			UpdateRev:      integration.UpdateRev,
			Config:         integration.Config,
			CrashID:        crash.ID,
			Brief:          crash.Brief,
			Output:         crash.Output,
			Preview:        crash.Preview,
			CrashType:      crash.Type,
			Duplicate:      duplicate,
			DuplicateCount: crash.DuplicateCount,
		}
		if err := d.sender.Send(ctx, target, queue.TypeReportCrash, report); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) reporterQueue(tracker model.BugTrackerType) (string, bool) {
	switch tracker {
	case model.TrackerJira:
		return d.broker.JiraQueue, true
	case model.TrackerYouTrack:
		return d.broker.YouTrackQueue, true
	}
	return "", false
}
