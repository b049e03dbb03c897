package reconcile

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

// handleIntegrationResult applies a reporter's credential check verdict. A
// stale update_rev means the user saved new credentials while the check was
// in flight; the verdict is silently discarded.
func (d *Dispatcher) handleIntegrationResult(ctx context.Context, env *queue.Envelope) error {
	var payload queue.IntegrationResultPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	integration, err := d.store.Integrations.GetByID(ctx, payload.IntegrationID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrIntegrationNotFound.Code) {
			return fmt.Errorf("%w: integration %q not found", queue.ErrConsumeMessage, payload.IntegrationID)
		}
		return err
	}
	if integration.UpdateRev != payload.UpdateRev {
		common.Logger.WithFields(logrus.Fields{
			"integration": integration.ID,
		}).Debug("discarding stale integration verdict")
		return nil
	}
	if payload.Succeeded {
		integration.Status = model.IntegrationSucceeded
		integration.LastError = ""
	} else {
		integration.Status = model.IntegrationFailed
		integration.LastError = payload.Error
	}
	return d.store.Integrations.Update(ctx, integration)
}

// handleReportUndelivered counts a crash report the reporter gave up on.
func (d *Dispatcher) handleReportUndelivered(ctx context.Context, env *queue.Envelope) error {
	var payload queue.ReportUndeliveredPayload
	if err := env.Decode(&payload); err != nil {
		return fmt.Errorf("%w: %v", queue.ErrConsumeMessage, err)
	}
	integration, err := d.store.Integrations.GetByID(ctx, payload.IntegrationID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrIntegrationNotFound.Code) {
			return fmt.Errorf("%w: integration %q not found", queue.ErrConsumeMessage, payload.IntegrationID)
		}
		return err
	}
	if integration.UpdateRev != payload.UpdateRev {
		return nil
	}
	integration.NumUndelivered++
	return d.store.Integrations.Update(ctx, integration)
}
