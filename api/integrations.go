package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

type integrationRequest struct {
	Name     *string                  `json:"name"`
	ConfigID *string                  `json:"config_id"`
	Config   *model.IntegrationConfig `json:"config"`
	Enabled  *bool                    `json:"enabled"`
}

// reporterQueueFor maps a tracker type to its reporter queue.
func (s *Server) reporterQueueFor(t model.BugTrackerType) (string, bool) {
	switch t {
	case model.TrackerJira:
		return s.cfg.Broker.JiraQueue, true
	case model.TrackerYouTrack:
		return s.cfg.Broker.YouTrackQueue, true
	}
	return "", false
}

// requestCredentialCheck rotates the integration's update revision and asks
// the matching reporter to verify the saved credentials. Callbacks carrying
// an older revision are discarded by the consumer.
func (s *Server) requestCredentialCheck(c echo.Context, integration *model.Integration) error {
	queueName, ok := s.reporterQueueFor(integration.Config.Type)
	if !ok {
		return apierr.ErrValidationFailed.WithMessage("unsupported tracker type %q", integration.Config.Type)
	}
	integration.UpdateRev = uuid.NewString()
	integration.Status = model.IntegrationInProgress
	integration.LastError = ""
	return s.sender.Send(c.Request().Context(), queueName, queue.TypeCheckIntegration, queue.CheckIntegrationPayload{
		IntegrationID: integration.ID,
		UpdateRev:     integration.UpdateRev,
		Config:        integration.Config,
	})
}

func (s *Server) listIntegrations(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	integrations, err := s.store.Integrations.ListByProject(c.Request().Context(), pathProject(c).ID, state, pageParam(c))
	if err != nil {
		return err
	}
	out := make([]*model.IntegrationResponse, 0, len(integrations))
	for i := range integrations {
		out = append(out, integrations[i].ToResponse())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createIntegration(c echo.Context) error {
	var req integrationRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed integration request")
	}
	if req.Name == nil || *req.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	if req.Config == nil || !req.Config.Valid() {
		return apierr.ErrValidationFailed.WithMessage("tracker configuration is incomplete")
	}
	ctx := c.Request().Context()

	integration := &model.Integration{
		Name:      *req.Name,
		ProjectID: pathProject(c).ID,
		Config:    *req.Config,
		Status:    model.IntegrationCreated,
		Enabled:   req.Enabled == nil || *req.Enabled,
	}
	if req.ConfigID != nil && *req.ConfigID != "" {
		if _, err := s.store.Catalog.GetIntegrationType(ctx, *req.ConfigID); err != nil {
			return err
		}
		integration.ConfigID = *req.ConfigID
	}
	if err := s.store.Integrations.Create(ctx, integration); err != nil {
		return err
	}
	if err := s.requestCredentialCheck(c, integration); err != nil {
		return err
	}
	if err := s.store.Integrations.Update(ctx, integration); err != nil {
		return err
	}
	common.Logger.WithField("integration", integration.Name).Info("created integration")
	return c.JSON(http.StatusCreated, integration.ToResponse())
}

func (s *Server) getIntegration(c echo.Context) error {
	return c.JSON(http.StatusOK, pathIntegration(c).ToResponse())
}

// patchIntegration updates an integration. Saving new credentials triggers a
// fresh verification round trip.
func (s *Server) patchIntegration(c echo.Context) error {
	var req integrationRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed integration request")
	}
	integration := pathIntegration(c)

	if req.Name != nil {
		if *req.Name == "" {
			return apierr.ErrValidationFailed.WithMessage("name must not be empty")
		}
		integration.Name = *req.Name
	}
	if req.Enabled != nil {
		integration.Enabled = *req.Enabled
	}
	if req.Config != nil {
		if !req.Config.Valid() {
			return apierr.ErrValidationFailed.WithMessage("tracker configuration is incomplete")
		}
		integration.Config = *req.Config
		if err := s.requestCredentialCheck(c, integration); err != nil {
			return err
		}
	}
	if err := s.store.Integrations.Update(c.Request().Context(), integration); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, integration.ToResponse())
}

func (s *Server) deleteIntegration(c echo.Context) error {
	action, err := removalActionParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	integration := pathIntegration(c)
	now := time.Now().UTC()

	switch action {
	case model.ActionDelete:
		if integration.IsDeleted() {
			return apierr.ErrIntegrationDeleted
		}
		integration.MarkDeleted(now, s.cfg.Trashbin.Expiration, noBackupParam(c))
	case model.ActionRestore:
		if integration.RemovalStateAt(now) != model.RemovalTrashBin {
			return apierr.ErrIntegrationNotFound
		}
		if newName := c.QueryParam("new_name"); newName != "" {
			integration.Name = newName
		}
		integration.Restore()
	case model.ActionErase:
		integration.MarkErasing(now, noBackupParam(c))
	}
	if err := s.store.Integrations.Update(ctx, integration); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, integration.ToResponse())
}
