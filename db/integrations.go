package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type integrationStore struct {
	svc *Service
}

// Create inserts a new integration. Names are unique per project among
// visible integrations.
func (s *integrationStore) Create(ctx context.Context, integration *model.Integration) error {
	sel := selectorFor(model.KindIntegration, model.RemovalVisible, time.Now().UTC())
	sel["project_id"] = integration.ProjectID
	sel["name"] = integration.Name
	n, err := s.svc.count(ctx, sel)
	if err != nil {
		return err
	}
	if n > 0 {
		return apierr.ErrIntegrationExists
	}
	integration.Kind = model.KindIntegration
	if integration.ID == "" {
		integration.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, integration.ID, integration)
	if err != nil {
		return err
	}
	integration.Rev = rev
	return nil
}

func (s *integrationStore) GetByID(ctx context.Context, id string) (*model.Integration, error) {
	var integration model.Integration
	if err := s.svc.get(ctx, id, &integration, apierr.ErrIntegrationNotFound); err != nil {
		return nil, err
	}
	if integration.Kind != model.KindIntegration {
		return nil, apierr.ErrIntegrationNotFound
	}
	return &integration, nil
}

func (s *integrationStore) ListByProject(ctx context.Context, projectID string, state model.RemovalState, page Page) ([]model.Integration, error) {
	sel := selectorFor(model.KindIntegration, state, time.Now().UTC())
	sel["project_id"] = projectID
	q := &mangoQuery{selector: sel, sort: sortByName, limit: page.limit(), skip: page.skip()}
	return s.find(ctx, q)
}

// ListEnabledByProject returns the integrations crash events fan out to.
func (s *integrationStore) ListEnabledByProject(ctx context.Context, projectID string) ([]model.Integration, error) {
	sel := selectorFor(model.KindIntegration, model.RemovalPresent, time.Now().UTC())
	sel["project_id"] = projectID
	sel["enabled"] = true
	return s.find(ctx, &mangoQuery{selector: sel})
}

func (s *integrationStore) Update(ctx context.Context, integration *model.Integration) error {
	rev, err := s.svc.put(ctx, integration.ID, integration)
	if err != nil {
		return err
	}
	integration.Rev = rev
	return nil
}

func (s *integrationStore) Erase(ctx context.Context, integration *model.Integration) error {
	return s.svc.delete(ctx, integration.ID, integration.Rev)
}

func (s *integrationStore) ListErasing(ctx context.Context) ([]model.Integration, error) {
	return s.find(ctx, &mangoQuery{selector: selectorFor(model.KindIntegration, model.RemovalErasing, time.Now().UTC())})
}

func (s *integrationStore) find(ctx context.Context, q *mangoQuery) ([]model.Integration, error) {
	integrations := []model.Integration{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var integration model.Integration
		if err := rows.ScanDoc(&integration); err != nil {
			return err
		}
		integrations = append(integrations, integration)
		return nil
	})
	return integrations, err
}
