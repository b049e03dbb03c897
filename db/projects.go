package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type projectStore struct {
	svc *Service
}

// Create inserts a new project. Names are unique per owner among visible
// projects.
func (s *projectStore) Create(ctx context.Context, project *model.Project) error {
	sel := selectorFor(model.KindProject, model.RemovalVisible, time.Now().UTC())
	sel["owner_id"] = project.OwnerID
	sel["name"] = project.Name
	n, err := s.svc.count(ctx, sel)
	if err != nil {
		return err
	}
	if n > 0 {
		return apierr.ErrProjectExists
	}
	project.Kind = model.KindProject
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, project.ID, project)
	if err != nil {
		return err
	}
	project.Rev = rev
	return nil
}

func (s *projectStore) GetByID(ctx context.Context, id string) (*model.Project, error) {
	var project model.Project
	if err := s.svc.get(ctx, id, &project, apierr.ErrProjectNotFound); err != nil {
		return nil, err
	}
	if project.Kind != model.KindProject {
		return nil, apierr.ErrProjectNotFound
	}
	return &project, nil
}

func (s *projectStore) ListByOwner(ctx context.Context, ownerID string, state model.RemovalState, page Page) ([]model.Project, error) {
	sel := selectorFor(model.KindProject, state, time.Now().UTC())
	sel["owner_id"] = ownerID
	q := &mangoQuery{selector: sel, sort: sortByName, limit: page.limit(), skip: page.skip()}
	projects := []model.Project{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var project model.Project
		if err := rows.ScanDoc(&project); err != nil {
			return err
		}
		projects = append(projects, project)
		return nil
	})
	return projects, err
}

func (s *projectStore) CountByOwner(ctx context.Context, ownerID string, state model.RemovalState) (int, error) {
	sel := selectorFor(model.KindProject, state, time.Now().UTC())
	sel["owner_id"] = ownerID
	return s.svc.count(ctx, sel)
}

// ListByPool returns visible projects bound to a pool. Used when the pool
// manager announces a pool removal.
func (s *projectStore) ListByPool(ctx context.Context, poolID string) ([]model.Project, error) {
	sel := selectorFor(model.KindProject, model.RemovalVisible, time.Now().UTC())
	sel["pool_id"] = poolID
	projects := []model.Project{}
	err := s.svc.findAll(ctx, &mangoQuery{selector: sel}, func(rows *kivik.ResultSet) error {
		var project model.Project
		if err := rows.ScanDoc(&project); err != nil {
			return err
		}
		projects = append(projects, project)
		return nil
	})
	return projects, err
}

func (s *projectStore) Update(ctx context.Context, project *model.Project) error {
	rev, err := s.svc.put(ctx, project.ID, project)
	if err != nil {
		return err
	}
	project.Rev = rev
	return nil
}

func (s *projectStore) Erase(ctx context.Context, project *model.Project) error {
	return s.svc.delete(ctx, project.ID, project.Rev)
}

func (s *projectStore) ListErasing(ctx context.Context) ([]model.Project, error) {
	q := &mangoQuery{selector: selectorFor(model.KindProject, model.RemovalErasing, time.Now().UTC())}
	projects := []model.Project{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var project model.Project
		if err := rows.ScanDoc(&project); err != nil {
			return err
		}
		projects = append(projects, project)
		return nil
	})
	return projects, err
}
