package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type revisionStore struct {
	svc *Service
}

// Create inserts a new revision. Names are unique per fuzzer among visible
// revisions.
func (s *revisionStore) Create(ctx context.Context, revision *model.Revision) error {
	sel := selectorFor(model.KindRevision, model.RemovalVisible, time.Now().UTC())
	sel["fuzzer_id"] = revision.FuzzerID
	sel["name"] = revision.Name
	n, err := s.svc.count(ctx, sel)
	if err != nil {
		return err
	}
	if n > 0 {
		return apierr.ErrRevisionExists
	}
	revision.Kind = model.KindRevision
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, revision.ID, revision)
	if err != nil {
		return err
	}
	revision.Rev = rev
	return nil
}

func (s *revisionStore) GetByID(ctx context.Context, id string) (*model.Revision, error) {
	var revision model.Revision
	if err := s.svc.get(ctx, id, &revision, apierr.ErrRevisionNotFound); err != nil {
		return nil, err
	}
	if revision.Kind != model.KindRevision {
		return nil, apierr.ErrRevisionNotFound
	}
	return &revision, nil
}

func (s *revisionStore) ListByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState, page Page) ([]model.Revision, error) {
	sel := selectorFor(model.KindRevision, state, time.Now().UTC())
	sel["fuzzer_id"] = fuzzerID
	q := &mangoQuery{selector: sel, sort: sortByCreated, limit: page.limit(), skip: page.skip()}
	return s.find(ctx, q)
}

func (s *revisionStore) CountByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState) (int, error) {
	sel := selectorFor(model.KindRevision, state, time.Now().UTC())
	sel["fuzzer_id"] = fuzzerID
	return s.svc.count(ctx, sel)
}

// ListByImage returns visible revisions built on an image. Used to refuse
// image deletion while references exist.
func (s *revisionStore) ListByImage(ctx context.Context, imageID string) ([]model.Revision, error) {
	sel := selectorFor(model.KindRevision, model.RemovalVisible, time.Now().UTC())
	sel["image_id"] = imageID
	return s.find(ctx, &mangoQuery{selector: sel})
}

func (s *revisionStore) Update(ctx context.Context, revision *model.Revision) error {
	rev, err := s.svc.put(ctx, revision.ID, revision)
	if err != nil {
		return err
	}
	revision.Rev = rev
	return nil
}

func (s *revisionStore) Erase(ctx context.Context, revision *model.Revision) error {
	return s.svc.delete(ctx, revision.ID, revision.Rev)
}

func (s *revisionStore) ListErasing(ctx context.Context) ([]model.Revision, error) {
	return s.find(ctx, &mangoQuery{selector: selectorFor(model.KindRevision, model.RemovalErasing, time.Now().UTC())})
}

func (s *revisionStore) find(ctx context.Context, q *mangoQuery) ([]model.Revision, error) {
	revisions := []model.Revision{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var revision model.Revision
		if err := rows.ScanDoc(&revision); err != nil {
			return err
		}
		revisions = append(revisions, revision)
		return nil
	})
	return revisions, err
}
