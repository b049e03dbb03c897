package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type fuzzerStore struct {
	svc *Service
}

// Create inserts a new fuzzer. Names are unique per project among visible
// fuzzers.
func (s *fuzzerStore) Create(ctx context.Context, fuzzer *model.Fuzzer) error {
	sel := selectorFor(model.KindFuzzer, model.RemovalVisible, time.Now().UTC())
	sel["project_id"] = fuzzer.ProjectID
	sel["name"] = fuzzer.Name
	n, err := s.svc.count(ctx, sel)
	if err != nil {
		return err
	}
	if n > 0 {
		return apierr.ErrFuzzerExists
	}
	fuzzer.Kind = model.KindFuzzer
	if fuzzer.ID == "" {
		fuzzer.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, fuzzer.ID, fuzzer)
	if err != nil {
		return err
	}
	fuzzer.Rev = rev
	return nil
}

func (s *fuzzerStore) GetByID(ctx context.Context, id string) (*model.Fuzzer, error) {
	var fuzzer model.Fuzzer
	if err := s.svc.get(ctx, id, &fuzzer, apierr.ErrFuzzerNotFound); err != nil {
		return nil, err
	}
	if fuzzer.Kind != model.KindFuzzer {
		return nil, apierr.ErrFuzzerNotFound
	}
	return &fuzzer, nil
}

func (s *fuzzerStore) ListByProject(ctx context.Context, projectID string, state model.RemovalState, page Page) ([]model.Fuzzer, error) {
	sel := selectorFor(model.KindFuzzer, state, time.Now().UTC())
	sel["project_id"] = projectID
	q := &mangoQuery{selector: sel, sort: sortByName, limit: page.limit(), skip: page.skip()}
	return s.find(ctx, q)
}

func (s *fuzzerStore) CountByProject(ctx context.Context, projectID string, state model.RemovalState) (int, error) {
	sel := selectorFor(model.KindFuzzer, state, time.Now().UTC())
	sel["project_id"] = projectID
	return s.svc.count(ctx, sel)
}

// ListByLang returns visible fuzzers pinned to a language. Used to refuse
// catalog deletions while references exist.
func (s *fuzzerStore) ListByLang(ctx context.Context, langID string) ([]model.Fuzzer, error) {
	sel := selectorFor(model.KindFuzzer, model.RemovalVisible, time.Now().UTC())
	sel["lang"] = langID
	return s.find(ctx, &mangoQuery{selector: sel})
}

func (s *fuzzerStore) ListByEngine(ctx context.Context, engineID string) ([]model.Fuzzer, error) {
	sel := selectorFor(model.KindFuzzer, model.RemovalVisible, time.Now().UTC())
	sel["engine"] = engineID
	return s.find(ctx, &mangoQuery{selector: sel})
}

func (s *fuzzerStore) Update(ctx context.Context, fuzzer *model.Fuzzer) error {
	rev, err := s.svc.put(ctx, fuzzer.ID, fuzzer)
	if err != nil {
		return err
	}
	fuzzer.Rev = rev
	return nil
}

func (s *fuzzerStore) Erase(ctx context.Context, fuzzer *model.Fuzzer) error {
	return s.svc.delete(ctx, fuzzer.ID, fuzzer.Rev)
}

func (s *fuzzerStore) ListErasing(ctx context.Context) ([]model.Fuzzer, error) {
	return s.find(ctx, &mangoQuery{selector: selectorFor(model.KindFuzzer, model.RemovalErasing, time.Now().UTC())})
}

func (s *fuzzerStore) find(ctx context.Context, q *mangoQuery) ([]model.Fuzzer, error) {
	fuzzers := []model.Fuzzer{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var fuzzer model.Fuzzer
		if err := rows.ScanDoc(&fuzzer); err != nil {
			return err
		}
		fuzzers = append(fuzzers, fuzzer)
		return nil
	})
	return fuzzers, err
}
