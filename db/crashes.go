package db

import (
	"context"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type crashStore struct {
	svc *Service
}

func (s *crashStore) Insert(ctx context.Context, crash *model.Crash) error {
	crash.Kind = model.KindCrash
	if crash.ID == "" {
		crash.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, crash.ID, crash)
	if err != nil {
		return err
	}
	crash.Rev = rev
	return nil
}

func (s *crashStore) GetByID(ctx context.Context, id string) (*model.Crash, error) {
	var crash model.Crash
	if err := s.svc.get(ctx, id, &crash, apierr.ErrFileNotFound); err != nil {
		return nil, err
	}
	if crash.Kind != model.KindCrash {
		return nil, apierr.ErrFileNotFound
	}
	return &crash, nil
}

// GetByInputHash finds the crash a duplicate event refers to. Returns nil
// without error when no crash matches.
func (s *crashStore) GetByInputHash(ctx context.Context, fuzzerRev, inputHash string) (*model.Crash, error) {
	sel := map[string]interface{}{
		"kind":       model.KindCrash,
		"fuzzer_rev": fuzzerRev,
		"input_hash": inputHash,
	}
	var found *model.Crash
	err := s.svc.findAll(ctx, &mangoQuery{selector: sel, limit: 1}, func(rows *kivik.ResultSet) error {
		var crash model.Crash
		if err := rows.ScanDoc(&crash); err != nil {
			return err
		}
		found = &crash
		return nil
	})
	return found, err
}

func (s *crashStore) ListByFuzzer(ctx context.Context, fuzzerID, from, to string, page Page) ([]model.Crash, error) {
	q := &mangoQuery{
		selector: crashSelector(fuzzerID, from, to),
		sort:     sortByCreated,
		limit:    page.limit(),
		skip:     page.skip(),
	}
	crashes := []model.Crash{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var crash model.Crash
		if err := rows.ScanDoc(&crash); err != nil {
			return err
		}
		crashes = append(crashes, crash)
		return nil
	})
	return crashes, err
}

func (s *crashStore) CountByFuzzer(ctx context.Context, fuzzerID, from, to string) (int, error) {
	return s.svc.count(ctx, crashSelector(fuzzerID, from, to))
}

func (s *crashStore) Update(ctx context.Context, crash *model.Crash) error {
	rev, err := s.svc.put(ctx, crash.ID, crash)
	if err != nil {
		return err
	}
	crash.Rev = rev
	return nil
}

func crashSelector(fuzzerID, from, to string) map[string]interface{} {
	sel := map[string]interface{}{
		"kind":      model.KindCrash,
		"fuzzer_id": fuzzerID,
	}
	created := map[string]interface{}{}
	if from != "" {
		created["$gte"] = from
	}
	if to != "" {
		created["$lte"] = to
	}
	if len(created) > 0 {
		sel["created"] = created
	}
	return sel
}
