package db

import (
	"context"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type statisticsStore struct {
	svc *Service
}

func (s *statisticsStore) InsertFuzzerStats(ctx context.Context, stats *model.FuzzerStatistics) error {
	stats.Kind = model.KindFuzzerStats
	if stats.ID == "" {
		stats.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, stats.ID, stats)
	if err != nil {
		return err
	}
	stats.Rev = rev
	return nil
}

func (s *statisticsStore) ListFuzzerStats(ctx context.Context, fuzzerID, from, to string) ([]model.FuzzerStatistics, error) {
	sel := map[string]interface{}{
		"kind":      model.KindFuzzerStats,
		"fuzzer_id": fuzzerID,
	}
	if rng := dateRange(from, to); rng != nil {
		sel["date"] = rng
	}
	q := &mangoQuery{selector: sel, sort: []map[string]string{{"date": "asc"}}}
	records := []model.FuzzerStatistics{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var stats model.FuzzerStatistics
		if err := rows.ScanDoc(&stats); err != nil {
			return err
		}
		records = append(records, stats)
		return nil
	})
	return records, err
}

// BumpCrashDay advances the per-fuzzer per-day crash rollup. The document id
// is deterministic so concurrent bumps collide on the revision and retry.
func (s *statisticsStore) BumpCrashDay(ctx context.Context, fuzzerID, day string, uniqueDelta, totalDelta int64) error {
	id := "crashstats:" + fuzzerID + ":" + day
	for attempt := 0; attempt < 3; attempt++ {
		var rollup model.CrashStatistics
		err := s.svc.get(ctx, id, &rollup, apierr.ErrFileNotFound)
		switch {
		case apierr.IsCode(err, apierr.ErrFileNotFound.Code):
			rollup = model.CrashStatistics{
				ID:       id,
				Kind:     model.KindCrashStats,
				Date:     day,
				FuzzerID: fuzzerID,
			}
		case err != nil:
			return err
		}
		rollup.Unique += uniqueDelta
		rollup.Total += totalDelta
		_, err = s.svc.put(ctx, id, &rollup)
		if err == nil {
			return nil
		}
		if !apierr.IsCode(err, apierr.ErrConcurrentUpdate.Code) {
			return err
		}
	}
	return apierr.ErrConcurrentUpdate
}

func (s *statisticsStore) ListCrashDays(ctx context.Context, fuzzerID, from, to string) ([]model.CrashStatistics, error) {
	sel := map[string]interface{}{
		"kind":      model.KindCrashStats,
		"fuzzer_id": fuzzerID,
	}
	if rng := dateRange(from, to); rng != nil {
		sel["date"] = rng
	}
	q := &mangoQuery{selector: sel, sort: []map[string]string{{"date": "asc"}}}
	days := []model.CrashStatistics{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var day model.CrashStatistics
		if err := rows.ScanDoc(&day); err != nil {
			return err
		}
		days = append(days, day)
		return nil
	})
	return days, err
}

func dateRange(from, to string) map[string]interface{} {
	rng := map[string]interface{}{}
	if from != "" {
		rng["$gte"] = from
	}
	if to != "" {
		rng["$lte"] = to
	}
	if len(rng) == 0 {
		return nil
	}
	return rng
}
