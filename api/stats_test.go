package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/model"
)

func TestBucketFor(t *testing.T) {
	cases := []struct {
		day     string
		groupBy model.StatisticsGroupBy
		want    string
	}{
		{"2026-08-20", model.GroupByDay, "2026-08-20"},
		{"2026-08-20", model.GroupByWeek, "2026-08-17"},
		{"2026-08-17", model.GroupByWeek, "2026-08-17"},
		{"2026-08-23", model.GroupByWeek, "2026-08-17"},
		{"2026-08-20", model.GroupByMonth, "2026-08-01"},
		{"2026-01-01", model.GroupByMonth, "2026-01-01"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bucketFor(tc.day, tc.groupBy), "%s by %s", tc.day, tc.groupBy)
	}
}

func TestGroupCrashDaysFoldsAndSorts(t *testing.T) {
	days := []model.CrashStatistics{
		{Date: "2026-08-20", Unique: 2, Total: 5},
		{Date: "2026-08-18", Unique: 1, Total: 1},
		{Date: "2026-08-24", Unique: 3, Total: 3},
	}

	buckets := groupCrashDays(days, model.GroupByWeek)
	require.Len(t, buckets, 2)
	assert.Equal(t, crashBucket{Date: "2026-08-17", Unique: 3, Total: 6}, buckets[0])
	assert.Equal(t, crashBucket{Date: "2026-08-24", Unique: 3, Total: 3}, buckets[1])

	buckets = groupCrashDays(days, model.GroupByDay)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2026-08-18", buckets[0].Date)
	assert.Equal(t, "2026-08-24", buckets[2].Date)
}

func seedCrashDay(e *testEnv, fuzzerID, day string, unique, total int64) {
	e.fake.CrashDays[fuzzerID+"|"+day] = &model.CrashStatistics{
		Kind:     model.KindCrashStats,
		Date:     day,
		FuzzerID: fuzzerID,
		Unique:   unique,
		Total:    total,
	}
}

func seedRun(e *testEnv, fuzzerID, revisionID, date string) {
	e.fake.FuzzerStats = append(e.fake.FuzzerStats, &model.FuzzerStatistics{
		ID:        "stat-" + date,
		Kind:      model.KindFuzzerStats,
		FuzzerID:  fuzzerID,
		FuzzerRev: revisionID,
		Family:    model.FamilyLibFuzzer,
		Date:      date,
		LibFuzzer: &model.LibFuzzerStats{ExecsPerSec: 1200, EdgeCov: 340},
	})
}

func TestFuzzerStatistics(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	_, project, base, cookies := fuzzerBase(e)
	fuzzer := seedFuzzer(e, "f1", project.ID)
	revision := seedRevision(e, "r1", fuzzer.ID, model.RevisionRunning)

	seedCrashDay(e, fuzzer.ID, "2026-08-18", 1, 4)
	seedCrashDay(e, fuzzer.ID, "2026-08-20", 2, 2)
	seedCrashDay(e, "other-fuzzer", "2026-08-18", 9, 9)
	seedRun(e, fuzzer.ID, revision.ID, "2026-08-20T10:00:00Z")

	rec := e.do(t, http.MethodGet, base+"/"+fuzzer.ID+"/statistics", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statisticsResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Crashes, 2)
	assert.Equal(t, crashBucket{Date: "2026-08-18", Unique: 1, Total: 4}, resp.Crashes[0])
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, int64(1200), resp.Runs[0].LibFuzzer.ExecsPerSec)
}

func TestFuzzerStatisticsGroupedByWeek(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	_, project, base, cookies := fuzzerBase(e)
	fuzzer := seedFuzzer(e, "f1", project.ID)

	seedCrashDay(e, fuzzer.ID, "2026-08-18", 1, 4)
	seedCrashDay(e, fuzzer.ID, "2026-08-20", 2, 2)

	rec := e.do(t, http.MethodGet, base+"/"+fuzzer.ID+"/statistics?group_by=week", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statisticsResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Crashes, 1)
	assert.Equal(t, crashBucket{Date: "2026-08-17", Unique: 3, Total: 6}, resp.Crashes[0])
}

func TestFuzzerStatisticsDateRange(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	_, project, base, cookies := fuzzerBase(e)
	fuzzer := seedFuzzer(e, "f1", project.ID)

	seedCrashDay(e, fuzzer.ID, "2026-08-10", 1, 1)
	seedCrashDay(e, fuzzer.ID, "2026-08-20", 2, 2)

	rec := e.do(t, http.MethodGet,
		base+"/"+fuzzer.ID+"/statistics?date_begin=2026-08-15T00:00:00Z", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statisticsResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Crashes, 1)
	assert.Equal(t, "2026-08-20", resp.Crashes[0].Date)
}

func TestFuzzerStatisticsBadGroupBy(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	_, project, base, cookies := fuzzerBase(e)
	fuzzer := seedFuzzer(e, "f1", project.ID)

	rec := e.do(t, http.MethodGet, base+"/"+fuzzer.ID+"/statistics?group_by=year", nil, cookies)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "E_VALIDATION_FAILED", errorCode(t, rec))
}

func seedCrash(e *testEnv, id, fuzzerID, revisionID, created string, duplicates int) {
	e.fake.Crashes[id] = &model.Crash{
		ID:             id,
		Rev:            "1",
		Kind:           model.KindCrash,
		Created:        created,
		FuzzerID:       fuzzerID,
		FuzzerRev:      revisionID,
		InputHash:      "hash-" + id,
		Brief:          "heap-buffer-overflow",
		DuplicateCount: duplicates,
	}
}

func TestRevisionStatisticsDerivedFromCrashes(t *testing.T) {
	e := newTestEnv(t)
	_, fuzzer, base, cookies := revisionBase(e)
	revision := seedRevision(e, "r1", fuzzer.ID, model.RevisionRunning)
	other := seedRevision(e, "r2", fuzzer.ID, model.RevisionStopped)

	seedCrash(e, "c1", fuzzer.ID, revision.ID, "2026-08-18T09:00:00Z", 2)
	seedCrash(e, "c2", fuzzer.ID, revision.ID, "2026-08-18T15:00:00Z", 0)
	seedCrash(e, "c3", fuzzer.ID, other.ID, "2026-08-18T16:00:00Z", 0)
	seedRun(e, fuzzer.ID, revision.ID, "2026-08-18T10:00:00Z")
	seedRun(e, fuzzer.ID, other.ID, "2026-08-18T11:00:00Z")

	rec := e.do(t, http.MethodGet, base+"/"+revision.ID+"/statistics", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statisticsResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Crashes, 1)
	assert.Equal(t, crashBucket{Date: "2026-08-18", Unique: 2, Total: 4}, resp.Crashes[0])
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, revision.ID, resp.Runs[0].FuzzerRev)
}

func TestFuzzerCrashes(t *testing.T) {
	e := newTestEnv(t)
	seedCatalog(e)
	_, project, base, cookies := fuzzerBase(e)
	fuzzer := seedFuzzer(e, "f1", project.ID)
	revision := seedRevision(e, "r1", fuzzer.ID, model.RevisionRunning)

	seedCrash(e, "c1", fuzzer.ID, revision.ID, "2026-08-18T09:00:00Z", 0)
	seedCrash(e, "c2", fuzzer.ID, revision.ID, "2026-08-20T09:00:00Z", 0)
	seedCrash(e, "c3", "other-fuzzer", "rX", "2026-08-18T09:00:00Z", 0)

	rec := e.do(t, http.MethodGet, base+"/"+fuzzer.ID+"/crashes", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp crashListResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	// Newest first.
	assert.Equal(t, "c2", resp.Items[0].ID)
}

func TestRevisionCrashesFiltersByRevision(t *testing.T) {
	e := newTestEnv(t)
	_, fuzzer, base, cookies := revisionBase(e)
	revision := seedRevision(e, "r1", fuzzer.ID, model.RevisionRunning)
	other := seedRevision(e, "r2", fuzzer.ID, model.RevisionStopped)

	seedCrash(e, "c1", fuzzer.ID, revision.ID, "2026-08-18T09:00:00Z", 0)
	seedCrash(e, "c2", fuzzer.ID, other.ID, "2026-08-18T10:00:00Z", 0)

	rec := e.do(t, http.MethodGet, base+"/"+revision.ID+"/crashes", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp crashListResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "c1", resp.Items[0].ID)
}
