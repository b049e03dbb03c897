package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/model"
)

// dayFormat is the bucket key format of the crash rollups.
const dayFormat = "2006-01-02"

type crashBucket struct {
	Date   string `json:"date"`
	Unique int64  `json:"unique"`
	Total  int64  `json:"total"`
}

type statisticsResponse struct {
	Crashes []crashBucket            `json:"crashes"`
	Runs    []model.FuzzerStatistics `json:"runs"`
}

type crashListResponse struct {
	Items []model.Crash `json:"items"`
	Count int           `json:"count"`
}

// bucketFor maps a day onto its group key: the day itself, the Monday of its
// week, or the first of its month.
func bucketFor(day string, groupBy model.StatisticsGroupBy) string {
	t, err := time.Parse(dayFormat, day)
	if err != nil {
		return day
	}
	switch groupBy {
	case model.GroupByWeek:
		return t.AddDate(0, 0, -int((t.Weekday()+6)%7)).Format(dayFormat)
	case model.GroupByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format(dayFormat)
	}
	return day
}

// groupCrashDays folds the per-day rollups into the requested buckets,
// sorted by date.
func groupCrashDays(days []model.CrashStatistics, groupBy model.StatisticsGroupBy) []crashBucket {
	byBucket := map[string]*crashBucket{}
	for i := range days {
		key := bucketFor(days[i].Date, groupBy)
		bucket, ok := byBucket[key]
		if !ok {
			bucket = &crashBucket{Date: key}
			byBucket[key] = bucket
		}
		bucket.Unique += days[i].Unique
		bucket.Total += days[i].Total
	}
	out := make([]crashBucket, 0, len(byBucket))
	for _, bucket := range byBucket {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// dayBounds trims the timestamp range down to the rollup day keys.
func dayBounds(from, to string) (string, string) {
	if len(from) >= len(dayFormat) {
		from = from[:len(dayFormat)]
	}
	if len(to) >= len(dayFormat) {
		to = to[:len(dayFormat)]
	}
	return from, to
}

func (s *Server) fuzzerStatistics(c echo.Context) error {
	from, to, err := dateRangeParam(c)
	if err != nil {
		return err
	}
	groupBy, err := groupByParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	fuzzer := pathFuzzer(c)

	dayFrom, dayTo := dayBounds(from, to)
	days, err := s.store.Statistics.ListCrashDays(ctx, fuzzer.ID, dayFrom, dayTo)
	if err != nil {
		return err
	}
	runs, err := s.store.Statistics.ListFuzzerStats(ctx, fuzzer.ID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statisticsResponse{
		Crashes: groupCrashDays(days, groupBy),
		Runs:    runs,
	})
}

// revisionStatistics narrows the fuzzer statistics down to one revision. The
// crash rollups are kept per fuzzer, so revision crash buckets are derived
// from the crash records themselves.
func (s *Server) revisionStatistics(c echo.Context) error {
	from, to, err := dateRangeParam(c)
	if err != nil {
		return err
	}
	groupBy, err := groupByParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	revision := pathRevision(c)

	allRuns, err := s.store.Statistics.ListFuzzerStats(ctx, revision.FuzzerID, from, to)
	if err != nil {
		return err
	}
	runs := make([]model.FuzzerStatistics, 0, len(allRuns))
	for i := range allRuns {
		if allRuns[i].FuzzerRev == revision.ID {
			runs = append(runs, allRuns[i])
		}
	}

	crashes, err := s.listRevisionCrashes(c, revision, from, to)
	if err != nil {
		return err
	}
	days := map[string]*model.CrashStatistics{}
	for i := range crashes {
		created := crashes[i].Created
		if len(created) >= len(dayFormat) {
			created = created[:len(dayFormat)]
		}
		day, ok := days[created]
		if !ok {
			day = &model.CrashStatistics{Date: created, FuzzerID: revision.FuzzerID}
			days[created] = day
		}
		day.Unique++
		day.Total += 1 + int64(crashes[i].DuplicateCount)
	}
	flat := make([]model.CrashStatistics, 0, len(days))
	for _, day := range days {
		flat = append(flat, *day)
	}
	return c.JSON(http.StatusOK, statisticsResponse{
		Crashes: groupCrashDays(flat, groupBy),
		Runs:    runs,
	})
}

func (s *Server) fuzzerCrashes(c echo.Context) error {
	from, to, err := dateRangeParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	fuzzer := pathFuzzer(c)

	crashes, err := s.store.Crashes.ListByFuzzer(ctx, fuzzer.ID, from, to, pageParam(c))
	if err != nil {
		return err
	}
	count, err := s.store.Crashes.CountByFuzzer(ctx, fuzzer.ID, from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, crashListResponse{Items: crashes, Count: count})
}

// listRevisionCrashes fetches every crash of the revision inside the range.
func (s *Server) listRevisionCrashes(c echo.Context, revision *model.Revision, from, to string) ([]model.Crash, error) {
	ctx := c.Request().Context()
	out := []model.Crash{}
	for page := 0; ; page++ {
		crashes, err := s.store.Crashes.ListByFuzzer(ctx, revision.FuzzerID, from, to, cascadePage(page))
		if err != nil {
			return nil, err
		}
		if len(crashes) == 0 {
			return out, nil
		}
		for i := range crashes {
			if crashes[i].FuzzerRev == revision.ID {
				out = append(out, crashes[i])
			}
		}
	}
}

func (s *Server) revisionCrashes(c echo.Context) error {
	from, to, err := dateRangeParam(c)
	if err != nil {
		return err
	}
	crashes, err := s.listRevisionCrashes(c, pathRevision(c), from, to)
	if err != nil {
		return err
	}
	page := pageParam(c)
	start := page.Num * page.Size
	if start > len(crashes) {
		start = len(crashes)
	}
	end := start + page.Size
	if end > len(crashes) {
		end = len(crashes)
	}
	return c.JSON(http.StatusOK, crashListResponse{Items: crashes[start:end], Count: len(crashes)})
}
