package model

// StatisticsGroupBy buckets statistics queries.
type StatisticsGroupBy string

const (
	GroupByDay   StatisticsGroupBy = "day"
	GroupByWeek  StatisticsGroupBy = "week"
	GroupByMonth StatisticsGroupBy = "month"
)

// ParseGroupBy validates a group_by query parameter; day is the default.
func ParseGroupBy(s string) (StatisticsGroupBy, bool) {
	switch StatisticsGroupBy(s) {
	case GroupByDay, GroupByWeek, GroupByMonth:
		return StatisticsGroupBy(s), true
	case "":
		return GroupByDay, true
	}
	return "", false
}

// LibFuzzerStats is the libfuzzer-family periodic record.
type LibFuzzerStats struct {
	ExecsPerSec    int64 `json:"execs_per_sec"`
	ExecsDone      int64 `json:"execs_done"`
	EdgeCov        int64 `json:"edge_cov"`
	FeatureCov     int64 `json:"feature_cov"`
	PeakRSS        int64 `json:"peak_rss"`
	CorpusEntries  int64 `json:"corpus_entries"`
	CorpusSize     int64 `json:"corpus_size"`
	CrashesFound   int64 `json:"crashes_found"`
	TimeoutsFound  int64 `json:"timeouts_found"`
	OOMsFound      int64 `json:"ooms_found"`
	LeaksFound     int64 `json:"leaks_found"`
}

// AFLStats is the afl-family periodic record.
type AFLStats struct {
	CyclesDone    int64 `json:"cycles_done"`
	CyclesWOFinds int64 `json:"cycles_wo_finds"`
	ExecsDone     int64 `json:"execs_done"`
	ExecsPerSec   int64 `json:"execs_per_sec"`
	CorpusCount   int64 `json:"corpus_count"`
	CorpusFound   int64 `json:"corpus_found"`
	MaxDepth      int64 `json:"max_depth"`
	PendingFavs   int64 `json:"pending_favs"`
	PendingTotal  int64 `json:"pending_total"`
	StabilityPct  int64 `json:"stability_pct"`
	CrashesSaved  int64 `json:"crashes_saved"`
	HangsSaved    int64 `json:"hangs_saved"`
}

// FuzzerStatistics is one periodic statistics document for a revision,
// discriminated by engine family. Exactly one of LibFuzzer and AFL is set.
type FuzzerStatistics struct {
	ID        string          `json:"_id,omitempty"`
	Rev       string          `json:"_rev,omitempty"`
	Kind      string          `json:"kind"`
	FuzzerID  string          `json:"fuzzer_id"`
	FuzzerRev string          `json:"fuzzer_rev"`
	Family    EngineFamily    `json:"family"`
	Date      string          `json:"date"`
	LibFuzzer *LibFuzzerStats `json:"libfuzzer,omitempty"`
	AFL       *AFLStats       `json:"afl,omitempty"`
}

// CrashStatistics is the per-fuzzer per-day crash counter rollup.
type CrashStatistics struct {
	ID     string `json:"_id,omitempty"`
	Rev    string `json:"_rev,omitempty"`
	Kind   string `json:"kind"`
	// Date is the UTC day in YYYY-MM-DD form.
	Date     string `json:"date"`
	FuzzerID string `json:"fuzzer_id"`
	Unique   int64  `json:"unique"`
	Total    int64  `json:"total"`
}
