package model

// Crash is a crash event recorded from the external crash analyzer. The
// gateway never deduplicates; DuplicateCount is advanced by explicit
// duplicate events.
type Crash struct {
	ID             string `json:"_id,omitempty"`
	Rev            string `json:"_rev,omitempty"`
	Kind           string `json:"kind"`
	Created        string `json:"created"`
	FuzzerID       string `json:"fuzzer_id"`
	FuzzerRev      string `json:"fuzzer_rev"`
	Preview        string `json:"preview"`
	InputID        string `json:"input_id,omitempty"`
	InputHash      string `json:"input_hash"`
	Output         string `json:"output"`
	Brief          string `json:"brief"`
	Reproduced     bool   `json:"reproduced"`
	Type           string `json:"type"`
	DuplicateCount int    `json:"duplicate_count"`
}
