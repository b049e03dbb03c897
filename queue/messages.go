package queue

import (
	"encoding/json"
	"fmt"

	"github.com/fuzzbed/gateway/model"
)

// Message types the gateway publishes.
const (
	TypeStartFuzzer       = "start_fuzzer"
	TypeUpdateFuzzer      = "update_fuzzer"
	TypeStopFuzzer        = "stop_fuzzer"
	TypeStopFuzzersInPool = "stop_fuzzers_in_pool"
	TypeReportCrash       = "report_crash"
	TypeCheckIntegration  = "check_integration"
)

// Message types the gateway consumes.
const (
	TypeUniqueCrashFound    = "unique_crash_found"
	TypeDuplicateCrashFound = "duplicate_crash_found"
	TypeFuzzerVerified      = "fuzzer_verified"
	TypeFuzzerStopped       = "fuzzer_stopped"
	TypeFuzzerStatusChanged = "fuzzer_status_changed"
	TypeFuzzerRunResult     = "fuzzer_run_result"
	TypeIntegrationResult   = "integration_result"
	TypeReportUndelivered   = "report_undelivered"
	TypePoolDeleted         = "pool_deleted"
)

// Envelope is the wire frame of every broker message. Payload decoding is
// deferred until the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(msgType string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return &Envelope{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals the payload into out.
func (e *Envelope) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return nil
}

// StartFuzzerPayload asks the scheduler to run a revision. ResetState tells
// the scheduler to discard any runtime state of a previous run; IsVerified
// decides whether the run starts with a verification round.
type StartFuzzerPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	RevisionID string `json:"revision_id"`
	PoolID     string `json:"pool_id"`
	Engine     string `json:"engine"`
	Lang       string `json:"lang"`
	Image      string `json:"image"`
	CPUUsage   int64  `json:"cpu_usage"`
	RAMUsage   int64  `json:"ram_usage"`
	TmpfsSize  int64  `json:"tmpfs_size"`
	ResetState bool   `json:"reset_state"`
	IsVerified bool   `json:"is_verified"`
	Restart    bool   `json:"restart,omitempty"`
}

// UpdateFuzzerPayload resizes a running revision in place.
type UpdateFuzzerPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	RevisionID string `json:"revision_id"`
	CPUUsage   int64  `json:"cpu_usage"`
	RAMUsage   int64  `json:"ram_usage"`
	TmpfsSize  int64  `json:"tmpfs_size"`
}

// StopFuzzerPayload asks the scheduler to stop a revision.
type StopFuzzerPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	RevisionID string `json:"revision_id"`
}

// StopFuzzersInPoolPayload stops everything scheduled on a pool.
type StopFuzzersInPoolPayload struct {
	PoolID string `json:"pool_id"`
}

// ReportCrashPayload forwards a crash to a bug-tracker reporter. UpdateRev
// pins the integration credentials generation the report was built against.
type ReportCrashPayload struct {
	IntegrationID  string                  `json:"integration_id"`
	UpdateRev      string                  `json:"update_rev"`
	Config         model.IntegrationConfig `json:"config"`
	CrashID        string                  `json:"crash_id"`
	Brief          string                  `json:"brief"`
	Output         string                  `json:"output"`
	Preview        string                  `json:"preview"`
	CrashType      string                  `json:"crash_type"`
	Duplicate      bool                    `json:"duplicate"`
	DuplicateCount int                     `json:"duplicate_count,omitempty"`
}

// CheckIntegrationPayload asks a reporter to verify saved credentials.
type CheckIntegrationPayload struct {
	IntegrationID string                  `json:"integration_id"`
	UpdateRev     string                  `json:"update_rev"`
	Config        model.IntegrationConfig `json:"config"`
}

// CrashFoundPayload is a new unique crash from the crash analyzer.
type CrashFoundPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	FuzzerRev  string `json:"fuzzer_rev"`
	Preview    string `json:"preview"`
	InputID    string `json:"input_id,omitempty"`
	InputHash  string `json:"input_hash"`
	Output     string `json:"output"`
	Brief      string `json:"brief"`
	Reproduced bool   `json:"reproduced"`
	Type       string `json:"type"`
}

// DuplicateCrashPayload advances the duplicate counter of a known crash.
type DuplicateCrashPayload struct {
	FuzzerID  string `json:"fuzzer_id"`
	FuzzerRev string `json:"fuzzer_rev"`
	InputHash string `json:"input_hash"`
}

// FuzzerVerifiedPayload is the scheduler's verification verdict.
type FuzzerVerifiedPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	RevisionID string `json:"revision_id"`
	Verified   bool   `json:"verified"`
	Feedback   string `json:"feedback,omitempty"`
}

// FuzzerStoppedPayload reports a revision left the pool.
type FuzzerStoppedPayload struct {
	FuzzerID   string `json:"fuzzer_id"`
	RevisionID string `json:"revision_id"`
	Feedback   string `json:"feedback,omitempty"`
}

// FuzzerStatusChangedPayload carries scheduler-side health transitions of a
// running revision.
type FuzzerStatusChangedPayload struct {
	FuzzerID   string       `json:"fuzzer_id"`
	RevisionID string       `json:"revision_id"`
	Health     model.Health `json:"health"`
	Feedback   string       `json:"feedback,omitempty"`
}

// FuzzerRunResultPayload is a periodic statistics record.
type FuzzerRunResultPayload struct {
	FuzzerID  string                `json:"fuzzer_id"`
	FuzzerRev string                `json:"fuzzer_rev"`
	Family    model.EngineFamily    `json:"family"`
	Date      string                `json:"date"`
	LibFuzzer *model.LibFuzzerStats `json:"libfuzzer,omitempty"`
	AFL       *model.AFLStats       `json:"afl,omitempty"`
}

// IntegrationResultPayload is a reporter callback for a credentials check or
// a crash report.
type IntegrationResultPayload struct {
	IntegrationID string `json:"integration_id"`
	UpdateRev     string `json:"update_rev"`
	Succeeded     bool   `json:"succeeded"`
	Error         string `json:"error,omitempty"`
}

// ReportUndeliveredPayload counts a report the tracker never accepted.
type ReportUndeliveredPayload struct {
	IntegrationID string `json:"integration_id"`
	UpdateRev     string `json:"update_rev"`
}

// PoolDeletedPayload announces a pool removal from the pool manager.
type PoolDeletedPayload struct {
	PoolID string `json:"pool_id"`
}
