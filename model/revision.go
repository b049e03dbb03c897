package model

// RevisionStatus is the lifecycle state of a revision.
type RevisionStatus string

const (
	RevisionUnverified RevisionStatus = "Unverified"
	RevisionVerifying  RevisionStatus = "Verifying"
	RevisionRunning    RevisionStatus = "Running"
	RevisionStopped    RevisionStatus = "Stopped"
)

// Health summarizes upload completeness and scheduler feedback.
type Health string

const (
	HealthOk      Health = "Ok"
	HealthWarning Health = "Warning"
	HealthError   Health = "Error"
)

// UploadKind names one of the three uploadable artifacts of a revision.
type UploadKind string

const (
	UploadBinaries UploadKind = "binaries"
	UploadSeeds    UploadKind = "seeds"
	UploadConfig   UploadKind = "config"
)

// ParseUploadKind validates a files path segment.
func ParseUploadKind(s string) (UploadKind, bool) {
	switch UploadKind(s) {
	case UploadBinaries, UploadSeeds, UploadConfig:
		return UploadKind(s), true
	}
	return "", false
}

// UploadError records why the last upload of a slot failed.
type UploadError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// UploadState tracks one artifact slot of a revision. Attempted stays false
// until the first upload is tried, which lets health distinguish "never
// uploaded" from "upload failed".
type UploadState struct {
	Uploaded  bool         `json:"uploaded"`
	Attempted bool         `json:"attempted,omitempty"`
	LastError *UploadError `json:"last_error,omitempty"`
}

// Revision is a concrete uploaded snapshot of a fuzzer with lifecycle state
// and resource limits.
type Revision struct {
	ID            string         `json:"_id,omitempty"`
	Rev           string         `json:"_rev,omitempty"`
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	FuzzerID      string         `json:"fuzzer_id"`
	ImageID       string         `json:"image_id"`
	Status        RevisionStatus `json:"status"`
	Health        Health         `json:"health"`
	Feedback      string         `json:"feedback,omitempty"`
	IsVerified    bool           `json:"is_verified"`
	Binaries      UploadState    `json:"binaries"`
	Seeds         UploadState    `json:"seeds"`
	Config        UploadState    `json:"config"`
	CPUUsage      int64          `json:"cpu_usage"`
	RAMUsage      int64          `json:"ram_usage"`
	TmpfsSize     int64          `json:"tmpfs_size"`
	Created       string         `json:"created"`
	LastStartDate string         `json:"last_start_date,omitempty"`
	LastStopDate  string         `json:"last_stop_date,omitempty"`
	Erasable
}

// RecomputeHealth derives health from upload completeness: Ok when binaries
// are uploaded and no attempted slot sits in a failed state, Error otherwise.
func (r *Revision) RecomputeHealth() {
	ok := r.Binaries.Uploaded &&
		(r.Seeds.Uploaded || !r.Seeds.Attempted) &&
		(r.Config.Uploaded || !r.Config.Attempted)
	if ok {
		r.Health = HealthOk
	} else {
		r.Health = HealthError
	}
}

// Slot returns a pointer to the upload state for kind.
func (r *Revision) Slot(kind UploadKind) *UploadState {
	switch kind {
	case UploadBinaries:
		return &r.Binaries
	case UploadSeeds:
		return &r.Seeds
	default:
		return &r.Config
	}
}

// Editable reports whether binaries, seeds, and config may still change.
// Artifacts are frozen once verification starts.
func (r *Revision) Editable() bool {
	return r.Status == RevisionUnverified
}
