// Package model defines the gateway's domain entities and enumerations.
//
// All entities are stored as CouchDB documents. Document timestamps are
// RFC 3339 strings in UTC with a Z suffix; because that format orders
// lexicographically, soft-delete predicates and date-range queries compare
// timestamps as plain strings both in Go and in Mango selectors.
package model

import (
	"time"

	"github.com/fuzzbed/gateway/common"
)

// RemovalState selects which soft-delete phases a listing or lookup sees.
type RemovalState string

const (
	// RemovalPresent matches documents with no erasure date.
	RemovalPresent RemovalState = "Present"
	// RemovalTrashBin matches documents whose erasure date is in the future.
	RemovalTrashBin RemovalState = "TrashBin"
	// RemovalErasing matches documents whose erasure date has passed.
	RemovalErasing RemovalState = "Erasing"
	// RemovalVisible unions Present and TrashBin.
	RemovalVisible RemovalState = "Visible"
	// RemovalAll unions all three phases.
	RemovalAll RemovalState = "All"
)

// ParseRemovalState validates a removal_state query parameter. Only the
// states exposed over HTTP are accepted.
func ParseRemovalState(s string) (RemovalState, bool) {
	switch RemovalState(s) {
	case RemovalPresent, RemovalTrashBin, RemovalAll:
		return RemovalState(s), true
	case "":
		return RemovalPresent, true
	}
	return "", false
}

// RemovalAction is the action query parameter of DELETE endpoints.
type RemovalAction string

const (
	ActionDelete  RemovalAction = "Delete"
	ActionRestore RemovalAction = "Restore"
	ActionErase   RemovalAction = "Erase"
)

// ParseRemovalAction validates an action query parameter. The default is
// Delete.
func ParseRemovalAction(s string) (RemovalAction, bool) {
	switch RemovalAction(s) {
	case ActionDelete, ActionRestore, ActionErase:
		return RemovalAction(s), true
	case "":
		return ActionDelete, true
	}
	return "", false
}

// Erasable is embedded by every soft-deletable entity. ErasureDate encodes
// the state machine: empty = present, future = trash bin, past = erasing.
type Erasable struct {
	ErasureDate string `json:"erasure_date,omitempty"`
	NoBackup    bool   `json:"no_backup,omitempty"`
}

// RemovalStateAt reports which phase the entity is in at instant now.
func (e *Erasable) RemovalStateAt(now time.Time) RemovalState {
	if e.ErasureDate == "" {
		return RemovalPresent
	}
	if e.ErasureDate > common.FormatTime(now) {
		return RemovalTrashBin
	}
	return RemovalErasing
}

// IsDeleted reports whether the entity left the Present phase.
func (e *Erasable) IsDeleted() bool {
	return e.ErasureDate != ""
}

// MarkDeleted moves the entity into the trash bin, to be erased after the
// given retention period.
func (e *Erasable) MarkDeleted(now time.Time, retention time.Duration, noBackup bool) {
	e.ErasureDate = common.FormatTime(now.Add(retention))
	e.NoBackup = noBackup
}

// MarkErasing schedules immediate erasure.
func (e *Erasable) MarkErasing(now time.Time, noBackup bool) {
	e.ErasureDate = common.FormatTime(now)
	e.NoBackup = noBackup
}

// Restore returns the entity to the Present phase.
func (e *Erasable) Restore() {
	e.ErasureDate = ""
	e.NoBackup = false
}
