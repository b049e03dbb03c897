package model

// Project groups fuzzers under a single owner. The owner never changes after
// creation. PoolID references an external compute pool; it may be unset,
// in which case revisions of this project cannot be started.
type Project struct {
	ID          string `json:"_id,omitempty"`
	Rev         string `json:"_rev,omitempty"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	PoolID      string `json:"pool_id,omitempty"`
	Created     string `json:"created"`
	Erasable
}
