package model

// Fuzzer is a named program under test. Engine and language are fixed at
// creation time. ActiveRevision holds only the id of the revision the
// fuzzer-level actions target; the read layer joins the full record when a
// response needs it, which keeps the document graph acyclic.
type Fuzzer struct {
	ID             string `json:"_id,omitempty"`
	Rev            string `json:"_rev,omitempty"`
	Kind           string `json:"kind"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	ProjectID      string `json:"project_id"`
	Engine         string `json:"engine"`
	Lang           string `json:"lang"`
	CIIntegration  bool   `json:"ci_integration"`
	ActiveRevision string `json:"active_revision,omitempty"`
	Created        string `json:"created"`
	Erasable
}

// FuzzerResponse is a fuzzer with its active revision hydrated.
type FuzzerResponse struct {
	Fuzzer
	ActiveRevisionDoc *Revision `json:"active_revision_doc,omitempty"`
}
