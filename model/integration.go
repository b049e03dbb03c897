package model

// BugTrackerType discriminates integration configurations.
type BugTrackerType string

const (
	TrackerJira     BugTrackerType = "jira"
	TrackerYouTrack BugTrackerType = "youtrack"
)

// IntegrationStatus tracks the reporter-side verification of credentials.
type IntegrationStatus string

const (
	IntegrationCreated    IntegrationStatus = "Created"
	IntegrationInProgress IntegrationStatus = "InProgress"
	IntegrationSucceeded  IntegrationStatus = "Succeeded"
	IntegrationFailed     IntegrationStatus = "Failed"
)

// JiraConfig holds Jira reporter credentials.
type JiraConfig struct {
	URL       string `json:"url"`
	Project   string `json:"project"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	IssueType string `json:"issue_type"`
	Priority  string `json:"priority,omitempty"`
}

// YouTrackConfig holds YouTrack reporter credentials.
type YouTrackConfig struct {
	URL     string `json:"url"`
	Token   string `json:"token"`
	Project string `json:"project"`
}

// IntegrationConfig is a closed sum over the supported bug trackers,
// discriminated by Type. Exactly one variant field is set.
type IntegrationConfig struct {
	Type     BugTrackerType  `json:"type"`
	Jira     *JiraConfig     `json:"jira,omitempty"`
	YouTrack *YouTrackConfig `json:"youtrack,omitempty"`
}

// Valid reports whether the discriminant matches the populated variant.
func (c *IntegrationConfig) Valid() bool {
	switch c.Type {
	case TrackerJira:
		return c.Jira != nil && c.YouTrack == nil && c.Jira.URL != "" && c.Jira.Project != ""
	case TrackerYouTrack:
		return c.YouTrack != nil && c.Jira == nil && c.YouTrack.URL != "" && c.YouTrack.Project != ""
	}
	return false
}

// Integration maps crash events of a project onto a bug tracker. UpdateRev
// is rotated every time credentials are saved; reporter callbacks carrying a
// stale UpdateRev are discarded.
type Integration struct {
	ID             string            `json:"_id,omitempty"`
	Rev            string            `json:"_rev,omitempty"`
	Kind           string            `json:"kind"`
	Name           string            `json:"name"`
	ProjectID      string            `json:"project_id"`
	ConfigID       string            `json:"config_id"`
	Config         IntegrationConfig `json:"config"`
	Status         IntegrationStatus `json:"status"`
	Enabled        bool              `json:"enabled"`
	UpdateRev      string            `json:"update_rev"`
	NumUndelivered int               `json:"num_undelivered"`
	LastError      string            `json:"last_error,omitempty"`
	Erasable
}

// IntegrationResponse is the wire shape with credentials stripped.
type IntegrationResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ProjectID      string            `json:"project_id"`
	Type           BugTrackerType    `json:"type"`
	Status         IntegrationStatus `json:"status"`
	Enabled        bool              `json:"enabled"`
	NumUndelivered int               `json:"num_undelivered"`
	LastError      string            `json:"last_error,omitempty"`
}

// ToResponse strips tracker credentials from the integration.
func (i *Integration) ToResponse() *IntegrationResponse {
	return &IntegrationResponse{
		ID:             i.ID,
		Name:           i.Name,
		ProjectID:      i.ProjectID,
		Type:           i.Config.Type,
		Status:         i.Status,
		Enabled:        i.Enabled,
		NumUndelivered: i.NumUndelivered,
		LastError:      i.LastError,
	}
}
