package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecomputeHealth(t *testing.T) {
	tests := []struct {
		name string
		rev  Revision
		want Health
	}{
		{
			name: "NothingUploaded",
			rev:  Revision{},
			want: HealthError,
		},
		{
			name: "BinariesOnly",
			rev:  Revision{Binaries: UploadState{Uploaded: true, Attempted: true}},
			want: HealthOk,
		},
		{
			name: "SeedsFailed",
			rev: Revision{
				Binaries: UploadState{Uploaded: true, Attempted: true},
				Seeds:    UploadState{Attempted: true, LastError: &UploadError{Code: "E_UPLOAD_FAILURE"}},
			},
			want: HealthError,
		},
		{
			name: "AllUploaded",
			rev: Revision{
				Binaries: UploadState{Uploaded: true, Attempted: true},
				Seeds:    UploadState{Uploaded: true, Attempted: true},
				Config:   UploadState{Uploaded: true, Attempted: true},
			},
			want: HealthOk,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rev.RecomputeHealth()
			assert.Equal(t, tt.want, tt.rev.Health)
		})
	}
}

func TestSlotAndEditable(t *testing.T) {
	rev := Revision{Status: RevisionUnverified}
	assert.True(t, rev.Editable())

	rev.Slot(UploadBinaries).Uploaded = true
	assert.True(t, rev.Binaries.Uploaded)

	rev.Status = RevisionVerifying
	assert.False(t, rev.Editable())
}

func TestIntegrationConfigValid(t *testing.T) {
	jira := IntegrationConfig{
		Type: TrackerJira,
		Jira: &JiraConfig{URL: "https://jira.example.com", Project: "FZ", Username: "bot", Password: "pw", IssueType: "Bug"},
	}
	assert.True(t, jira.Valid())

	// Discriminant must match the populated variant.
	mixed := jira
	mixed.YouTrack = &YouTrackConfig{URL: "https://yt.example.com", Token: "t", Project: "FZ"}
	assert.False(t, mixed.Valid())

	yt := IntegrationConfig{
		Type:     TrackerYouTrack,
		YouTrack: &YouTrackConfig{URL: "https://yt.example.com", Token: "t", Project: "FZ"},
	}
	assert.True(t, yt.Valid())

	bad := IntegrationConfig{Type: "bugzilla"}
	assert.False(t, bad.Valid())
}

func TestNodeGroupValidate(t *testing.T) {
	cloud := NodeGroup{Type: NodeGroupCloud, NodeCPU: 4000, NodeRAM: 8192, NodeCount: 2}
	assert.True(t, cloud.Validate(PlatformCloud))
	assert.False(t, cloud.Validate(PlatformOnPrem))

	local := NodeGroup{Type: NodeGroupLocal, NodeCount: 1}
	assert.True(t, local.Validate(PlatformOnPrem))
	assert.True(t, local.Validate(PlatformCloud))
}
