package model

// Document kind discriminators. Every CouchDB document carries one so mixed
// collections stay queryable by type.
const (
	KindUser            = "user"
	KindProject         = "project"
	KindFuzzer          = "fuzzer"
	KindRevision        = "revision"
	KindImage           = "image"
	KindEngine          = "engine"
	KindLang            = "lang"
	KindIntegrationType = "integration_type"
	KindIntegration     = "integration"
	KindCrash           = "crash"
	KindCrashStats      = "crash_statistics"
	KindFuzzerStats     = "fuzzer_statistics"
	KindSession         = "session"
	KindLockout         = "lockout"
	KindUnsentMessage   = "unsent_message"
)

// User is a platform account. System users are seeded at bootstrap and can
// never be deleted.
type User struct {
	ID           string `json:"_id,omitempty"`
	Rev          string `json:"_rev,omitempty"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
	IsConfirmed  bool   `json:"is_confirmed"`
	IsDisabled   bool   `json:"is_disabled"`
	IsAdmin      bool   `json:"is_admin"`
	IsSystem     bool   `json:"is_system"`
	Created      string `json:"created"`
	Erasable
}

// UserResponse is the wire shape of a user with credentials stripped.
type UserResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	IsConfirmed bool   `json:"is_confirmed"`
	IsDisabled  bool   `json:"is_disabled"`
	IsAdmin     bool   `json:"is_admin"`
	IsSystem    bool   `json:"is_system"`
	Created     string `json:"created"`
	ErasureDate string `json:"erasure_date,omitempty"`
}

// ToResponse strips the password hash and storage fields.
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Name:        u.Name,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		IsConfirmed: u.IsConfirmed,
		IsDisabled:  u.IsDisabled,
		IsAdmin:     u.IsAdmin,
		IsSystem:    u.IsSystem,
		Created:     u.Created,
		ErasureDate: u.ErasureDate,
	}
}
