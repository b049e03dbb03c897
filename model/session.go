package model

// Session is a server-side login cookie record. The SESSION_ID cookie value
// is the document id.
type Session struct {
	ID       string `json:"_id,omitempty"`
	Rev      string `json:"_rev,omitempty"`
	Kind     string `json:"kind"`
	UserID   string `json:"user_id"`
	Metadata string `json:"metadata,omitempty"`
	Expires  string `json:"expires"`
}

// Lockout is a bruteforce-protection row for a (username, nonce) device
// pair. It expires after the configured lockout period; a periodic sweeper
// deletes stale rows.
type Lockout struct {
	ID       string `json:"_id,omitempty"`
	Rev      string `json:"_rev,omitempty"`
	Kind     string `json:"kind"`
	Username string `json:"username"`
	Nonce    string `json:"nonce"`
	Expires  string `json:"expires"`
}

// UnsentMessage parks an outbound MQ payload that could not be published, so
// a retry loop can drain it later.
type UnsentMessage struct {
	ID      string `json:"_id,omitempty"`
	Rev     string `json:"_rev,omitempty"`
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Created string `json:"created"`
}
