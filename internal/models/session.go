package models

import "time"

// SessionState holds the branch's cloud identity. It is persisted as a
// device-local file by the session store, never as a synced table, because
// it carries secret material.
type SessionState struct {
	ServerURL      string     `json:"server_url"`
	BranchCode     string     `json:"branch_code"`
	Email          string     `json:"email"`
	DeviceID       string     `json:"device_id"`
	AuthToken      string     `json:"auth_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsAuthenticated reports whether the stored token is present and unexpired
func (s *SessionState) IsAuthenticated() bool {
	if s == nil || s.AuthToken == "" {
		return false
	}
	if s.TokenExpiresAt != nil && time.Now().After(*s.TokenExpiresAt) {
		return false
	}
	return true
}
