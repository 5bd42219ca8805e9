package cloud

import (
	"encoding/json"
	"time"
)

// Credentials is the result of a successful cloud login
type Credentials struct {
	Token      string     `json:"token"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	BranchCode string     `json:"branch_code"`
}

// Record is one server-side entity snapshot in a pull page
type Record struct {
	ID        string          `json:"id"`
	UpdatedAt time.Time       `json:"updated_at"`
	Deleted   bool            `json:"deleted"`
	Data      json.RawMessage `json:"data"`
}

// PullPage is one page of the server's change stream for an entity type
type PullPage struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor"`
	HasMore    bool     `json:"has_more"`
	Total      int      `json:"total,omitempty"`
}

// ChangeUpload is one pending change shipped to the server
type ChangeUpload struct {
	ChangeID   uint            `json:"change_id"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Rejection explains why the server refused one pushed record
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PushResult reports per-record acceptance for one push batch. Partial
// acceptance is the expected shape, not an error.
type PushResult struct {
	AcceptedIDs []string    `json:"accepted_ids"`
	Rejected    []Rejection `json:"rejected"`
}
