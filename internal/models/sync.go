package models

import (
	"time"

	"gorm.io/datatypes"
)

// Pending change operations
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Pending change delivery statuses
const (
	DeliveryPending   = "PENDING"
	DeliveryInFlight  = "IN_FLIGHT"
	DeliveryDelivered = "DELIVERED"
	DeliveryFailed    = "FAILED"
)

// SyncWatermark is the per-entity-type checkpoint of the cloud change
// stream. It is owned by the sync engine and only ever advances; a forced
// full download clears the rows instead of rewinding them.
type SyncWatermark struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EntityType   string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"entity_type"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	Cursor       string     `gorm:"type:varchar(255)" json:"cursor"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name
func (SyncWatermark) TableName() string {
	return "sync_watermarks"
}

// PendingChange is one entry of the append-only local change log. A row is
// written in the same transaction as the business mutation it records, so
// the log can never disagree with the data. The auto-increment ID is the
// delivery order.
type PendingChange struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	EntityType   string         `gorm:"type:varchar(50);not null;index:idx_entity_pending" json:"entity_type"`
	EntityID     string         `gorm:"type:varchar(36);not null;index:idx_entity_pending" json:"entity_id"`
	Operation    string         `gorm:"type:varchar(10);not null" json:"operation"`
	Payload      datatypes.JSON `json:"payload"`
	Status       string         `gorm:"type:varchar(15);default:'PENDING';index" json:"status"`
	AttemptCount int            `gorm:"default:0" json:"attempt_count"`
	LastError    *string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
}

// TableName specifies the table name
func (PendingChange) TableName() string {
	return "pending_changes"
}

// SyncHistory is an audit row written once per sync session
type SyncHistory struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SessionID       string         `gorm:"type:varchar(36);index" json:"session_id"`
	Kind            string         `gorm:"type:varchar(20)" json:"kind"` // download, download_full, upload
	Status          string         `gorm:"type:varchar(20)" json:"status"`
	RecordsApplied  int            `gorm:"default:0" json:"records_applied"`
	RecordsPushed   int            `gorm:"default:0" json:"records_pushed"`
	RecordsRejected int            `gorm:"default:0" json:"records_rejected"`
	ErrorMessage    *string        `gorm:"type:text" json:"error_message,omitempty"`
	Details         datatypes.JSON `json:"details"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
}

// TableName specifies the table name
func (SyncHistory) TableName() string {
	return "sync_history"
}
