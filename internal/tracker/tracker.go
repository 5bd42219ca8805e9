// Package tracker maintains the durable log of local mutations awaiting
// delivery to the cloud service. Entries are written in the same transaction
// as the business mutation they describe.
package tracker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// undelivered are the statuses a new mutation may coalesce into
var undelivered = []string{models.DeliveryPending, models.DeliveryFailed}

// Tracker records and serves pending changes
type Tracker struct {
	db *database.DB
}

// New creates a change tracker
func New(db *database.DB) *Tracker {
	return &Tracker{db: db}
}

// Record appends a change to the log, coalescing with any undelivered entry
// for the same entity so at most one row per (type, id) awaits delivery.
// Must be called with the transaction of the originating mutation.
func (t *Tracker) Record(tx *gorm.DB, entityType, entityID, operation string, payload json.RawMessage) error {
	switch operation {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return fmt.Errorf("unknown change operation: %s", operation)
	}

	var existing models.PendingChange
	err := tx.Where("entity_type = ? AND entity_id = ? AND status IN ?", entityType, entityID, undelivered).
		Order("id DESC").
		First(&existing).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("lookup pending change: %w", err)
	}

	if err == gorm.ErrRecordNotFound {
		change := models.PendingChange{
			EntityType: entityType,
			EntityID:   entityID,
			Operation:  operation,
			Payload:    datatypes.JSON(payload),
			Status:     models.DeliveryPending,
		}
		if operation == models.OpDelete {
			change.Payload = nil
		}
		return tx.Create(&change).Error
	}

	// Coalesce into the existing row, keeping its sequence position
	coalesced := coalesce(existing.Operation, operation)
	updates := map[string]interface{}{
		"operation": coalesced,
		"status":    models.DeliveryPending,
	}
	if coalesced == models.OpDelete {
		updates["payload"] = nil
	} else {
		updates["payload"] = datatypes.JSON(payload)
	}
	return tx.Model(&models.PendingChange{}).Where("id = ?", existing.ID).Updates(updates).Error
}

// coalesce folds a new operation into a previously recorded one
func coalesce(prev, next string) string {
	switch {
	case next == models.OpDelete:
		// Any undelivered history collapses to a single DELETE
		return models.OpDelete
	case prev == models.OpCreate:
		// The server has never seen this entity, so it is still a CREATE
		return models.OpCreate
	case prev == models.OpDelete:
		// Recreated before the delete shipped; the server copy still exists
		return models.OpUpdate
	default:
		return models.OpUpdate
	}
}

// PendingCount returns the number of undelivered changes
func (t *Tracker) PendingCount() (int64, error) {
	var count int64
	err := t.db.Model(&models.PendingChange{}).
		Where("status IN ?", undelivered).
		Count(&count).Error
	return count, err
}

// HasPending reports whether an entity has an undelivered or in-flight change
func (t *Tracker) HasPending(tx *gorm.DB, entityType, entityID string) (bool, error) {
	var count int64
	err := tx.Model(&models.PendingChange{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Where("status IN ?", []string{models.DeliveryPending, models.DeliveryInFlight, models.DeliveryFailed}).
		Count(&count).Error
	return count > 0, err
}

// NextBatch returns the next ordered slice of undelivered changes for one
// entity type, starting strictly after afterID. Order by ID preserves causal
// order per entity; the cursor lets an upload session page past rows the
// server already rejected instead of refetching them forever.
func (t *Tracker) NextBatch(entityType string, afterID uint, maxSize int) ([]models.PendingChange, error) {
	var changes []models.PendingChange
	err := t.db.Where("entity_type = ? AND status IN ? AND id > ?", entityType, undelivered, afterID).
		Order("id ASC").
		Limit(maxSize).
		Find(&changes).Error
	return changes, err
}

// EntityTypesWithPending lists entity types that currently have undelivered changes
func (t *Tracker) EntityTypesWithPending() ([]string, error) {
	var types []string
	err := t.db.Model(&models.PendingChange{}).
		Where("status IN ?", undelivered).
		Distinct("entity_type").
		Order("entity_type").
		Pluck("entity_type", &types).Error
	return types, err
}

// MarkInFlight transitions rows to IN_FLIGHT before a push attempt
func (t *Tracker) MarkInFlight(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return t.db.Model(&models.PendingChange{}).
		Where("id IN ?", ids).
		Update("status", models.DeliveryInFlight).Error
}

// MarkDelivered transitions rows to DELIVERED. Idempotent.
func (t *Tracker) MarkDelivered(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return t.db.Model(&models.PendingChange{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"status":       models.DeliveryDelivered,
			"delivered_at": &now,
		}).Error
}

// MarkFailed transitions rows back to FAILED and counts the attempt. Idempotent
// with respect to status; each call counts one delivery attempt.
func (t *Tracker) MarkFailed(ids []uint, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"status":        models.DeliveryFailed,
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}
	if reason != "" {
		updates["last_error"] = reason
	}
	return t.db.Model(&models.PendingChange{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

// ResetInFlight returns stranded IN_FLIGHT rows to PENDING. Called on startup
// so a crash mid-upload never loses changes.
func (t *Tracker) ResetInFlight() error {
	return t.db.Model(&models.PendingChange{}).
		Where("status = ?", models.DeliveryInFlight).
		Update("status", models.DeliveryPending).Error
}

// PruneDelivered removes DELIVERED rows older than the retention window
func (t *Tracker) PruneDelivered(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := t.db.Where("status = ? AND delivered_at < ?", models.DeliveryDelivered, cutoff).
		Delete(&models.PendingChange{})
	return res.RowsAffected, res.Error
}
