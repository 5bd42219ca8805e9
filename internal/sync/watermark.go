package sync

import (
	"log"
	"time"

	"github.com/rxstack/pharmgo/internal/models"
	"gorm.io/gorm"
)

// loadWatermark returns the checkpoint for an entity type, or an empty one
// when the entity has never been synced.
func (e *Engine) loadWatermark(tx *gorm.DB, entityType string) (*models.SyncWatermark, error) {
	var wm models.SyncWatermark
	err := tx.Where("entity_type = ?", entityType).First(&wm).Error
	if err == gorm.ErrRecordNotFound {
		return &models.SyncWatermark{EntityType: entityType}, nil
	}
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

// advanceWatermark moves an entity's checkpoint forward inside the same
// transaction that applied the batch, so a crash can never leave the
// watermark ahead of the data. Watermarks only move forward.
func (e *Engine) advanceWatermark(tx *gorm.DB, entityType, cursor string, syncedAt time.Time) error {
	wm, err := e.loadWatermark(tx, entityType)
	if err != nil {
		return err
	}

	if wm.LastSyncedAt != nil && !syncedAt.After(*wm.LastSyncedAt) {
		syncedAt = *wm.LastSyncedAt
	}
	wm.LastSyncedAt = &syncedAt
	wm.Cursor = cursor

	if wm.ID == 0 {
		return tx.Create(wm).Error
	}
	return tx.Model(&models.SyncWatermark{}).Where("id = ?", wm.ID).
		Updates(map[string]interface{}{
			"cursor":         wm.Cursor,
			"last_synced_at": wm.LastSyncedAt,
		}).Error
}

// ResetWatermarks clears every checkpoint, forcing the next download to
// fetch the complete dataset. Pending changes and the stored session are
// untouched.
func (e *Engine) ResetWatermarks() error {
	if err := e.acquireSession(PhaseIdle); err != nil {
		return err
	}
	defer e.releaseSession(nil)

	log.Println("♻️ Resetting sync watermarks")
	return wrapStore("reset watermarks",
		e.db.Where("1 = 1").Delete(&models.SyncWatermark{}).Error)
}

// lastSyncTime returns the most recent checkpoint across entity types
func (e *Engine) lastSyncTime() *time.Time {
	var wms []models.SyncWatermark
	if err := e.db.Find(&wms).Error; err != nil {
		return nil
	}
	var latest *time.Time
	for i := range wms {
		t := wms[i].LastSyncedAt
		if t == nil {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = t
		}
	}
	return latest
}
