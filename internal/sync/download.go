package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rxstack/pharmgo/internal/cloud"
	"github.com/rxstack/pharmgo/internal/models"
	"gorm.io/gorm"
)

// DownloadIncremental pulls server changes since each entity's watermark and
// applies them to the local store, one short transaction per page. The
// watermark advances inside the same transaction as its batch, so a crash
// can never separate the two.
func (e *Engine) DownloadIncremental(ctx context.Context) (*DownloadStats, error) {
	if err := e.acquireSession(PhaseDownloading); err != nil {
		return nil, err
	}
	var opErr error
	defer func() { e.releaseSession(opErr) }()

	stats, err := e.download(ctx)
	opErr = err
	return stats, err
}

// DownloadFull clears every watermark first, forcing the server to return
// the complete dataset. Used to recover from suspected local inconsistency.
func (e *Engine) DownloadFull(ctx context.Context) (*DownloadStats, error) {
	if err := e.acquireSession(PhaseDownloading); err != nil {
		return nil, err
	}
	var opErr error
	defer func() { e.releaseSession(opErr) }()

	// Check credentials before touching watermarks: an unauthenticated call
	// must not force the next sync into a full refetch
	if _, err := e.requireSession(); err != nil {
		opErr = err
		return nil, err
	}

	log.Println("📥 Full download requested, clearing watermarks")
	if err := e.db.Where("1 = 1").Delete(&models.SyncWatermark{}).Error; err != nil {
		opErr = wrapStore("reset watermarks", err)
		return nil, opErr
	}

	stats, err := e.download(ctx)
	opErr = err
	return stats, err
}

// download runs the per-entity pull loop under an already-acquired session
func (e *Engine) download(ctx context.Context) (*DownloadStats, error) {
	state, err := e.requireSession()
	if err != nil {
		return nil, err
	}

	history := e.beginHistory(uuid.NewString(), "download")
	stats := NewDownloadStats()

	for _, entityType := range models.SyncEntityTypes {
		if entityCfg, ok := e.config.Entities[entityType]; ok && !entityCfg.Enabled {
			continue
		}
		if e.cancelled() {
			log.Println("🛑 Download cancelled between stages")
			e.finishHistory(history, "cancelled", nil)
			return stats, ErrCancelled
		}

		applied, err := e.downloadEntity(ctx, state, entityType, stats)
		if err != nil {
			e.setOnline(false)
			e.finishHistory(history, "failed", err)
			return stats, fmt.Errorf("download %s: %w", entityType, err)
		}
		stats.add(entityType, applied)
	}

	e.setOnline(true)
	e.mu.Lock()
	e.lastSync = time.Now().UTC()
	e.mu.Unlock()

	history.RecordsApplied = stats.Total
	e.finishHistory(history, "completed", nil)
	log.Printf("✅ Download completed: %d records applied", stats.Total)
	return stats, nil
}

// downloadEntity drains the server's change stream for one entity type
func (e *Engine) downloadEntity(ctx context.Context, state *models.SessionState, entityType string, stats *DownloadStats) (int, error) {
	wm, err := e.loadWatermark(e.db.DB, entityType)
	if err != nil {
		return 0, wrapStore("load watermark", err)
	}

	cursor := wm.Cursor
	applied := 0
	fetched := 0

	for {
		page, err := e.client.Pull(ctx, state.ServerURL, state.AuthToken, entityType, cursor, e.config.DownloadPageSize)
		if err != nil {
			return applied, err
		}
		fetched += len(page.Records)

		if len(page.Records) > 0 {
			batchApplied, err := e.applyBatch(entityType, page.Records, page.NextCursor)
			if err != nil {
				return applied, err
			}
			applied += batchApplied
		}

		e.emitProgress(entityType, pagePercent(fetched, page.Total, page.HasMore))

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor

		if e.cancelled() {
			log.Printf("🛑 Download of %s cancelled between batches", entityType)
			return applied, ErrCancelled
		}
	}

	e.emitProgress(entityType, 100)
	return applied, nil
}

// applyBatch writes one pull page and its watermark advance in a single
// local transaction. A server record is skipped when the branch holds an
// undelivered pending change for that entity: the local edit is the source
// of truth until it has been pushed.
func (e *Engine) applyBatch(entityType string, records []cloud.Record, nextCursor string) (int, error) {
	applied := 0
	err := e.store.WithTransaction(func(tx *gorm.DB) error {
		var newest time.Time
		for _, rec := range records {
			if rec.UpdatedAt.After(newest) {
				newest = rec.UpdatedAt
			}

			pending, err := e.tracker.HasPending(tx, entityType, rec.ID)
			if err != nil {
				return err
			}
			if pending {
				log.Printf("⏭️ Skipping server %s %s: local pending change supersedes it", entityType, rec.ID)
				continue
			}

			if rec.Deleted {
				if err := e.store.Delete(tx, entityType, rec.ID); err != nil {
					return err
				}
			} else {
				if err := e.store.UpsertJSON(tx, entityType, rec.Data); err != nil {
					return err
				}
			}
			applied++
		}

		if newest.IsZero() {
			newest = time.Now().UTC()
		}
		return e.advanceWatermark(tx, entityType, nextCursor, newest)
	})
	if err != nil {
		return 0, wrapStore("apply batch", err)
	}
	return applied, nil
}

// pagePercent estimates stage progress from what the server reports
func pagePercent(fetched, total int, hasMore bool) int {
	if !hasMore {
		return 100
	}
	if total > 0 {
		return fetched * 100 / total
	}
	// Server did not report a total; show liveness without claiming completion
	return 50
}
