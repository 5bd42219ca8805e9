package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rxstack/pharmgo/internal/cloud"
	"github.com/rxstack/pharmgo/internal/models"
)

// UploadPending drains the change log to the cloud service in creation
// order, one batch per push. A failed or partially rejected batch never
// aborts the session: its rows return to FAILED for a later retry and the
// next batch proceeds.
func (e *Engine) UploadPending(ctx context.Context) (*UploadStats, error) {
	if err := e.acquireSession(PhaseUploading); err != nil {
		return nil, err
	}
	var opErr error
	defer func() { e.releaseSession(opErr) }()

	state, err := e.requireSession()
	if err != nil {
		opErr = err
		return nil, err
	}

	history := e.beginHistory(uuid.NewString(), "upload")
	stats := NewUploadStats()

	entityTypes, err := e.tracker.EntityTypesWithPending()
	if err != nil {
		opErr = wrapStore("list pending", err)
		e.finishHistory(history, "failed", opErr)
		return nil, opErr
	}

	for _, entityType := range entityTypes {
		if e.cancelled() {
			log.Println("🛑 Upload cancelled between stages")
			e.finishHistory(history, "cancelled", nil)
			return stats, ErrCancelled
		}
		if err := e.uploadEntity(ctx, state, entityType, stats); err != nil {
			if err == ErrCancelled {
				e.finishHistory(history, "cancelled", nil)
				return stats, ErrCancelled
			}
			// Transport-level failure: the batch rows are already marked
			// FAILED; move on to the next entity type.
			log.Printf("⚠️ Upload of %s failed: %v", entityType, err)
			e.setOnline(false)
			continue
		}
		e.emitProgress(entityType, 100)
	}

	if _, err := e.tracker.PruneDelivered(time.Duration(e.config.DeliveredRetentionHours) * time.Hour); err != nil {
		log.Printf("⚠️ Failed to prune delivered changes: %v", err)
	}

	e.mu.Lock()
	e.lastSync = time.Now().UTC()
	e.mu.Unlock()

	history.RecordsPushed = stats.TotalDelivered()
	history.RecordsRejected = stats.TotalFailed()
	e.finishHistory(history, "completed", nil)
	log.Printf("✅ Upload completed: %d delivered, %d failed", stats.TotalDelivered(), stats.TotalFailed())
	return stats, nil
}

// uploadEntity pushes batches for one entity type until none remain. Rows
// rejected by the server stay FAILED for a later session; the afterID cursor
// pages past them so every later PENDING row still gets its push.
func (e *Engine) uploadEntity(ctx context.Context, state *models.SessionState, entityType string, stats *UploadStats) error {
	var afterID uint

	for {
		if e.cancelled() {
			return ErrCancelled
		}

		batch, err := e.tracker.NextBatch(entityType, afterID, e.config.UploadBatchSize)
		if err != nil {
			return wrapStore("next batch", err)
		}
		if len(batch) == 0 {
			return nil
		}
		afterID = batch[len(batch)-1].ID

		ids := changeIDs(batch)
		if err := e.tracker.MarkInFlight(ids); err != nil {
			return wrapStore("mark in-flight", err)
		}

		result, err := e.client.Push(ctx, state.ServerURL, state.AuthToken, entityType, toUploads(batch))
		if err != nil {
			if markErr := e.tracker.MarkFailed(ids, err.Error()); markErr != nil {
				log.Printf("⚠️ Failed to mark batch failed: %v", markErr)
			}
			stats.Failed[entityType] += len(batch)
			return err
		}
		e.setOnline(true)

		delivered, failed := splitByOutcome(batch, result)
		if err := e.tracker.MarkDelivered(delivered); err != nil {
			return wrapStore("mark delivered", err)
		}
		for _, rej := range result.Rejected {
			log.Printf("❌ Server rejected %s %s: %s", entityType, rej.ID, rej.Reason)
		}
		if len(failed) > 0 {
			if err := e.tracker.MarkFailed(failed, rejectionReason(result)); err != nil {
				return wrapStore("mark failed", err)
			}
		}

		stats.Delivered[entityType] += len(delivered)
		stats.Failed[entityType] += len(failed)
		stats.Rejected = append(stats.Rejected, result.Rejected...)

		e.emitProgress(entityType, e.uploadPercent(entityType))
	}
}

func changeIDs(batch []models.PendingChange) []uint {
	ids := make([]uint, 0, len(batch))
	for _, c := range batch {
		ids = append(ids, c.ID)
	}
	return ids
}

// toUploads converts log rows to the wire shape
func toUploads(batch []models.PendingChange) []cloud.ChangeUpload {
	uploads := make([]cloud.ChangeUpload, 0, len(batch))
	for _, c := range batch {
		uploads = append(uploads, cloud.ChangeUpload{
			ChangeID:   c.ID,
			EntityID:   c.EntityID,
			Operation:  c.Operation,
			Payload:    json.RawMessage(c.Payload),
			RecordedAt: c.CreatedAt,
		})
	}
	return uploads
}

// splitByOutcome partitions a pushed batch by the server's per-record verdict
func splitByOutcome(batch []models.PendingChange, result *cloud.PushResult) (delivered, failed []uint) {
	accepted := make(map[string]bool, len(result.AcceptedIDs))
	for _, id := range result.AcceptedIDs {
		accepted[id] = true
	}
	for _, c := range batch {
		if accepted[c.EntityID] {
			delivered = append(delivered, c.ID)
		} else {
			failed = append(failed, c.ID)
		}
	}
	return delivered, failed
}

func rejectionReason(result *cloud.PushResult) string {
	if len(result.Rejected) == 1 {
		return result.Rejected[0].Reason
	}
	return fmt.Sprintf("server rejected %d records", len(result.Rejected))
}

// uploadPercent reports drain progress for one entity type
func (e *Engine) uploadPercent(entityType string) int {
	remaining, err := e.tracker.NextBatch(entityType, 0, 1)
	if err == nil && len(remaining) == 0 {
		return 100
	}
	return 50
}
