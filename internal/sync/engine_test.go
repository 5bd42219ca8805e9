package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rxstack/pharmgo/internal/cloud"
	"github.com/rxstack/pharmgo/internal/config"
	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/models"
	"github.com/rxstack/pharmgo/internal/session"
	"github.com/rxstack/pharmgo/internal/store"
	"github.com/rxstack/pharmgo/internal/tracker"
)

// fakeCloud stands in for the central pharmacy service. Pull pages are keyed
// by (entityType, cursor); push behavior is scripted per test.
type fakeCloud struct {
	mu        sync.Mutex
	pages     map[string]cloud.PullPage // key: entityType + "|" + cursor
	rejectIDs map[string]string         // entityID -> reason
	failPush  bool
	pushCalls int
	pushed    map[string][]cloud.ChangeUpload
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		pages:     make(map[string]cloud.PullPage),
		rejectIDs: make(map[string]string),
		pushed:    make(map[string][]cloud.ChangeUpload),
	}
}

func (f *fakeCloud) addPage(entityType, cursor string, page cloud.PullPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[entityType+"|"+cursor] = page
}

func (f *fakeCloud) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/branch/login":
			json.NewEncoder(w).Encode(cloud.Credentials{Token: "cloud-token"})

		case strings.HasSuffix(r.URL.Path, "/push"):
			f.mu.Lock()
			f.pushCalls++
			fail := f.failPush
			f.mu.Unlock()
			if fail {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}

			entityType := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/sync/"), "/push")
			var body struct {
				Changes []cloud.ChangeUpload `json:"changes"`
			}
			json.NewDecoder(r.Body).Decode(&body)

			var result cloud.PushResult
			f.mu.Lock()
			f.pushed[entityType] = append(f.pushed[entityType], body.Changes...)
			for _, c := range body.Changes {
				if reason, rejected := f.rejectIDs[c.EntityID]; rejected {
					result.Rejected = append(result.Rejected, cloud.Rejection{ID: c.EntityID, Reason: reason})
				} else {
					result.AcceptedIDs = append(result.AcceptedIDs, c.EntityID)
				}
			}
			f.mu.Unlock()
			json.NewEncoder(w).Encode(result)

		case strings.HasPrefix(r.URL.Path, "/api/v1/sync/"):
			entityType := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/")
			cursor := r.URL.Query().Get("cursor")
			f.mu.Lock()
			page, ok := f.pages[entityType+"|"+cursor]
			f.mu.Unlock()
			if !ok {
				page = cloud.PullPage{}
			}
			json.NewEncoder(w).Encode(page)

		default:
			t.Errorf("Unexpected request path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

type testEnv struct {
	engine  *Engine
	db      *database.DB
	adapter *store.Adapter
	tracker *tracker.Tracker
	cloud   *fakeCloud
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = gdb.AutoMigrate(
		&models.Medicine{},
		&models.Customer{},
		&models.Supplier{},
		&models.Sale{},
		&models.SaleItem{},
		&models.PurchaseOrder{},
		&models.PurchaseOrderItem{},
		&models.GoodsReceipt{},
		&models.GoodsReceiptItem{},
		&models.SyncWatermark{},
		&models.PendingChange{},
		&models.SyncHistory{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	db := &database.DB{DB: gdb}

	fc := newFakeCloud()
	srv := httptest.NewServer(fc.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.DefaultSyncConfig()
	cfg.MaxRetries = 1
	cfg.RequestTimeout = 5

	adapter := store.New(db)
	trk := tracker.New(db)
	engine := New(db, adapter, trk, session.New(t.TempDir()), cfg, "BR-001")

	return &testEnv{
		engine:  engine,
		db:      db,
		adapter: adapter,
		tracker: trk,
		cloud:   fc,
		server:  srv,
	}
}

// authenticate stores a valid cloud session for the engine
func (env *testEnv) authenticate(t *testing.T) {
	t.Helper()
	if err := env.engine.Authenticate(context.Background(), env.server.URL, "branch@example.com", "pw"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
}

func (env *testEnv) record(t *testing.T, entityType, entityID, op, payload string) {
	t.Helper()
	err := env.adapter.WithTransaction(func(tx *gorm.DB) error {
		return env.tracker.Record(tx, entityType, entityID, op, []byte(payload))
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func medicineRecord(id, name string, qty int, updatedAt time.Time) cloud.Record {
	data, _ := json.Marshal(map[string]interface{}{
		"id": id, "name": name, "quantity": qty,
	})
	return cloud.Record{ID: id, UpdatedAt: updatedAt, Data: data}
}

func TestDownloadAppliesServerRecords(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	now := time.Now().UTC()
	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records: []cloud.Record{
			medicineRecord("med-1", "Aspirin", 100, now),
			medicineRecord("med-2", "Ibuprofen", 50, now),
		},
		NextCursor: "m1",
	})
	custData, _ := json.Marshal(map[string]string{"id": "cus-1", "name": "Walk-in"})
	env.cloud.addPage(models.EntityTypeCustomers, "", cloud.PullPage{
		Records:    []cloud.Record{{ID: "cus-1", UpdatedAt: now, Data: custData}},
		NextCursor: "c1",
	})

	stats, err := env.engine.DownloadIncremental(context.Background())
	if err != nil {
		t.Fatalf("DownloadIncremental failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected 3 records applied, got %d", stats.Total)
	}
	if stats.Applied[models.EntityTypeMedicines] != 2 {
		t.Errorf("Expected 2 medicines applied, got %d", stats.Applied[models.EntityTypeMedicines])
	}

	var med models.Medicine
	if err := env.db.First(&med, "id = ?", "med-1").Error; err != nil {
		t.Fatalf("Expected med-1 in local store: %v", err)
	}
	if med.Name != "Aspirin" || med.Quantity != 100 {
		t.Errorf("Unexpected medicine row: %+v", med)
	}

	// Watermark advanced for the synced entity
	var wm models.SyncWatermark
	if err := env.db.First(&wm, "entity_type = ?", models.EntityTypeMedicines).Error; err != nil {
		t.Fatalf("Expected watermark row: %v", err)
	}
	if wm.Cursor != "m1" || wm.LastSyncedAt == nil {
		t.Errorf("Unexpected watermark: %+v", wm)
	}
}

func TestDownloadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	now := time.Now().UTC()
	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records:    []cloud.Record{medicineRecord("med-1", "Aspirin", 100, now)},
		NextCursor: "m1",
	})

	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Fatalf("First download failed: %v", err)
	}

	var wmBefore models.SyncWatermark
	env.db.First(&wmBefore, "entity_type = ?", models.EntityTypeMedicines)

	// The server has nothing new at cursor m1; the second run must not
	// change anything
	stats, err := env.engine.DownloadIncremental(context.Background())
	if err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Expected nothing applied on repeat, got %d", stats.Total)
	}

	var wmAfter models.SyncWatermark
	env.db.First(&wmAfter, "entity_type = ?", models.EntityTypeMedicines)
	if wmAfter.Cursor != wmBefore.Cursor {
		t.Errorf("Expected cursor untouched, got %q vs %q", wmAfter.Cursor, wmBefore.Cursor)
	}
	if !wmAfter.LastSyncedAt.Equal(*wmBefore.LastSyncedAt) {
		t.Errorf("Expected watermark time untouched, got %v vs %v", wmAfter.LastSyncedAt, wmBefore.LastSyncedAt)
	}

	var count int64
	env.db.Model(&models.Medicine{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected single medicine row, got %d", count)
	}
}

func TestDownloadSkipsEntitiesWithPendingChanges(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	// Local edit awaiting delivery
	local := models.Medicine{ID: "med-1", Name: "Aspirin (local edit)", Quantity: 90}
	if err := env.db.Create(&local).Error; err != nil {
		t.Fatalf("Failed to seed medicine: %v", err)
	}
	payload, _ := json.Marshal(local)
	env.record(t, models.EntityTypeMedicines, "med-1", models.OpUpdate, string(payload))

	// Server sends an older snapshot of the same entity plus a new one
	now := time.Now().UTC()
	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records: []cloud.Record{
			medicineRecord("med-1", "Aspirin (server)", 120, now),
			medicineRecord("med-2", "Ibuprofen", 50, now),
		},
		NextCursor: "m1",
	})

	stats, err := env.engine.DownloadIncremental(context.Background())
	if err != nil {
		t.Fatalf("DownloadIncremental failed: %v", err)
	}
	if stats.Applied[models.EntityTypeMedicines] != 1 {
		t.Errorf("Expected only the unconflicted record applied, got %d", stats.Applied[models.EntityTypeMedicines])
	}

	var med models.Medicine
	env.db.First(&med, "id = ?", "med-1")
	if med.Name != "Aspirin (local edit)" {
		t.Errorf("Expected local pending edit preserved, got %q", med.Name)
	}
}

func TestDownloadAppliesServerDeletes(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	if err := env.db.Create(&models.Medicine{ID: "med-1", Name: "Recalled"}).Error; err != nil {
		t.Fatalf("Failed to seed medicine: %v", err)
	}

	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records:    []cloud.Record{{ID: "med-1", UpdatedAt: time.Now().UTC(), Deleted: true}},
		NextCursor: "m1",
	})

	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Fatalf("DownloadIncremental failed: %v", err)
	}

	var visible int64
	env.db.Model(&models.Medicine{}).Where("id = ?", "med-1").Count(&visible)
	if visible != 0 {
		t.Error("Expected server delete applied locally")
	}
}

func TestResetThenIncrementalMatchesFullDownload(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	now := time.Now().UTC()
	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records:    []cloud.Record{medicineRecord("med-1", "Aspirin", 100, now)},
		NextCursor: "m1",
	})

	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Fatalf("Initial download failed: %v", err)
	}

	if err := env.engine.ResetWatermarks(); err != nil {
		t.Fatalf("ResetWatermarks failed: %v", err)
	}

	var wmCount int64
	env.db.Model(&models.SyncWatermark{}).Count(&wmCount)
	if wmCount != 0 {
		t.Fatalf("Expected watermarks cleared, got %d", wmCount)
	}

	// After a reset the next incremental starts from the empty cursor and
	// refetches the complete dataset, same as DownloadFull
	stats, err := env.engine.DownloadIncremental(context.Background())
	if err != nil {
		t.Fatalf("Post-reset download failed: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Expected full refetch after reset, got %d records", stats.Total)
	}

	full, err := env.engine.DownloadFull(context.Background())
	if err != nil {
		t.Fatalf("DownloadFull failed: %v", err)
	}
	if full.Total != stats.Total {
		t.Errorf("Expected reset+incremental to match full (%d), got %d", full.Total, stats.Total)
	}
}

func TestDownloadRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.DownloadIncremental(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
	}

	_, err = env.engine.UploadPending(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated for upload, got %v", err)
	}
}

func TestConcurrentSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	if err := env.engine.acquireSession(PhaseDownloading); err != nil {
		t.Fatalf("Failed to take session slot: %v", err)
	}

	if _, err := env.engine.DownloadIncremental(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress, got %v", err)
	}
	if _, err := env.engine.UploadPending(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("Expected ErrSyncInProgress for upload, got %v", err)
	}

	st := env.engine.Status()
	if !st.IsSyncing {
		t.Error("Expected status to report an active session")
	}

	env.engine.releaseSession(nil)

	// Slot free again
	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Errorf("Expected download to run after release, got %v", err)
	}
}

func TestUploadDeliversPendingChanges(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("cus-%d", i)
		env.record(t, models.EntityTypeCustomers, id, models.OpCreate,
			fmt.Sprintf(`{"id":"%s","name":"Customer %d"}`, id, i))
	}

	stats, err := env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("UploadPending failed: %v", err)
	}
	if stats.TotalDelivered() != 3 || stats.TotalFailed() != 0 {
		t.Errorf("Expected 3 delivered, got %d delivered %d failed", stats.TotalDelivered(), stats.TotalFailed())
	}

	count, _ := env.tracker.PendingCount()
	if count != 0 {
		t.Errorf("Expected empty pending log, got %d", count)
	}

	// Changes arrived in recording order
	uploads := env.cloud.pushed[models.EntityTypeCustomers]
	if len(uploads) != 3 {
		t.Fatalf("Expected 3 uploads, got %d", len(uploads))
	}
	if uploads[0].EntityID != "cus-1" || uploads[2].EntityID != "cus-3" {
		t.Errorf("Expected creation order, got %s..%s", uploads[0].EntityID, uploads[2].EntityID)
	}

	// Nothing pending means the next upload is a no-op
	stats, err = env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("Second UploadPending failed: %v", err)
	}
	if stats.TotalDelivered() != 0 {
		t.Errorf("Expected no-op upload, got %d delivered", stats.TotalDelivered())
	}
}

func TestUploadPartialRejection(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("sale-%d", i)
		env.record(t, models.EntityTypeSales, id, models.OpCreate,
			fmt.Sprintf(`{"id":"%s","invoice_number":"INV-%d"}`, id, i))
	}
	env.cloud.rejectIDs["sale-3"] = "duplicate invoice number"

	stats, err := env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("UploadPending failed: %v", err)
	}
	if stats.TotalDelivered() != 4 {
		t.Errorf("Expected 4 delivered, got %d", stats.TotalDelivered())
	}
	if stats.TotalFailed() != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.TotalFailed())
	}
	if len(stats.Rejected) != 1 || stats.Rejected[0].ID != "sale-3" {
		t.Errorf("Expected rejection surfaced, got %v", stats.Rejected)
	}

	var change models.PendingChange
	if err := env.db.First(&change, "entity_id = ?", "sale-3").Error; err != nil {
		t.Fatalf("Failed to load rejected change: %v", err)
	}
	if change.Status != models.DeliveryFailed {
		t.Errorf("Expected FAILED status, got %s", change.Status)
	}
	if change.AttemptCount != 1 {
		t.Errorf("Expected 1 attempt, got %d", change.AttemptCount)
	}
	if change.LastError == nil || *change.LastError != "duplicate invoice number" {
		t.Errorf("Expected rejection reason kept, got %v", change.LastError)
	}
}

func TestUploadRejectedBatchDoesNotStrandLaterChanges(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)
	env.engine.config.UploadBatchSize = 2

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("sale-%d", i)
		env.record(t, models.EntityTypeSales, id, models.OpCreate,
			fmt.Sprintf(`{"id":"%s","invoice_number":"INV-%d"}`, id, i))
	}
	// The whole first batch bounces
	env.cloud.rejectIDs["sale-1"] = "duplicate invoice number"
	env.cloud.rejectIDs["sale-2"] = "duplicate invoice number"

	stats, err := env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("UploadPending failed: %v", err)
	}
	if stats.TotalDelivered() != 1 {
		t.Errorf("Expected sale-3 delivered past the rejected batch, got %d delivered", stats.TotalDelivered())
	}
	if stats.TotalFailed() != 2 {
		t.Errorf("Expected 2 failed, got %d", stats.TotalFailed())
	}

	var change models.PendingChange
	if err := env.db.First(&change, "entity_id = ?", "sale-3").Error; err != nil {
		t.Fatalf("Failed to load sale-3 change: %v", err)
	}
	if change.Status != models.DeliveryDelivered {
		t.Errorf("Expected sale-3 DELIVERED, got %s", change.Status)
	}

	// The rejected rows wait for a later session, not this one again
	uploads := env.cloud.pushed[models.EntityTypeSales]
	if len(uploads) != 3 {
		t.Errorf("Expected each change pushed exactly once, got %d uploads", len(uploads))
	}
}

func TestFullDownloadWithoutAuthKeepsWatermarks(t *testing.T) {
	env := newTestEnv(t)

	synced := time.Now().UTC()
	wm := models.SyncWatermark{EntityType: models.EntityTypeMedicines, LastSyncedAt: &synced, Cursor: "m9"}
	if err := env.db.Create(&wm).Error; err != nil {
		t.Fatalf("Failed to seed watermark: %v", err)
	}

	if _, err := env.engine.DownloadFull(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
	}

	var count int64
	env.db.Model(&models.SyncWatermark{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected watermark preserved on auth failure, got %d rows", count)
	}
}

func TestEngineRestartsAfterStop(t *testing.T) {
	env := newTestEnv(t)

	if err := env.engine.Start(); err != nil {
		t.Fatalf("First Start failed: %v", err)
	}
	env.engine.Stop()

	// A second cycle must get a fresh stop channel; without one the second
	// Stop would close an already-closed channel
	if err := env.engine.Start(); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	env.engine.Stop()
	env.engine.Stop() // no-op when already stopped
}

func TestUploadTransportFailureKeepsChanges(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	env.record(t, models.EntityTypeMedicines, "med-1", models.OpUpdate, `{"id":"med-1"}`)
	env.cloud.failPush = true

	stats, err := env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("Expected session to survive transport failure, got %v", err)
	}
	if stats.TotalDelivered() != 0 || stats.TotalFailed() != 1 {
		t.Errorf("Expected 0 delivered 1 failed, got %d/%d", stats.TotalDelivered(), stats.TotalFailed())
	}

	// The change survives for a later session
	count, _ := env.tracker.PendingCount()
	if count != 1 {
		t.Errorf("Expected change retained, got %d pending", count)
	}

	if env.engine.Status().IsOnline {
		t.Error("Expected engine to report offline after transport failure")
	}

	// Server recovers; the retained change goes through
	env.cloud.failPush = false
	stats, err = env.engine.UploadPending(context.Background())
	if err != nil {
		t.Fatalf("Recovery upload failed: %v", err)
	}
	if stats.TotalDelivered() != 1 {
		t.Errorf("Expected retained change delivered, got %d", stats.TotalDelivered())
	}
	if !env.engine.Status().IsOnline {
		t.Error("Expected engine back online")
	}
}

func TestAuthenticatePersistsSession(t *testing.T) {
	env := newTestEnv(t)

	st := env.engine.Status()
	if st.IsAuthenticated {
		t.Fatal("Expected unauthenticated engine")
	}

	env.authenticate(t)

	st = env.engine.Status()
	if !st.IsAuthenticated {
		t.Error("Expected authenticated status after login")
	}
	if st.ServerURL != env.server.URL {
		t.Errorf("Expected server URL persisted, got %q", st.ServerURL)
	}
	if !st.IsOnline {
		t.Error("Expected online after successful login")
	}

	if err := env.engine.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if env.engine.Status().IsAuthenticated {
		t.Error("Expected unauthenticated status after logout")
	}
}

func TestSetServerURLClearsTokenOnChange(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	if err := env.engine.SetServerURL("https://other.example.com"); err != nil {
		t.Fatalf("SetServerURL failed: %v", err)
	}

	st := env.engine.Status()
	if st.IsAuthenticated {
		t.Error("Expected token invalidated when the server changes")
	}
	if st.ServerURL != "https://other.example.com" {
		t.Errorf("Expected new server URL, got %q", st.ServerURL)
	}

	if err := env.engine.SetServerURL("not a url"); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for invalid URL, got %v", err)
	}
}

func TestWatermarkNeverMovesBackward(t *testing.T) {
	env := newTestEnv(t)

	newer := time.Now().UTC()
	older := newer.Add(-time.Hour)

	err := env.adapter.WithTransaction(func(tx *gorm.DB) error {
		if err := env.engine.advanceWatermark(tx, models.EntityTypeMedicines, "c1", newer); err != nil {
			return err
		}
		return env.engine.advanceWatermark(tx, models.EntityTypeMedicines, "c2", older)
	})
	if err != nil {
		t.Fatalf("advanceWatermark failed: %v", err)
	}

	var wm models.SyncWatermark
	if err := env.db.First(&wm, "entity_type = ?", models.EntityTypeMedicines).Error; err != nil {
		t.Fatalf("Failed to load watermark: %v", err)
	}
	if !wm.LastSyncedAt.Equal(newer) {
		t.Errorf("Expected watermark held at %v, got %v", newer, wm.LastSyncedAt)
	}
	// The cursor still follows the stream position
	if wm.Cursor != "c2" {
		t.Errorf("Expected cursor c2, got %q", wm.Cursor)
	}
}

func TestProgressObservers(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	id, events := env.engine.Subscribe()
	defer env.engine.Unsubscribe(id)

	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records:    []cloud.Record{medicineRecord("med-1", "Aspirin", 100, time.Now().UTC())},
		NextCursor: "m1",
	})

	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Fatalf("DownloadIncremental failed: %v", err)
	}

	var sawComplete bool
	for {
		select {
		case ev := <-events:
			if ev.Progress < 0 || ev.Progress > 100 {
				t.Errorf("Progress out of range: %+v", ev)
			}
			if ev.Stage == models.EntityTypeMedicines && ev.Progress == 100 {
				sawComplete = true
			}
		default:
			if !sawComplete {
				t.Error("Expected a 100% event for medicines")
			}
			return
		}
	}
}

func TestSyncHistoryAudit(t *testing.T) {
	env := newTestEnv(t)
	env.authenticate(t)

	env.cloud.addPage(models.EntityTypeMedicines, "", cloud.PullPage{
		Records:    []cloud.Record{medicineRecord("med-1", "Aspirin", 100, time.Now().UTC())},
		NextCursor: "m1",
	})
	if _, err := env.engine.DownloadIncremental(context.Background()); err != nil {
		t.Fatalf("DownloadIncremental failed: %v", err)
	}

	env.record(t, models.EntityTypeCustomers, "cus-1", models.OpCreate, `{"id":"cus-1"}`)
	if _, err := env.engine.UploadPending(context.Background()); err != nil {
		t.Fatalf("UploadPending failed: %v", err)
	}

	var rows []models.SyncHistory
	if err := env.db.Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 history rows, got %d", len(rows))
	}
	if rows[0].Kind != "download" || rows[0].Status != "completed" || rows[0].RecordsApplied != 1 {
		t.Errorf("Unexpected download history: %+v", rows[0])
	}
	if rows[1].Kind != "upload" || rows[1].RecordsPushed != 1 {
		t.Errorf("Unexpected upload history: %+v", rows[1])
	}
	if rows[1].FinishedAt == nil {
		t.Error("Expected history row closed")
	}
}

func TestStatusCountsPendingChanges(t *testing.T) {
	env := newTestEnv(t)

	env.record(t, models.EntityTypeMedicines, "med-1", models.OpUpdate, `{"id":"med-1"}`)
	env.record(t, models.EntityTypeSales, "sale-1", models.OpCreate, `{"id":"sale-1"}`)

	st := env.engine.Status()
	if st.PendingChanges != 2 {
		t.Errorf("Expected 2 pending changes, got %d", st.PendingChanges)
	}
	if st.BranchCode != "BR-001" {
		t.Errorf("Expected branch code in status, got %q", st.BranchCode)
	}
	if st.IsSyncing {
		t.Error("Expected idle engine")
	}
}
