// Package sync implements the offline-first synchronization engine that
// reconciles the branch database with the central pharmacy service: pull
// server changes since the last watermark, apply them locally, then drain
// the pending-change log upstream.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rxstack/pharmgo/internal/cloud"
	"github.com/rxstack/pharmgo/internal/config"
	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/models"
	"github.com/rxstack/pharmgo/internal/session"
	"github.com/rxstack/pharmgo/internal/store"
	"github.com/rxstack/pharmgo/internal/tracker"
)

// Engine owns the one sync session a branch may run at a time. All writes
// into the local store flow through the session lock; concurrent triggers
// are rejected with ErrSyncInProgress rather than queued, so the UI always
// knows whether its request started a session.
type Engine struct {
	mu sync.RWMutex

	// Core components
	db       *database.DB
	store    *store.Adapter
	tracker  *tracker.Tracker
	client   *cloud.Client
	sessions *session.Store
	config   *config.SyncConfig

	branchCode string

	// Session state, guarded by mu
	phase           Phase
	sessionActive   bool
	cancelRequested bool
	lastSync        time.Time
	lastOnline      bool

	// Observers
	observers      map[int]chan Progress
	nextObserverID int

	// Auto-sync lifecycle
	isRunning bool
	stopChan  chan struct{}
}

// New creates a sync engine
func New(db *database.DB, adapter *store.Adapter, trk *tracker.Tracker, sessions *session.Store, cfg *config.SyncConfig, branchCode string) *Engine {
	return &Engine{
		db:         db,
		store:      adapter,
		tracker:    trk,
		client:     cloud.New(time.Duration(cfg.RequestTimeout)*time.Second, cfg.MaxRetries),
		sessions:   sessions,
		config:     cfg,
		branchCode: branchCode,
		phase:      PhaseIdle,
		observers:  make(map[int]chan Progress),
		stopChan:   make(chan struct{}),
	}
}

// Start recovers stranded in-flight changes and begins auto-sync if enabled
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return fmt.Errorf("sync engine already running")
	}
	e.isRunning = true
	// A previous Stop closed the channel; the loop needs a fresh one
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	log.Println("🔄 Sync Engine starting...")

	// A crash mid-upload leaves IN_FLIGHT rows; make them deliverable again
	if err := e.tracker.ResetInFlight(); err != nil {
		log.Printf("⚠️ Failed to reset in-flight changes: %v", err)
	}

	if e.config.AutoSyncEnabled {
		go e.autoSyncLoop(e.stopChan)
	}

	if e.config.SyncOnStartup {
		go func() {
			time.Sleep(5 * time.Second)
			e.runScheduledSync()
		}()
	}

	log.Println("✅ Sync Engine started")
	return nil
}

// Stop halts the auto-sync loop. An in-flight session finishes its batch.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isRunning {
		return
	}
	log.Println("🛑 Stopping Sync Engine...")
	e.isRunning = false
	close(e.stopChan)
}

// Cancel asks the running session to stop at the next batch boundary.
// Batches already committed stay committed.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionActive {
		e.cancelRequested = true
	}
}

// acquireSession takes the single session slot or fails fast
func (e *Engine) acquireSession(phase Phase) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sessionActive {
		return ErrSyncInProgress
	}
	e.sessionActive = true
	e.cancelRequested = false
	e.phase = phase
	return nil
}

// releaseSession frees the session slot. A failed session passes through
// PhaseFailed before settling on PhaseIdle so the next trigger starts clean.
func (e *Engine) releaseSession(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil && err != ErrCancelled {
		// Failed is visible until the next trigger, which starts clean
		e.phase = PhaseFailed
	} else {
		e.phase = PhaseIdle
	}
	e.sessionActive = false
	e.cancelRequested = false
}

func (e *Engine) setPhase(phase Phase) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
}

func (e *Engine) cancelled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelRequested
}

func (e *Engine) setOnline(online bool) {
	e.mu.Lock()
	e.lastOnline = online
	e.mu.Unlock()
}

// SetServerURL validates and persists the cloud endpoint without logging in
func (e *Engine) SetServerURL(raw string) error {
	normalized, err := cloud.NormalizeServerURL(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	state, err := e.sessions.Load()
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.SessionState{BranchCode: e.branchCode}
	}
	if state.ServerURL != normalized {
		// Changing servers invalidates any previous token
		state.AuthToken = ""
		state.TokenExpiresAt = nil
	}
	state.ServerURL = normalized
	return e.sessions.Save(state)
}

// Authenticate logs the branch into the cloud service and persists the
// resulting token for use across restarts.
func (e *Engine) Authenticate(ctx context.Context, serverURL, email, password string) error {
	if err := e.acquireSession(PhaseAuthenticating); err != nil {
		return err
	}
	var opErr error
	defer func() { e.releaseSession(opErr) }()

	normalized, err := cloud.NormalizeServerURL(serverURL)
	if err != nil {
		opErr = fmt.Errorf("%w: %v", ErrConfig, err)
		return opErr
	}

	log.Printf("🔐 Authenticating against %s", normalized)
	creds, err := e.client.Login(ctx, normalized, email, password, e.branchCode)
	if err != nil {
		e.setOnline(false)
		opErr = err
		return opErr
	}
	e.setOnline(true)

	state, err := e.sessions.Load()
	if err != nil {
		opErr = err
		return opErr
	}
	if state == nil {
		state = &models.SessionState{}
	}
	state.ServerURL = normalized
	state.BranchCode = e.branchCode
	state.Email = email
	state.AuthToken = creds.Token
	state.TokenExpiresAt = creds.ExpiresAt

	if err := e.sessions.Save(state); err != nil {
		opErr = err
		return opErr
	}

	log.Println("✅ Authenticated with cloud service")
	return nil
}

// Logout clears the stored session
func (e *Engine) Logout() error {
	if err := e.acquireSession(PhaseIdle); err != nil {
		return err
	}
	defer e.releaseSession(nil)
	return e.sessions.Clear()
}

// requireSession loads the stored session and checks the token
func (e *Engine) requireSession() (*models.SessionState, error) {
	state, err := e.sessions.Load()
	if err != nil {
		return nil, err
	}
	if !state.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	return state, nil
}

// Status computes the UI-facing snapshot. Never blocks on the network.
func (e *Engine) Status() Status {
	e.mu.RLock()
	phase := e.phase
	active := e.sessionActive
	online := e.lastOnline
	e.mu.RUnlock()

	st := Status{
		IsOnline:   online,
		IsSyncing:  active,
		Phase:      phase,
		BranchCode: e.branchCode,
		LastSyncAt: e.lastSyncTime(),
	}

	if state, err := e.sessions.Load(); err == nil && state != nil {
		st.ServerURL = state.ServerURL
		st.IsAuthenticated = state.IsAuthenticated()
	}
	if count, err := e.tracker.PendingCount(); err == nil {
		st.PendingChanges = count
	}
	return st
}

// runScheduledSync performs download then upload, skipping silently when a
// session is already active.
func (e *Engine) runScheduledSync() {
	if _, err := e.DownloadIncremental(context.Background()); err != nil {
		if err == ErrSyncInProgress {
			log.Println("⏳ Auto-sync skipped, session already active")
			return
		}
		log.Printf("⚠️ Auto-sync download failed: %v", err)
		return
	}
	if _, err := e.UploadPending(context.Background()); err != nil {
		log.Printf("⚠️ Auto-sync upload failed: %v", err)
	}
}

// autoSyncLoop periodically triggers synchronization until stop is closed
func (e *Engine) autoSyncLoop(stop <-chan struct{}) {
	interval := time.Duration(e.config.AutoSyncInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Println("Auto-sync triggered")
			e.runScheduledSync()
		case <-stop:
			return
		}
	}
}

// beginHistory opens a SyncHistory audit row
func (e *Engine) beginHistory(sessionID, kind string) *models.SyncHistory {
	h := &models.SyncHistory{
		SessionID: sessionID,
		Kind:      kind,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := e.db.Create(h).Error; err != nil {
		log.Printf("⚠️ Failed to record sync history: %v", err)
	}
	return h
}

// finishHistory closes a SyncHistory audit row
func (e *Engine) finishHistory(h *models.SyncHistory, status string, opErr error) {
	now := time.Now().UTC()
	h.Status = status
	h.FinishedAt = &now
	if opErr != nil {
		msg := opErr.Error()
		h.ErrorMessage = &msg
	}
	if h.ID != 0 {
		if err := e.db.Save(h).Error; err != nil {
			log.Printf("⚠️ Failed to update sync history: %v", err)
		}
	}
}
