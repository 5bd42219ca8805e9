// Package session persists the branch's cloud identity (server URL, branch
// code, bearer token) across process restarts. The state lives in a file
// outside the syncable dataset because it is device-local secret material.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxstack/pharmgo/internal/models"
)

const sessionFileName = "session.json"

// Store is a file-backed SessionState store
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a session store rooted at the given data directory
func New(dataDir string) *Store {
	return &Store{path: filepath.Join(dataDir, sessionFileName)}
}

// Save writes the session state atomically with owner-only permissions
func (s *Store) Save(state *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.DeviceID == "" {
		state.DeviceID = uuid.NewString()
	}
	state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Load reads the stored session. A missing file returns (nil, nil).
func (s *Store) Load() (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &state, nil
}

// Clear removes the stored session. Clearing an absent session is a no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
