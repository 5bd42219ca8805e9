package sync

import (
	"errors"
	"fmt"
)

// Engine-level failure modes. Transport and credential errors from the cloud
// client pass through wrapped, so errors.Is against the cloud sentinels
// still works at the boundary.
var (
	ErrNotAuthenticated = errors.New("sync: not authenticated")
	ErrSyncInProgress   = errors.New("sync: a sync session is already in progress")
	ErrCancelled        = errors.New("sync: session cancelled")
	ErrConfig           = errors.New("sync: invalid configuration")
)

// localStoreError marks a disk/transaction failure. It aborts the current
// session; already-committed batches stay committed.
type localStoreError struct {
	op  string
	err error
}

func (e *localStoreError) Error() string {
	return fmt.Sprintf("sync: local store failure during %s: %v", e.op, e.err)
}

func (e *localStoreError) Unwrap() error { return e.err }

// IsLocalStoreError reports whether err is a local persistence failure
func IsLocalStoreError(err error) bool {
	var lse *localStoreError
	return errors.As(err, &lse)
}

func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return &localStoreError{op: op, err: err}
}
