package tokendb

import (
	"fmt"
	"sync"
)

// ErrSessionClosed is returned by Undo or Close when called on a Session
// that has already been resolved one way or the other.
var ErrSessionClosed = fmt.Errorf("tokendb: session already closed")

// Session is a scoped handle over one savepoint: the caller either commits
// it explicitly or rolls it back, but never both. It is the primitive a
// host uses to scope a transaction within a block.
type Session struct {
	mu     sync.Mutex
	db     *DB
	closed bool
}

// NewSavepoint pushes a new savepoint at seq and returns a handle scoped to
// it. Calling Undo rolls it back; calling Close commits it.
func (db *DB) NewSavepoint(seq int64) (*Session, error) {
	if err := db.PushSavepoint(seq); err != nil {
		return nil, err
	}
	return &Session{db: db}, nil
}

// Undo rolls back every mutation recorded since this savepoint was pushed.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return s.db.RollbackToLatestSavepoint()
}

// Close commits this savepoint (its mutations stand; only the action log
// needed to undo them is discarded).
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return s.db.PopSavepoint()
}
