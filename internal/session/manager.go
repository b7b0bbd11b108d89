package session

import (
	"fmt"
	"sync"
)

// ErrAlreadyCapturing is returned by Manager.TryAcquire when a capture
// for the given game is already in progress.
var ErrAlreadyCapturing = fmt.Errorf("capture already in progress for this game")

// Manager enforces the "only one capture per game" rule with a
// non-blocking try-acquire/release guard (spec.md §5), rather than a
// queue — a second capture request for a running game is rejected
// outright, not made to wait.
type Manager struct {
	mu     sync.Mutex
	active map[string]*Session
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{active: make(map[string]*Session)}
}

// TryAcquire registers sess as the active capture for gameID, or
// returns ErrAlreadyCapturing if one is already running.
func (m *Manager) TryAcquire(gameID string, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[gameID]; busy {
		return ErrAlreadyCapturing
	}
	m.active[gameID] = sess
	return nil
}

// Release frees gameID's slot, allowing a subsequent capture to start.
func (m *Manager) Release(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, gameID)
}

// Active returns the in-progress Session for gameID, if any.
func (m *Manager) Active(gameID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.active[gameID]
	return sess, ok
}
