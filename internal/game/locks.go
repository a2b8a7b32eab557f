package game

import "sync"

// sessionLocks hands out one mutex per session id so every mutation of a
// session runs under the same exclusion scope. Entries are dropped when the
// session ends.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *sessionLocks) get(sessionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[sessionID]
	if !ok {
		m = new(sync.Mutex)
		l.locks[sessionID] = m
	}
	return m
}

func (l *sessionLocks) release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, sessionID)
}
