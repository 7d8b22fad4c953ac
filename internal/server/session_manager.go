package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/edgelite/pkg/engine"
	"github.com/sanonone/edgelite/pkg/metrics"
)

// managedSession pairs an engine session with its bookkeeping. mu
// serializes requests on the same session, since a staging cache is not
// safe for concurrent use.
type managedSession struct {
	mu       sync.Mutex
	sess     *engine.Session
	lastUsed time.Time
}

// SessionManager tracks the open sessions of the HTTP API.
type SessionManager struct {
	eng *engine.Engine
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*managedSession
}

// NewSessionManager creates a manager over eng. Sessions idle for longer
// than ttl are dropped by Reap; a zero ttl keeps them forever.
func NewSessionManager(eng *engine.Engine, ttl time.Duration) *SessionManager {
	return &SessionManager{
		eng:      eng,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*managedSession),
	}
}

// Create opens a session and returns its id.
func (sm *SessionManager) Create() string {
	ms := &managedSession{sess: sm.eng.NewSession(), lastUsed: sm.now()}
	id := uuid.New().String()

	sm.mu.Lock()
	sm.sessions[id] = ms
	sm.mu.Unlock()

	metrics.ActiveSessions.Inc()
	return id
}

// Acquire locks the session with the given id for exclusive use. The
// returned release func must be called when the request is done.
func (sm *SessionManager) Acquire(id string) (*engine.Session, func(), bool) {
	sm.mu.RLock()
	ms, found := sm.sessions[id]
	sm.mu.RUnlock()
	if !found {
		return nil, nil, false
	}

	ms.mu.Lock()
	// Close or Reap may have dropped the session while we waited.
	sm.mu.RLock()
	current := sm.sessions[id] == ms
	sm.mu.RUnlock()
	if !current {
		ms.mu.Unlock()
		return nil, nil, false
	}
	release := func() {
		ms.lastUsed = sm.now()
		ms.mu.Unlock()
	}
	return ms.sess, release, true
}

// Close drops a session together with its uncommitted writes.
func (sm *SessionManager) Close(id string) bool {
	sm.mu.Lock()
	_, found := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if found {
		metrics.ActiveSessions.Dec()
	}
	return found
}

// Len returns the number of open sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Reap drops idle sessions and returns how many were dropped. Sessions
// currently serving a request are skipped.
func (sm *SessionManager) Reap() int {
	if sm.ttl <= 0 {
		return 0
	}
	cutoff := sm.now().Add(-sm.ttl)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	reaped := 0
	for id, ms := range sm.sessions {
		if !ms.mu.TryLock() {
			continue
		}
		idle := ms.lastUsed.Before(cutoff)
		ms.mu.Unlock()
		if idle {
			delete(sm.sessions, id)
			reaped++
		}
	}
	if reaped > 0 {
		metrics.ActiveSessions.Sub(float64(reaped))
		slog.Info("Reaped idle sessions", "count", reaped, "open", len(sm.sessions))
	}
	return reaped
}

// Run reaps idle sessions until ctx is cancelled.
func (sm *SessionManager) Run(ctx context.Context) {
	if sm.ttl <= 0 {
		return
	}
	interval := sm.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.Reap()
		}
	}
}
