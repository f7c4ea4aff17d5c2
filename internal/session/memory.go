package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

type missEntry struct {
	count  int
	lastAt time.Time
}

// MemoryStore implements Store with process-memory maps. State is scoped
// to server uptime; nothing here survives a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	misses      map[string]missEntry
	greeted     map[string]time.Time
	locations   map[string]models.Location
	pendingHelp map[string]struct{}
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		misses:      make(map[string]missEntry),
		greeted:     make(map[string]time.Time),
		locations:   make(map[string]models.Location),
		pendingHelp: make(map[string]struct{}),
	}
}

// Get returns the sender's active session, if any.
func (m *MemoryStore) Get(senderID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[senderID]
	return s, ok
}

// Put installs or replaces the sender's active session.
func (m *MemoryStore) Put(senderID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[senderID] = s
}

// Delete removes the sender's active session.
func (m *MemoryStore) Delete(senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, senderID)
}

// SweepIdle evicts sessions whose StartedAt is older than maxIdle.
func (m *MemoryStore) SweepIdle(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if now.Sub(s.StartedAt) > maxIdle {
			delete(m.sessions, id)
			evicted++
			slog.Debug("session store evicted stale session", "senderID", id, "kind", s.Kind)
		}
	}
	return evicted
}

// IncrementMiss bumps and returns the sender's consecutive-miss count.
func (m *MemoryStore) IncrementMiss(senderID string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.misses[senderID]
	e.count++
	e.lastAt = now
	m.misses[senderID] = e
	return e.count
}

// ResetMisses clears the sender's miss streak.
func (m *MemoryStore) ResetMisses(senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.misses, senderID)
}

// SweepMisses evicts counters untouched past maxIdle so the map does not
// grow unbounded with one-off senders.
func (m *MemoryStore) SweepMisses(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, e := range m.misses {
		if now.Sub(e.lastAt) > maxIdle {
			delete(m.misses, id)
			evicted++
		}
	}
	return evicted
}

// LastGreeted returns when the sender was last greeted.
func (m *MemoryStore) LastGreeted(senderID string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.greeted[senderID]
	return t, ok
}

// MarkGreeted records that the sender was greeted now.
func (m *MemoryStore) MarkGreeted(senderID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.greeted[senderID] = now
}

// SweepGreeted evicts greet marks older than ttl.
func (m *MemoryStore) SweepGreeted(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, t := range m.greeted {
		if now.Sub(t) > ttl {
			delete(m.greeted, id)
			evicted++
			slog.Debug("session store reset greeting", "senderID", id)
		}
	}
	return evicted
}

// Location returns the sender's cached location if stored within the
// freshness window.
func (m *MemoryStore) Location(senderID string, now time.Time) (*models.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[senderID]
	if !ok || now.Sub(loc.StoredAt) > LocationTTL {
		return nil, false
	}
	copied := loc
	return &copied, true
}

// PutLocation caches the sender's location.
func (m *MemoryStore) PutLocation(senderID string, loc models.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[senderID] = loc
}

// SweepLocations evicts cached locations older than ttl.
func (m *MemoryStore) SweepLocations(now time.Time, ttl time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, loc := range m.locations {
		if now.Sub(loc.StoredAt) > ttl {
			delete(m.locations, id)
			evicted++
			slog.Debug("session store cleaned location cache", "senderID", id)
		}
	}
	return evicted
}

// PendingHelp reports whether the sender has an unanswered help request.
func (m *MemoryStore) PendingHelp(senderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pendingHelp[senderID]
	return ok
}

// SetPendingHelp flags the sender as waiting to provide a location.
func (m *MemoryStore) SetPendingHelp(senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingHelp[senderID] = struct{}{}
}

// ClearPendingHelp removes the flag.
func (m *MemoryStore) ClearPendingHelp(senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingHelp, senderID)
}
