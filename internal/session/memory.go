package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store.
//
// With a zero TTL entries live until Delete (terminal-status cleanup).
// With a positive TTL entries expire lazily: an expired entry is dropped
// on the next access to its key or on Sweep. No timers are started.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

type memoryEntry struct {
	s         Session
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

// WithTTL sets the lifetime policy for new entries.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.ttl = ttl }
}

// WithClock injects a clock for deterministic tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.clock = clock }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{entries: map[string]memoryEntry{}, clock: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryStore) Put(ctx context.Context, callID string, s Session) error {
	e := memoryEntry{s: copySession(s)}
	if m.ttl > 0 {
		e.expiresAt = m.clock().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[callID] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, callID string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[callID]
	if !ok {
		return Session{}, false, nil
	}
	if m.expired(e) {
		delete(m.entries, callID)
		return Session{}, false, nil
	}
	return copySession(e.s), true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, callID string) error {
	m.mu.Lock()
	delete(m.entries, callID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of resident entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.clock().Before(e.expiresAt)
}

func copySession(s Session) Session {
	out := Session{Script: s.Script}
	if s.MenuSteps != nil {
		out.MenuSteps = make([]MenuStep, len(s.MenuSteps))
		copy(out.MenuSteps, s.MenuSteps)
	}
	return out
}
