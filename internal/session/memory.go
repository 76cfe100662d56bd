package session

import (
	"context"
	"sync"
	"time"

	"stockguard/internal/model"

	"github.com/rs/zerolog"
)

// MemoryStore keeps sessions in process memory. Expired entries are hidden on
// read and removed by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]model.CheckoutSession
	ttl      time.Duration
	now      Clock
	logger   zerolog.Logger
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(ttl time.Duration, logger zerolog.Logger, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		sessions: make(map[string]model.CheckoutSession),
		ttl:      ttl,
		now:      o.now,
		logger:   logger.With().Str("store", "memory_session").Logger(),
	}
}

// Stage stores a copy of the session.
func (m *MemoryStore) Stage(_ context.Context, s *model.CheckoutSession) error {
	if err := stamp(s, m.now(), m.ttl); err != nil {
		return err
	}

	cp := *s
	cp.Items = append([]model.SessionItem(nil), s.Items...)

	m.mu.Lock()
	m.sessions[s.CorrelationID] = cp
	m.mu.Unlock()

	return nil
}

// Get returns a copy of a live session.
func (m *MemoryStore) Get(_ context.Context, correlationID string) (*model.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Expired(m.now()) {
		delete(m.sessions, correlationID)
		return nil, ErrNotFound
	}

	s.Items = append([]model.SessionItem(nil), s.Items...)
	return &s, nil
}

// Discard removes a session.
func (m *MemoryStore) Discard(_ context.Context, correlationID string) error {
	m.mu.Lock()
	delete(m.sessions, correlationID)
	m.mu.Unlock()
	return nil
}

// Sweep removes every expired session.
func (m *MemoryStore) Sweep(context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
