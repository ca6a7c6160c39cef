package store

import (
	"context"
	"sync"
	"time"

	"edumarket_bff/internals/features/session/model"
)

type memEntry struct {
	session   model.Session
	expiresAt time.Time

	crumbs        model.Breadcrumbs
	crumbsExpires time.Time
}

// MemoryStore keeps sessions in process. Used in development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memEntry
	ttl      time.Duration
	crumbTTL time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl, crumbTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:  map[string]*memEntry{},
		ttl:      ttl,
		crumbTTL: crumbTTL,
		now:      time.Now,
	}
}

// live returns the entry for id if it has not expired. Caller holds mu.
func (m *MemoryStore) live(id string) *memEntry {
	e, ok := m.entries[id]
	if !ok {
		return nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, id)
		return nil
	}
	return e
}

func (m *MemoryStore) Load(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id)
	if e == nil {
		return nil, ErrSessionNotFound
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(s.ID)
	if e == nil {
		e = &memEntry{}
		m.entries[s.ID] = e
	}
	e.session = *s
	e.expiresAt = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) WriteBreadcrumbs(_ context.Context, id string, b model.Breadcrumbs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(id)
	if e == nil {
		return ErrSessionNotFound
	}
	e.crumbs = b
	e.crumbsExpires = m.now().Add(m.crumbTTL)
	return nil
}

func (m *MemoryStore) ReadBreadcrumbs(_ context.Context, id string) (model.Breadcrumbs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crumbsOf(id), nil
}

func (m *MemoryStore) TakeBreadcrumbs(_ context.Context, id string) (model.Breadcrumbs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.crumbsOf(id)
	if e := m.live(id); e != nil {
		e.crumbs = model.Breadcrumbs{}
	}
	return b, nil
}

func (m *MemoryStore) ClearBreadcrumbs(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.live(id); e != nil {
		e.crumbs = model.Breadcrumbs{}
	}
	return nil
}

// crumbsOf returns the unexpired breadcrumbs of id. Caller holds mu.
func (m *MemoryStore) crumbsOf(id string) model.Breadcrumbs {
	e := m.live(id)
	if e == nil || m.now().After(e.crumbsExpires) {
		return model.Breadcrumbs{}
	}
	return e.crumbs
}

// Purge drops expired sessions and returns how many were removed.
func (m *MemoryStore) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
