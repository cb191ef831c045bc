package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps entries in a map. Entries idle longer than the TTL
// are evicted on access and by Sweep.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an in-memory store with the given idle TTL.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create implements Store.
func (s *InMemoryStore) Create(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Version = 1

	s.entries[e.SessionID] = e.Clone()
	return nil
}

// Get implements Store. Reading refreshes the entry's idle timer.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		delete(s.entries, sessionID)
		return nil, nil
	}
	e.UpdatedAt = s.now()
	return e.Clone(), nil
}

// Update implements Store.
func (s *InMemoryStore) Update(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[e.SessionID]
	if !ok || s.expired(stored) {
		delete(s.entries, e.SessionID)
		return ErrNotFound
	}
	if stored.Version != e.Version {
		return ErrVersionConflict
	}

	e.Version++
	e.UpdatedAt = s.now()
	s.entries[e.SessionID] = e.Clone()
	return nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}

// Sweep evicts every idle entry and reports how many were removed.
func (s *InMemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len reports the number of cached entries.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	return nil
}

func (s *InMemoryStore) expired(e *Entry) bool {
	return s.ttl > 0 && s.now().Sub(e.UpdatedAt) > s.ttl
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *InMemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
