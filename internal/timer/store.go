package timer

import (
	"context"
	"fmt"
	"sync"
)

// Persister saves and restores the ordered snapshot of pending entries
type Persister interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// Store is the in-memory list of pending entries, mirrored to a Persister
// after every mutation.
type Store struct {
	mu      sync.Mutex
	entries []*Entry
	p       Persister
}

// OpenStore loads the persisted snapshot into a new store
func OpenStore(ctx context.Context, p Persister) (*Store, error) {
	loaded, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load timers: %w", err)
	}

	s := &Store{p: p, entries: make([]*Entry, 0, len(loaded))}
	for i := range loaded {
		e := loaded[i]
		s.entries = append(s.entries, &e)
	}
	return s, nil
}

// Add appends e and persists. On a failed save the store is left unchanged.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if err := s.saveLocked(ctx); err != nil {
		s.entries = s.entries[:len(s.entries)-1]
		return err
	}
	return nil
}

// Remove deletes e (by identity) and persists. It reports whether e was present.
func (s *Store) Remove(ctx context.Context, e *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, cur := range s.entries {
		if cur == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	prev := s.entries
	next := make([]*Entry, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	s.entries = next

	if err := s.saveLocked(ctx); err != nil {
		s.entries = prev
		return false, err
	}
	return true, nil
}

// Contains reports whether e is still pending
func (s *Store) Contains(e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.entries {
		if cur == e {
			return true
		}
	}
	return false
}

// Entries returns the pending entries in order. The pointers are the store's own;
// callers must not modify them.
func (s *Store) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Snapshot returns copies of the pending entries in order
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.p.Save(ctx, s.snapshotLocked()); err != nil {
		return fmt.Errorf("failed to save timers: %w", err)
	}
	return nil
}
