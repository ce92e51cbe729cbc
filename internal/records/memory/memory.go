package memory

import (
	"context"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/records"
)

// Store keeps records in process memory. It satisfies the same contract as
// the file store and is used by tests and the "memory" backend.
type Store struct {
	mu          sync.Mutex
	initialized bool
	items       []core.Record
	appendErr   error
	loadErr     error
}

var _ records.Store = (*Store)(nil)

// New returns an uninitialized store.
func New() *Store {
	return &Store{}
}

// NewSeeded returns an initialized store holding rows in the given order.
func NewSeeded(rows ...core.Record) *Store {
	return &Store{initialized: true, items: append([]core.Record(nil), rows...)}
}

// FailAppend makes every following Append return err (nil clears it).
func (s *Store) FailAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// FailLoad makes every following LoadAll return err (nil clears it).
func (s *Store) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

func (s *Store) Location() string {
	return "memory"
}

// EnsureInitialized implements records.Store.
func (s *Store) EnsureInitialized(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Append implements records.Store.
func (s *Store) Append(_ context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return &core.StoreError{Op: "append", Location: "memory", Err: s.appendErr}
	}
	if !s.initialized {
		return &core.StoreError{Op: "append", Location: "memory", Err: errNotInitialized}
	}
	s.items = append(s.items, r)
	return nil
}

// LoadAll implements records.Store.
func (s *Store) LoadAll(_ context.Context) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, &core.StoreError{Op: "load", Location: "memory", Err: s.loadErr}
	}
	if !s.initialized {
		return nil, &core.StoreError{Op: "load", Location: "memory", Err: errNotInitialized}
	}
	return append([]core.Record{}, s.items...), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
