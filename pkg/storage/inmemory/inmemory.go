// Package inmemory provides a map-backed storage driver.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/chatline/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of exchanges
	mu sync.RWMutex

	// exchanges is the in memory map of exchanges keyed by ID
	exchanges map[string]*storage.Exchange
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		exchanges: make(map[string]*storage.Exchange),
	}
}

// Put stores a copy of ex. Returns true if the exchange was newly inserted,
// false if it already existed.
func (s *Driver) Put(_ context.Context, ex *storage.Exchange) (bool, error) {
	if err := ex.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exchanges[ex.ID]; ok {
		return false, nil
	}

	s.exchanges[ex.ID] = clone(ex)
	return true, nil
}

// Get retrieves an exchange by its ID.
func (s *Driver) Get(_ context.Context, id string) (*storage.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exchanges[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return clone(ex), nil
}

// List returns stored exchanges, newest first.
func (s *Driver) List(_ context.Context, opts storage.ListOptions) ([]*storage.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Exchange, 0, len(s.exchanges))
	for _, ex := range s.exchanges {
		if opts.SessionID != "" && ex.SessionID != opts.SessionID {
			continue
		}
		result = append(result, clone(ex))
	}

	slices.SortFunc(result, func(a, b *storage.Exchange) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Count returns the number of exchanges in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}

func clone(ex *storage.Exchange) *storage.Exchange {
	c := *ex
	c.Errors = slices.Clone(ex.Errors)
	return &c
}

var _ storage.Driver = (*Driver)(nil)
