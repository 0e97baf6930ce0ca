package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/pkg/storage/inmemory"
)

// ErrMockPut is returned by MockDriver.Put when FailPut is set.
var ErrMockPut = errors.New("mock put failure")

// MockDriver is an in-memory storage driver that can be told to fail and
// records every exchange passed to Put.
type MockDriver struct {
	*inmemory.Driver

	mu  sync.Mutex
	put []*storage.Exchange

	// FailPut causes Put to return ErrMockPut.
	FailPut bool
}

// NewMockDriver creates a new mock storage driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{Driver: inmemory.NewDriver()}
}

func (m *MockDriver) Put(ctx context.Context, ex *storage.Exchange) (bool, error) {
	m.mu.Lock()
	m.put = append(m.put, ex)
	m.mu.Unlock()

	if m.FailPut {
		return false, ErrMockPut
	}
	return m.Driver.Put(ctx, ex)
}

// PutCalls returns every exchange passed to Put, in call order.
func (m *MockDriver) PutCalls() []*storage.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.Exchange(nil), m.put...)
}
