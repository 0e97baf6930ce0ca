package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatline/pkg/eventstream"
)

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ExchangeRecordedEvent

	// Err is returned by Publish when set.
	Err error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.ExchangeRecordedEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.Err
}

// Events returns the events published so far.
func (m *MockPublisher) Events() []*eventstream.ExchangeRecordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.ExchangeRecordedEvent(nil), m.events...)
}

func (m *MockPublisher) Close() error {
	return nil
}
