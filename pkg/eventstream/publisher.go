package eventstream

import "context"

// Publisher publishes exchange events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *ExchangeRecordedEvent) error
	Close() error
}
