package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatline/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeRecorded is emitted after an exchange is persisted.
	EventTypeExchangeRecorded = "chatline.exchange.recorded"
)

// ExchangeRecordedEvent is a transport-neutral event payload for a recorded
// exchange.
type ExchangeRecordedEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Source        EventSource         `json:"source"`
	RequestMeta   ExchangeRequestMeta `json:"request_meta"`
	Exchange      *storage.Exchange   `json:"exchange"`
}

// EventSource identifies where the exchange originated.
type EventSource struct {
	// Component is the chatline component that saw the exchange, e.g. "relay".
	Component string `json:"component"`

	SessionID string `json:"session_id,omitempty"`
}

// ExchangeRequestMeta captures request lifecycle metadata for the event.
type ExchangeRequestMeta struct {
	Endpoint    string    `json:"endpoint,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// NewExchangeRecordedEvent builds the event for ex as seen by component.
func NewExchangeRecordedEvent(component string, ex *storage.Exchange) *ExchangeRecordedEvent {
	return &ExchangeRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Component: component,
			SessionID: ex.SessionID,
		},
		RequestMeta: ExchangeRequestMeta{
			Endpoint:    ex.Endpoint,
			StartedAt:   ex.StartedAt,
			CompletedAt: ex.CompletedAt,
			DurationMs:  ex.Duration().Milliseconds(),
			Streaming:   ex.Streaming,
			HTTPStatus:  ex.HTTPStatus,
		},
		Exchange: ex,
	}
}
