package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exchange is one message and the answer the orchestrator gave to it.
type Exchange struct {
	// ID uniquely identifies the exchange.
	ID string `json:"id"`

	// SessionID groups exchanges from the same conversation.
	SessionID string `json:"session_id"`

	// Endpoint is the orchestrator URL the message was sent to.
	Endpoint string `json:"endpoint"`

	// Message is the user's text.
	Message string `json:"message"`

	// Thought is the last thinking status shown before the answer began.
	Thought string `json:"thought,omitempty"`

	// Answer is the concatenation of every token received.
	Answer string `json:"answer"`

	// Errors holds the messages of error events, in arrival order.
	Errors []string `json:"errors,omitempty"`

	// Completed is true if a complete event was received.
	Completed bool `json:"completed"`

	// Streaming is true for answers read from the event stream and false
	// for answers from the single-response chat endpoint.
	Streaming bool `json:"streaming"`

	// HTTPStatus is the orchestrator's response status code, or 0 if the
	// request never got a response.
	HTTPStatus int `json:"http_status"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewExchange returns an Exchange for message with a fresh ID, started now.
func NewExchange(sessionID, endpoint, message string) *Exchange {
	return &Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Endpoint:  endpoint,
		Message:   message,
		StartedAt: time.Now().UTC(),
	}
}

// Duration returns how long the exchange took, or 0 if it has not finished.
func (e *Exchange) Duration() time.Duration {
	if e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Validate checks that the exchange can be stored.
func (e *Exchange) Validate() error {
	if e == nil {
		return errors.New("cannot store nil exchange")
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("exchange id is required")
	}
	return nil
}
