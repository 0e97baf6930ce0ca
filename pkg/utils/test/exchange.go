package testutils

import (
	"fmt"
	"time"

	"github.com/papercomputeco/chatline/pkg/storage"
)

// NewTestExchange creates a completed streaming exchange for testing. Exchanges
// created with increasing n start one second apart.
func NewTestExchange(sessionID string, n int) *storage.Exchange {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(n) * time.Second)
	return &storage.Exchange{
		ID:          fmt.Sprintf("ex-%03d", n),
		SessionID:   sessionID,
		Endpoint:    "http://localhost:8000/api/orchestrator",
		Message:     fmt.Sprintf("question %d", n),
		Thought:     "thinking...",
		Answer:      fmt.Sprintf("answer %d", n),
		Completed:   true,
		Streaming:   true,
		HTTPStatus:  200,
		StartedAt:   started,
		CompletedAt: started.Add(250 * time.Millisecond),
	}
}
