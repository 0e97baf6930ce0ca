package relay

import (
	"github.com/papercomputeco/chatline/pkg/eventstream"
	"github.com/papercomputeco/chatline/pkg/session"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the orchestrator base URL (e.g., "http://localhost:8000").
	// Requests are forwarded to the same path on this host.
	UpstreamURL string

	// Limits are applied per session to both chat endpoints.
	Limits session.Limits

	// Publisher optionally announces every stored exchange.
	Publisher eventstream.Publisher
}
