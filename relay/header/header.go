// Package header filters the headers the chatline relay passes between its
// two legs:
//
//	Browser or console <--> Relay <--> Orchestrator
//
// Each leg negotiates its own connection, compression and transfer encoding,
// so those headers are never copied across.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionHeader optionally names the conversation a streaming request belongs
// to. It is consumed by the relay and not forwarded.
const SessionHeader = "X-Chatline-Session"

// Handler copies headers between the relay's client and upstream legs.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest lists client request headers kept off the upstream request.
var skipRequest = map[string]struct{}{
	"Connection": {},

	// Rewritten by http.Transport for the upstream URL.
	"Host": {},

	// Dropped so http.Transport negotiates gzip itself and hands the relay a
	// decoded body to parse.
	"Accept-Encoding": {},

	// The body is re-sent from memory, so the length is recomputed.
	"Content-Length": {},

	SessionHeader: {},
}

// skipResponse lists upstream response headers kept off the client response.
var skipResponse = map[string]struct{}{
	"Connection": {},

	// fasthttp chooses the client-side transfer encoding.
	"Transfer-Encoding": {},

	// The relay always holds a decoded body; the compress middleware sets
	// its own encoding on the way out.
	"Content-Encoding": {},

	// Stale once the body has been decoded or re-compressed.
	"Content-Length": {},
}

// SetUpstreamRequestHeaders copies the client's request headers onto req,
// minus the ones listed in skipRequest.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies the orchestrator's response headers onto
// the client response, minus the ones listed in skipResponse. Repeated values
// are joined with commas.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
