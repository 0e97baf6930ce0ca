// Package orchestrator is the HTTP client for a chat orchestrator backend.
//
// Two endpoints are supported: the streaming endpoint, which answers with a
// newline-delimited JSON event stream, and the widget chat endpoint, which
// answers with a single JSON object.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/stream"
)

const (
	// DefaultStreamURL is the default streaming endpoint.
	DefaultStreamURL = "http://localhost:8000/api/orchestrator"

	// DefaultChatURL is the default widget chat endpoint.
	DefaultChatURL = "http://localhost:8000/chat"

	// DefaultSessionID is sent to the chat endpoint when no session is set.
	DefaultSessionID = "chatline"
)

// Client posts messages to an orchestrator.
type Client struct {
	streamURL  string
	chatURL    string
	httpClient *http.Client
	logger     *slog.Logger
	readerOpts []stream.ReaderOption
}

// ClientConfig holds configuration for a Client.
type ClientConfig struct {
	// StreamURL is the streaming endpoint. Defaults to DefaultStreamURL.
	StreamURL string

	// ChatURL is the widget chat endpoint. Defaults to DefaultChatURL.
	ChatURL string

	// HTTPClient is used for all requests. It should carry no overall
	// timeout, since a streamed answer may take arbitrarily long.
	// Defaults to a plain http.Client.
	HTTPClient *http.Client

	// Logger receives request and stream diagnostics.
	Logger *slog.Logger

	// ReaderOptions are applied to every stream.Reader the client opens.
	ReaderOptions []stream.ReaderOption
}

// streamRequest is the body posted to the streaming endpoint.
type streamRequest struct {
	Message string `json:"message"`
}

// NewClient creates a new orchestrator client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		streamURL:  cfg.StreamURL,
		chatURL:    cfg.ChatURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}

	if c.streamURL == "" {
		c.streamURL = DefaultStreamURL
	}
	if c.chatURL == "" {
		c.chatURL = DefaultChatURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	c.readerOpts = append([]stream.ReaderOption{stream.WithLogger(c.logger)}, cfg.ReaderOptions...)
	return c
}

// Stream posts message to the streaming endpoint and returns a Reader over
// the response body. The caller must Close the reader.
//
// If the request fails or the response status is not 2xx, Stream returns a
// *stream.TransportError and no reader is created.
func (c *Client) Stream(ctx context.Context, message string) (*stream.Reader, error) {
	jsonBody, err := json.Marshal(streamRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	c.logger.Debug("posting message",
		"url", c.streamURL,
		"message_len", len(message),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &stream.TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		c.logger.Debug("orchestrator rejected request",
			"status", resp.Status,
		)
		return nil, &stream.TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	return stream.NewReader(resp.Body, c.readerOpts...), nil
}

// Send streams the answer to message into h. It returns once the stream
// ends, fails, or ctx is cancelled, and always releases the response body.
func (c *Client) Send(ctx context.Context, message string, h stream.Handler) error {
	r, err := c.Stream(ctx, message)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Run(ctx, h)
}

// ErrServiceUnavailable is returned by Ask when the chat endpoint answers
// with something other than JSON, typically a proxy error page.
var ErrServiceUnavailable = errors.New("Service unavailable - please try again later")

// ChatError is a non-2xx answer from the chat endpoint. Message is the
// server's "detail" field, or "Request failed" when it has none.
type ChatError struct {
	StatusCode int
	Message    string
}

func (e *ChatError) Error() string {
	return e.Message
}

// ChatRequest is the body posted to the chat endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the body returned by the chat endpoint.
type ChatResponse struct {
	Response string `json:"response,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Ask posts message to the chat endpoint and returns the whole answer.
func (c *Client) Ask(ctx context.Context, message, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	jsonBody, err := json.Marshal(ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &stream.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if !IsJSON(resp.Header.Get("Content-Type")) {
		c.logger.Warn("chat endpoint returned non-JSON response",
			"status", resp.Status,
			"content_type", resp.Header.Get("Content-Type"),
		)
		return "", ErrServiceUnavailable
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := chatResp.Detail
		if msg == "" {
			msg = "Request failed"
		}
		return "", &ChatError{StatusCode: resp.StatusCode, Message: msg}
	}

	return chatResp.Response, nil
}

// IsJSON reports whether a Content-Type header value names a JSON media type.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
