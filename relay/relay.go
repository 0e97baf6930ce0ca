// Package relay provides an HTTP relay that sits in front of a chat
// orchestrator, enforces the per-session question limits, streams answers
// through unchanged and records every exchange it carries.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/orchestrator"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/pkg/stream"
	"github.com/papercomputeco/chatline/relay/header"
	"github.com/papercomputeco/chatline/relay/worker"
)

const (
	// Component identifies the relay as the source of published events.
	Component = "chatline-relay"

	streamPath = "/api/orchestrator"
	chatPath   = "/chat"

	// maxErrorBody bounds how much of an upstream error body is relayed.
	maxErrorBody = 64 * 1024
)

// ErrorResponse is the body of every error the relay produces itself.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Relay forwards chat requests to an orchestrator and records the exchanges.
// The relay is transparent: answers reach the client byte for byte while a
// copy is parsed on the side and enqueued for async storage via its worker
// pool.
type Relay struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	guards        *session.Registry
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler

	// now is the clock used to key question counts by day.
	now func() time.Time
}

// New creates a new Relay.
// The driver is injected to handle async persistence of exchanges.
func New(config Config, driver storage.Driver, l *slog.Logger) (*Relay, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if l == nil {
		l = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: config.Publisher,
		Component: Component,
		Logger:    l,
	})
	if err != nil {
		return nil, err
	}

	r := &Relay{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		guards:        session.NewRegistry(config.Limits),
		logger:        l,
		server:        app,
		headerHandler: header.NewHandler(),
		// No overall timeout: a streamed answer may take arbitrarily long.
		httpClient: &http.Client{},
		now:        time.Now,
	}

	app.Get("/ping", r.handlePing)
	app.Post(streamPath, r.handleStream)
	app.Post(chatPath, r.handleChat)
	app.Get("/transcripts", r.handleListTranscripts)
	app.Get("/transcripts/:id", r.handleGetTranscript)

	return r, nil
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		"listen", r.config.ListenAddr,
		"upstream", r.config.UpstreamURL,
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", r.config.UpstreamURL,
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the relay and waits for the worker pool to drain.
func (r *Relay) Close() error {
	err := r.server.Shutdown()
	r.workerPool.Close()
	return err
}

// handleStream relays a message to the streaming endpoint. The answer is
// streamed back verbatim while a tee of it is read into an Exchange.
func (r *Relay) handleStream(c *fiber.Ctx) error {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Detail: "invalid request body"})
	}

	sessionID := r.sessionKey(c, req.SessionID)
	release, err := r.admit(sessionID, req.Message)
	if err != nil {
		return r.reject(c, err)
	}

	ex := storage.NewExchange(sessionID, r.config.UpstreamURL+streamPath, strings.TrimSpace(req.Message))
	ex.Streaming = true

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the body is streamed from
	// a separate goroutine and needs the upstream connection to stay open.
	httpResp, err := r.forward(context.Background(), c, streamPath)
	if err != nil {
		release()
		r.logger.Error("upstream request failed", "error", err)
		r.finish(ex, 0)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Detail: "upstream request failed"})
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		defer release()

		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		r.logger.Warn("upstream returned error",
			"status", httpResp.StatusCode,
			"body", string(respBody),
		)
		r.finish(ex, httpResp.StatusCode)

		r.headerHandler.SetClientResponseHeaders(c, httpResp)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	r.headerHandler.SetClientResponseHeaders(c, httpResp)

	// io.Pipe gives per-chunk streaming with backpressure: pw.Write blocks
	// until fasthttp has taken the bytes for the client socket.
	pr, pw := io.Pipe()
	go r.relayStream(httpResp, pw, ex, release)

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)
	c.Status(httpResp.StatusCode)

	return nil
}

// relayStream copies the upstream body to pw and rebuilds the exchange from
// the same bytes. The exchange is handed off and the guard released before
// the client sees the end of the body.
func (r *Relay) relayStream(httpResp *http.Response, pw *io.PipeWriter, ex *storage.Exchange, release func()) {
	defer httpResp.Body.Close()

	reader := stream.NewReader(io.TeeReader(httpResp.Body, pw), stream.WithLogger(r.logger))
	presenter := stream.NewPresenter(stream.Discard, r.logger)

	err := reader.Run(context.Background(), presenter)
	var netErr *stream.NetworkError
	if err != nil && !errors.As(err, &netErr) {
		// The side parser gave up but the client is still owed the rest of
		// the body.
		r.logger.Warn("stopped parsing stream, relaying the remainder unparsed",
			"exchange_id", ex.ID,
			"error", err,
		)
		_, err = io.Copy(pw, httpResp.Body)
	}
	if err != nil {
		r.logger.Warn("stream ended early",
			"exchange_id", ex.ID,
			"error", err,
		)
	}

	stats := reader.Stats()
	r.logger.Debug("streaming complete",
		"exchange_id", ex.ID,
		"lines", stats.Lines,
		"decode_errors", stats.DecodeErrors,
		"duration", time.Since(ex.StartedAt),
	)

	ex.Thought = presenter.Thought()
	ex.Answer = presenter.Answer()
	ex.Errors = presenter.Errors()
	ex.Completed = presenter.Completed()
	r.finish(ex, httpResp.StatusCode)
	release()

	if err != nil {
		pw.CloseWithError(err)
		return
	}
	pw.Close()
}

// handleChat relays a message to the widget chat endpoint.
func (r *Relay) handleChat(c *fiber.Ctx) error {
	var req orchestrator.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Detail: "invalid request body"})
	}

	sessionID := r.sessionKey(c, req.SessionID)
	release, err := r.admit(sessionID, req.Message)
	if err != nil {
		return r.reject(c, err)
	}
	defer release()

	ex := storage.NewExchange(sessionID, r.config.UpstreamURL+chatPath, strings.TrimSpace(req.Message))

	httpResp, err := r.forward(c.Context(), c, chatPath)
	if err != nil {
		r.logger.Error("upstream request failed", "error", err)
		r.finish(ex, 0)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Detail: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		r.logger.Error("failed to read upstream response", "error", err)
		r.finish(ex, httpResp.StatusCode)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Detail: "failed to read upstream response"})
	}

	if !orchestrator.IsJSON(httpResp.Header.Get("Content-Type")) {
		r.logger.Warn("chat endpoint returned non-JSON response",
			"status", httpResp.StatusCode,
			"content_type", httpResp.Header.Get("Content-Type"),
		)
		ex.Errors = []string{orchestrator.ErrServiceUnavailable.Error()}
		r.finish(ex, httpResp.StatusCode)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Detail: orchestrator.ErrServiceUnavailable.Error()})
	}

	var chatResp orchestrator.ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		r.logger.Warn("failed to parse chat response", "error", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299 {
		ex.Answer = chatResp.Response
		ex.Completed = true
	} else {
		detail := chatResp.Detail
		if detail == "" {
			detail = "Request failed"
		}
		ex.Errors = []string{detail}
	}
	r.finish(ex, httpResp.StatusCode)

	r.headerHandler.SetClientResponseHeaders(c, httpResp)
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// forward re-sends the client's request body to path on the orchestrator.
func (r *Relay) forward(ctx context.Context, c *fiber.Ctx, path string) (*http.Response, error) {
	body := bytes.Clone(c.Body())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.UpstreamURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	r.headerHandler.SetUpstreamRequestHeaders(c, httpReq)
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	r.logger.Debug("forwarding request to upstream",
		"url", httpReq.URL.String(),
		"body_bytes", len(body),
	)

	return r.httpClient.Do(httpReq)
}

// sessionKey identifies the conversation a request belongs to: the explicit
// session ID, then the session header, then the client address.
func (r *Relay) sessionKey(c *fiber.Ctx, sessionID string) string {
	if s := strings.TrimSpace(sessionID); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.Get(header.SessionHeader)); s != "" {
		return strings.Clone(s)
	}
	return strings.Clone(c.IP())
}

// admit applies the session's guard to message. Question counts are kept
// per calendar day.
func (r *Relay) admit(sessionID, message string) (func(), error) {
	day := r.now().Format(time.DateOnly)
	if dropped := r.guards.Rotate(day); dropped > 0 {
		r.logger.Debug("reset question counts for a new day",
			"day", day,
			"sessions", dropped,
		)
	}
	return r.guards.Guard(sessionID).Begin(message)
}

// reject answers a request the guard turned away.
func (r *Relay) reject(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest

	var limitErr *session.LimitError
	switch {
	case errors.As(err, &limitErr) && limitErr.Kind == session.LimitQuestions:
		status = fiber.StatusTooManyRequests
	case errors.As(err, &limitErr):
		status = fiber.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrBusy):
		status = fiber.StatusConflict
	}

	r.logger.Debug("request rejected",
		"status", status,
		"reason", err.Error(),
	)
	return c.Status(status).JSON(ErrorResponse{Detail: err.Error()})
}

// finish stamps ex and hands it to the worker pool.
func (r *Relay) finish(ex *storage.Exchange, status int) {
	ex.HTTPStatus = status
	ex.CompletedAt = time.Now().UTC()
	r.workerPool.Enqueue(worker.Job{Exchange: ex})
}
