package relay

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/chatline/pkg/render"
	"github.com/papercomputeco/chatline/pkg/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TranscriptResponse is a stored exchange with its answer rendered as
// sanitized HTML.
type TranscriptResponse struct {
	*storage.Exchange
	AnswerHTML string `json:"answer_html"`
}

// handlePing returns a simple health check response.
func (r *Relay) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListTranscripts returns stored exchanges, newest first.
func (r *Relay) handleListTranscripts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Detail: "limit must be between 1 and 500"})
	}

	exchanges, err := r.driver.List(c.Context(), storage.ListOptions{
		SessionID: c.Query("session"),
		Limit:     limit,
	})
	if err != nil {
		r.logger.Error("failed to list exchanges", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Detail: "failed to list transcripts"})
	}

	if exchanges == nil {
		exchanges = []*storage.Exchange{}
	}

	return c.JSON(map[string]any{
		"count":     len(exchanges),
		"exchanges": exchanges,
	})
}

// handleGetTranscript returns a single exchange by its ID.
func (r *Relay) handleGetTranscript(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Detail: "id parameter required"})
	}

	ex, err := r.driver.Get(c.Context(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Detail: "transcript not found"})
		}
		r.logger.Error("failed to get exchange", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Detail: "failed to get transcript"})
	}

	return c.JSON(TranscriptResponse{
		Exchange:   ex,
		AnswerHTML: render.HTML(ex.Answer),
	})
}
