// Package console is an interactive terminal front end for a streaming
// orchestrator: prompts are read line by line, each answer is streamed in as
// it is generated, and the orchestrator's thinking status is shown until the
// first token arrives.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/eventstream"
	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/orchestrator"
	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/pkg/storage"
	"github.com/papercomputeco/chatline/pkg/stream"
)

// NetworkErrorMessage is shown when the connection fails before or during
// an answer.
const NetworkErrorMessage = "Network error occurred. Please try again."

// StoppedMessage is shown after an answer is stopped.
const StoppedMessage = "(answer stopped)"

// Component identifies the console as the source of published events.
const Component = "chatline-console"

var prompt = cliui.PromptStyle.Render("you> ")

// Config holds configuration for a Console.
type Config struct {
	// Client sends messages. Required.
	Client *orchestrator.Client

	// Guard admits messages. Defaults to a guard with session.DefaultLimits.
	Guard *session.Guard

	// SessionID and Endpoint are recorded on every exchange.
	SessionID string
	Endpoint  string

	In  io.Reader
	Out io.Writer

	// Width is the terminal width in columns, or 0 if unknown.
	Width int

	// Markdown re-renders each completed answer with glamour.
	Markdown bool

	// FrequentQuestions are offered by the /faq command.
	FrequentQuestions []string

	// Driver stores exchanges. Optional.
	Driver storage.Driver

	// Publisher emits an event per exchange. Optional.
	Publisher eventstream.Publisher

	// OnAdmitted is called with the guard's count after each admitted
	// message, e.g. to persist it.
	OnAdmitted func(asked int)

	Logger *slog.Logger
}

// Console runs an interactive session.
type Console struct {
	client    *orchestrator.Client
	guard     *session.Guard
	sessionID string
	endpoint  string

	in       io.Reader
	out      io.Writer
	width    int
	markdown bool
	surface  *TerminalSurface
	faq      []string

	driver     storage.Driver
	publisher  eventstream.Publisher
	onAdmitted func(int)

	// stopAnswer cancels the request in flight, if any.
	mu         sync.Mutex
	stopAnswer context.CancelFunc

	logger *slog.Logger
}

// New creates a Console from cfg.
func New(cfg Config) *Console {
	c := &Console{
		client:     cfg.Client,
		guard:      cfg.Guard,
		sessionID:  cfg.SessionID,
		endpoint:   cfg.Endpoint,
		in:         cfg.In,
		out:        cfg.Out,
		width:      cfg.Width,
		markdown:   cfg.Markdown,
		faq:        cfg.FrequentQuestions,
		driver:     cfg.Driver,
		publisher:  cfg.Publisher,
		onAdmitted: cfg.OnAdmitted,
		logger:     cfg.Logger,
	}

	if c.guard == nil {
		c.guard = session.NewGuard(session.DefaultLimits())
	}
	if c.out == nil {
		c.out = io.Discard
	}
	if c.in == nil {
		c.in = strings.NewReader("")
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.surface = NewTerminalSurface(c.out, c.width)

	return c
}

// Run reads prompts until end of input, "/exit", or ctx is cancelled. An
// answer stopped with Interrupt returns to the prompt.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out)
	if remaining := c.guard.Remaining(); remaining >= 0 {
		fmt.Fprintf(c.out, "  %s %s\n",
			cliui.KeyStyle.Render("Questions left today:"),
			cliui.ValueStyle.Render(fmt.Sprint(remaining)),
		)
	}
	if len(c.faq) > 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("/faq lists frequent questions, /faq <n> asks one."))
	}
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. Ctrl+C stops an answer, /exit or Ctrl+D quits."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for ctx.Err() == nil {
		fmt.Fprint(c.out, prompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			break
		}
		if input == "/faq" || strings.HasPrefix(input, "/faq ") {
			question, ok := c.pickQuestion(strings.TrimSpace(strings.TrimPrefix(input, "/faq")))
			if !ok {
				continue
			}
			fmt.Fprintln(c.out, cliui.DimStyle.Render(question))
			input = question
		}

		if _, err := c.Submit(ctx, input); errors.Is(err, context.Canceled) && ctx.Err() != nil {
			break
		}
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// Submit sends one message and renders its answer.
//
// A rejected message is reported on the terminal and returned as the error
// with a nil exchange. Otherwise the exchange is recorded whatever the
// outcome, and the error is the one that ended the request, if any.
func (c *Console) Submit(ctx context.Context, message string) (*storage.Exchange, error) {
	release, err := c.guard.Begin(message)
	if err != nil {
		if !errors.Is(err, session.ErrEmpty) {
			c.surface.Notice(err.Error())
		}
		return nil, err
	}
	defer release()

	if c.onAdmitted != nil {
		c.onAdmitted(c.guard.Asked())
	}

	ex := storage.NewExchange(c.sessionID, c.endpoint, strings.TrimSpace(message))
	ex.Streaming = true

	answerCtx, cancel := context.WithCancel(ctx)
	c.setStopAnswer(cancel)
	defer c.setStopAnswer(nil)
	defer cancel()

	presenter := stream.NewPresenter(c.surface, c.logger)
	sendErr := c.client.Send(answerCtx, ex.Message, presenter)
	c.surface.Finish()

	ex.Thought = presenter.Thought()
	ex.Answer = presenter.Answer()
	ex.Errors = presenter.Errors()
	ex.Completed = presenter.Completed()
	ex.HTTPStatus = statusOf(sendErr)
	ex.CompletedAt = time.Now().UTC()

	c.report(sendErr)

	if sendErr == nil && c.markdown && strings.TrimSpace(ex.Answer) != "" {
		rendered, err := cliui.RenderMarkdown(ex.Answer, c.width)
		if err != nil {
			c.logger.Debug("could not render answer as markdown", "error", err)
		} else {
			fmt.Fprint(c.out, rendered)
		}
	}

	c.record(context.WithoutCancel(ctx), ex)

	return ex, sendErr
}

// report shows the error that ended a request, once.
func (c *Console) report(err error) {
	if err == nil {
		return
	}

	var transportErr *stream.TransportError
	switch {
	case errors.Is(err, context.Canceled):
		c.logger.Debug("request cancelled")
		fmt.Fprintln(c.out, cliui.DimStyle.Render(StoppedMessage))
	case errors.As(err, &transportErr) && transportErr.Err == nil:
		c.surface.Notice("Error: " + transportErr.Status)
	default:
		c.logger.Warn("request failed", "error", err)
		c.surface.Notice(NetworkErrorMessage)
	}
}

// pickQuestion resolves the argument of /faq. With no argument the list is
// printed and nothing is asked.
func (c *Console) pickQuestion(arg string) (string, bool) {
	if len(c.faq) == 0 {
		c.surface.Notice("No frequent questions are configured.")
		return "", false
	}

	if arg == "" {
		for i, q := range c.faq {
			fmt.Fprintf(c.out, "  %s %s\n",
				cliui.KeyStyle.Render(fmt.Sprintf("%d.", i+1)),
				cliui.ValueStyle.Render(q),
			)
		}
		return "", false
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(c.faq) {
		c.surface.Notice(fmt.Sprintf("Pick a question between 1 and %d.", len(c.faq)))
		return "", false
	}
	return c.faq[n-1], true
}

// Interrupt stops the answer being streamed, leaving what has arrived so far
// on screen. It reports whether there was an answer to stop.
func (c *Console) Interrupt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopAnswer == nil {
		return false
	}
	c.stopAnswer()
	c.stopAnswer = nil
	return true
}

func (c *Console) setStopAnswer(cancel context.CancelFunc) {
	c.mu.Lock()
	c.stopAnswer = cancel
	c.mu.Unlock()
}

// record stores and publishes ex. Failures are logged; the answer has
// already been shown.
func (c *Console) record(ctx context.Context, ex *storage.Exchange) {
	if c.driver != nil {
		if _, err := c.driver.Put(ctx, ex); err != nil {
			c.logger.Warn("failed to store exchange",
				"exchange_id", ex.ID,
				"error", err,
			)
		}
	}

	if c.publisher != nil {
		event := eventstream.NewExchangeRecordedEvent(Component, ex)
		if err := c.publisher.Publish(ctx, event); err != nil {
			c.logger.Warn("failed to publish exchange event",
				"exchange_id", ex.ID,
				"error", err,
			)
		}
	}
}

// statusOf returns the HTTP status a request ended with, or 0 when it is
// not known.
func statusOf(err error) int {
	var transportErr *stream.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.StatusCode
	}

	var netErr *stream.NetworkError
	if err == nil || errors.As(err, &netErr) {
		return http.StatusOK
	}
	return 0
}
