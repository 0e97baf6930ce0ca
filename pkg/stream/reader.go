package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/chatline/pkg/logger"
	"github.com/papercomputeco/chatline/pkg/ndjson"
)

const defaultChunkSize = 32 * 1024

// Handler receives events in arrival order.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) {
	f(ev)
}

// Stats counts what a Reader has seen so far.
type Stats struct {
	// Chunks is the number of non-empty reads from the source.
	Chunks int

	// Lines is the number of non-blank lines that were parsed.
	Lines int

	// Events is the number of lines that decoded into an Event.
	Events int

	// DecodeErrors is the number of lines dropped because they were not a
	// JSON object or were too long.
	DecodeErrors int

	// Oversized is the number of lines dropped for exceeding the maximum
	// line size. They are also counted in DecodeErrors.
	Oversized int

	// Discarded is the size in bytes of the unterminated tail dropped at
	// the end of the stream.
	Discarded int
}

// Reader decodes Events from a newline-delimited JSON byte stream.
//
// ┌──────────────────┐   ┌──────────────────┐   ┌──────────────┐
// │ source io.Reader │──▶│ ndjson.Splitter  │──▶│ Reader.Next()│──▶ Event
// └──────────────────┘   └──────────────────┘   └──────────────┘
//
// Chunk boundaries are invisible to callers: a record split across reads,
// including in the middle of a multibyte character, is reassembled before
// parsing. Each physical line is parsed at most once. Blank lines are
// skipped and malformed lines are logged and dropped without ending the
// stream. When the source reports io.EOF, any unterminated trailing line is
// discarded unparsed.
//
// A Reader is scoped to a single request and is not safe for concurrent use,
// except for Close which may be called from any goroutine.
type Reader struct {
	src      io.Reader
	splitter *ndjson.Splitter
	logger   *slog.Logger
	chunk    []byte

	// lines holds completed lines from the last chunk that have not been
	// handed out yet.
	lines []string

	done bool
	err  error

	stats Stats

	closeOnce sync.Once
	closeErr  error
}

// ReaderOption configures a Reader created with NewReader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	logger      *slog.Logger
	chunkSize   int
	maxLineSize int
}

// WithLogger sets the logger used for per-line diagnostics.
func WithLogger(l *slog.Logger) ReaderOption {
	return func(c *readerConfig) {
		c.logger = l
	}
}

// WithChunkSize sets the size of the buffer used for each read.
func WithChunkSize(n int) ReaderOption {
	return func(c *readerConfig) {
		c.chunkSize = n
	}
}

// WithMaxLineSize caps the length of a single record. Longer records are
// dropped as decode errors. See ndjson.WithMaxLineSize.
func WithMaxLineSize(n int) ReaderOption {
	return func(c *readerConfig) {
		c.maxLineSize = n
	}
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	cfg := &readerConfig{
		chunkSize:   defaultChunkSize,
		maxLineSize: ndjson.DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = logger.Nop()
	}
	if cfg.chunkSize <= 0 {
		cfg.chunkSize = defaultChunkSize
	}

	return &Reader{
		src:      src,
		splitter: ndjson.NewSplitter(ndjson.WithMaxLineSize(cfg.maxLineSize)),
		logger:   cfg.logger,
		chunk:    make([]byte, cfg.chunkSize),
	}
}

// Next returns the next event in the stream. It blocks until a complete
// record is available. Next returns nil, nil once the source is exhausted.
//
// A failing source yields a *NetworkError. Events completed before the
// failure are still returned first, and the error is sticky.
func (r *Reader) Next() (*Event, error) {
	for {
		for len(r.lines) > 0 {
			line := r.lines[0]
			r.lines = r.lines[1:]

			if ev := r.parseLine(line); ev != nil {
				r.stats.Events++
				return ev, nil
			}
		}

		if r.done {
			return nil, r.err
		}

		r.fill()
	}
}

// Run reads events until the stream ends and hands each to h. It returns nil
// on a clean end of stream.
//
// Cancelling ctx closes the source so that a blocked read is released, and
// Run then returns ctx.Err().
func (r *Reader) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = r.Close()
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := r.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if ev == nil {
			return nil
		}

		h.HandleEvent(*ev)
	}
}

// Close releases the source if it implements io.Closer. It is safe to call
// more than once and from another goroutine.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if c, ok := r.src.(io.Closer); ok {
			r.closeErr = c.Close()
		}
	})
	return r.closeErr
}

// Stats returns counters for the stream read so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// fill performs one read from the source and queues any completed lines.
func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		r.stats.Chunks++

		lines, splitErr := r.splitter.Write(r.chunk[:n])
		r.lines = append(r.lines, lines...)
		if splitErr != nil {
			r.dropOversized(splitErr)
		}
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		r.finish(nil)
	default:
		r.finish(&NetworkError{Err: err})
	}
}

// finish marks the stream as ended and drops the unterminated tail.
func (r *Reader) finish(err error) {
	r.done = true
	r.err = err

	if tail := r.splitter.Buffered(); tail != "" {
		r.stats.Discarded = len(tail)
		r.logger.Debug("discarding unterminated stream line",
			"bytes", len(tail),
		)
	}
	r.splitter.Reset()

	r.logger.Debug("stream ended",
		"chunks", r.stats.Chunks,
		"events", r.stats.Events,
		"decode_errors", r.stats.DecodeErrors,
	)
}

// dropOversized accounts for lines the splitter threw away for exceeding the
// maximum line size. Like any other bad line they do not end the stream.
func (r *Reader) dropOversized(err error) {
	n := r.splitter.Skipped() - r.stats.Oversized
	r.stats.Oversized += n
	r.stats.DecodeErrors += n

	r.logger.Warn("dropping oversized stream line",
		"lines", n,
		"error", &DecodeError{Err: err},
	)
}

// parseLine decodes a single physical line. Blank and malformed lines yield
// nil.
func (r *Reader) parseLine(line string) *Event {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	r.stats.Lines++

	ev, err := ParseEvent([]byte(trimmed))
	if err != nil {
		r.stats.DecodeErrors++
		r.logger.Warn("failed to parse stream line",
			"line", trimmed,
			"error", &DecodeError{Line: trimmed, Err: err},
		)
		return nil
	}

	r.logger.Debug("event received",
		"type", string(ev.Kind),
	)
	return ev
}
