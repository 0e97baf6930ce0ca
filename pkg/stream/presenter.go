package stream

import (
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatline/pkg/logger"
)

// Phase is the presentation state of one request.
type Phase int

const (
	// AwaitingFirstToken shows an optional thinking placeholder.
	AwaitingFirstToken Phase = iota

	// StreamingAnswer shows the answer slot. It is entered on the first
	// token and never left.
	StreamingAnswer
)

func (p Phase) String() string {
	switch p {
	case AwaitingFirstToken:
		return "awaiting_first_token"
	case StreamingAnswer:
		return "streaming_answer"
	default:
		return "unknown"
	}
}

// Slot is a handle to one region of a display surface.
type Slot interface {
	// SetText replaces the slot's text.
	SetText(text string)

	// AppendText adds text to the end of the slot.
	AppendText(text string)

	// Remove tears the slot down. The handle is not used afterwards.
	Remove()
}

// Surface is where a Presenter renders a request.
type Surface interface {
	// NewThinking creates the transient thinking placeholder.
	NewThinking() Slot

	// NewAnswer creates the slot the answer is streamed into.
	NewAnswer() Slot

	// ShowError displays an error message next to (never in place of) any
	// answer shown so far.
	ShowError(message string)
}

// Presenter applies stream events to a Surface.
//
// It owns at most one slot at a time: the thinking placeholder while
// AwaitingFirstToken and the answer slot while StreamingAnswer. The first
// token removes the placeholder and creates the answer slot in a single
// transition, so both are never live together.
//
// A Presenter is scoped to one request and is discarded with it.
type Presenter struct {
	surface Surface
	logger  *slog.Logger

	phase Phase
	slot  Slot

	thought   string
	answer    strings.Builder
	errors    []string
	completed bool
}

// NewPresenter returns a Presenter rendering onto surface. A nil surface
// renders nowhere, which is useful for recording a stream headlessly.
func NewPresenter(surface Surface, l *slog.Logger) *Presenter {
	if surface == nil {
		surface = Discard
	}
	if l == nil {
		l = logger.Nop()
	}

	return &Presenter{
		surface: surface,
		logger:  l,
		phase:   AwaitingFirstToken,
	}
}

// HandleEvent implements Handler.
func (p *Presenter) HandleEvent(ev Event) {
	switch ev.Kind {
	case KindThought:
		p.handleThought(ev.Content)
	case KindToken:
		p.handleToken(ev.Content)
	case KindComplete:
		p.completed = true
		p.logger.Debug("stream complete",
			"answer_bytes", p.answer.Len(),
		)
	case KindError:
		p.errors = append(p.errors, ev.Content)
		p.surface.ShowError(ev.Content)
	default:
		p.logger.Debug("ignoring unrecognized event",
			"type", string(ev.Kind),
		)
	}
}

func (p *Presenter) handleThought(content string) {
	if p.phase != AwaitingFirstToken {
		// The answer has started, so this status is stale.
		p.logger.Debug("dropping thought received after first token")
		return
	}

	if p.slot == nil {
		p.slot = p.surface.NewThinking()
	}
	p.slot.SetText(content)
	p.thought = content
}

func (p *Presenter) handleToken(content string) {
	if p.phase == AwaitingFirstToken {
		if p.slot != nil {
			p.slot.Remove()
		}
		p.slot = p.surface.NewAnswer()
		p.phase = StreamingAnswer
	}

	p.slot.AppendText(content)
	p.answer.WriteString(content)
}

// Phase returns the current presentation state.
func (p *Presenter) Phase() Phase {
	return p.phase
}

// Answer returns the concatenation of every token received so far.
func (p *Presenter) Answer() string {
	return p.answer.String()
}

// Thought returns the last thinking text that was displayed.
func (p *Presenter) Thought() string {
	return p.thought
}

// Errors returns the messages of all error events, in arrival order.
func (p *Presenter) Errors() []string {
	return p.errors
}

// Completed reports whether a complete event has been received.
func (p *Presenter) Completed() bool {
	return p.completed
}

// Discard is a Surface that renders nothing.
var Discard Surface = discardSurface{}

type discardSurface struct{}

func (discardSurface) NewThinking() Slot { return discardSlot{} }
func (discardSurface) NewAnswer() Slot   { return discardSlot{} }
func (discardSurface) ShowError(string)  {}

type discardSlot struct{}

func (discardSlot) SetText(string)    {}
func (discardSlot) AppendText(string) {}
func (discardSlot) Remove()           {}
