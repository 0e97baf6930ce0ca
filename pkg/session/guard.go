// Package session enforces the per-conversation rules a chat front end
// applies before a message is sent: one request in flight at a time, a
// maximum message length, and a maximum number of questions.
package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// DefaultMaxQuestions is the number of questions accepted per session.
	DefaultMaxQuestions = 20

	// DefaultMaxContentLength is the longest accepted message, in characters.
	DefaultMaxContentLength = 1000
)

var (
	// ErrBusy is returned while a previous request is still in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrEmpty is returned for a message that is empty after trimming.
	ErrEmpty = errors.New("message is empty")
)

// LimitKind identifies which limit a message ran into.
type LimitKind string

const (
	LimitContentLength LimitKind = "content_length"
	LimitQuestions     LimitKind = "questions"
)

// LimitError is returned when a message is rejected by a Limits rule. Its
// message is suitable for showing to the user.
type LimitError struct {
	Kind  LimitKind
	Limit int
}

func (e *LimitError) Error() string {
	switch e.Kind {
	case LimitContentLength:
		return fmt.Sprintf("Message is too long (max %d characters). Please ask a shorter question.", e.Limit)
	case LimitQuestions:
		return fmt.Sprintf("You've reached the daily limit of %d questions. Please try again tomorrow.", e.Limit)
	default:
		return "limit reached"
	}
}

// Limits bounds what a Guard accepts. A zero field disables that limit.
type Limits struct {
	MaxQuestions     int
	MaxContentLength int
}

// DefaultLimits returns the standard widget limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQuestions:     DefaultMaxQuestions,
		MaxContentLength: DefaultMaxContentLength,
	}
}

// Guard admits messages for one conversation.
//
// Begin must succeed before a request is sent and the returned release
// func must be called once the request has ended, whatever the outcome.
// While a request is in flight every other Begin fails with ErrBusy, which
// is how the send affordance stays disabled.
type Guard struct {
	mu       sync.Mutex
	limits   Limits
	asked    int
	inFlight bool
}

// NewGuard creates a Guard enforcing limits.
func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// Begin admits message, or reports why it cannot be sent. The question
// counter is incremented when a message is admitted.
func (g *Guard) Begin(message string) (release func(), err error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmpty
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return nil, ErrBusy
	}
	if g.limits.MaxContentLength > 0 && utf8.RuneCountInString(message) > g.limits.MaxContentLength {
		return nil, &LimitError{Kind: LimitContentLength, Limit: g.limits.MaxContentLength}
	}
	if g.limits.MaxQuestions > 0 && g.asked >= g.limits.MaxQuestions {
		return nil, &LimitError{Kind: LimitQuestions, Limit: g.limits.MaxQuestions}
	}

	g.asked++
	g.inFlight = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight = false
			g.mu.Unlock()
		})
	}, nil
}

// Asked returns how many messages have been admitted.
func (g *Guard) Asked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.asked
}

// Restore sets the number of already admitted messages, e.g. from a count
// persisted by an earlier process.
func (g *Guard) Restore(asked int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.asked = max(asked, 0)
}

// Remaining returns how many more questions will be admitted, or -1 when
// the question limit is disabled.
func (g *Guard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limits.MaxQuestions <= 0 {
		return -1
	}
	return max(g.limits.MaxQuestions-g.asked, 0)
}

// Busy reports whether a request is in flight.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
