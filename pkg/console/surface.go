package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/chatline/pkg/cliui"
	"github.com/papercomputeco/chatline/pkg/stream"
)

const (
	thinkingPrefix = "… "
	errorPrefix    = "❌ "
)

// TerminalSurface renders a request onto a line-oriented terminal.
//
// The thinking placeholder is a single line that is rewritten in place with
// a carriage return and truncated to the terminal width. Answer tokens are
// written as they arrive. Errors get a line of their own below whatever has
// been printed so far.
type TerminalSurface struct {
	mu    sync.Mutex
	out   io.Writer
	width int

	// atLineStart is false while the cursor sits after answer text.
	atLineStart bool
	thinking    *thinkingLine
}

// NewTerminalSurface returns a surface writing to out. width bounds the
// thinking line; a non-positive width disables truncation.
func NewTerminalSurface(out io.Writer, width int) *TerminalSurface {
	return &TerminalSurface{
		out:         out,
		width:       width,
		atLineStart: true,
	}
}

// NewThinking implements stream.Surface.
func (s *TerminalSurface) NewThinking() stream.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breakLine()
	s.thinking = &thinkingLine{surface: s}
	return s.thinking
}

// NewAnswer implements stream.Surface.
func (s *TerminalSurface) NewAnswer() stream.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breakLine()
	return &answerStream{surface: s}
}

// ShowError implements stream.Surface.
func (s *TerminalSurface) ShowError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.printError(message)
}

// Notice prints a full-width error line outside of any request stream,
// e.g. a rejected message or a failed request.
func (s *TerminalSurface) Notice(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.printError(message)
}

// Finish ends the current request's output, leaving the cursor at the start
// of a fresh line. A thinking line that never gave way to an answer is left
// on screen.
func (s *TerminalSurface) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.thinking != nil {
		if s.thinking.drawn {
			fmt.Fprintln(s.out)
		}
		s.thinking.removed = true
		s.thinking = nil
	}
	s.breakLine()
}

// printError writes message on its own line and redraws a live thinking
// line beneath it. The caller holds mu.
func (s *TerminalSurface) printError(message string) {
	if s.thinking != nil {
		s.thinking.clear()
	}
	s.breakLine()

	fmt.Fprintln(s.out, cliui.ErrorStyle.Render(errorPrefix+message))

	if s.thinking != nil {
		s.thinking.draw()
	}
}

// breakLine moves to a new line if answer text is pending on the current
// one. The caller holds mu.
func (s *TerminalSurface) breakLine() {
	if !s.atLineStart {
		fmt.Fprintln(s.out)
		s.atLineStart = true
	}
}

// fit truncates text to the line width, keeping escape sequences intact.
func (s *TerminalSurface) fit(text string) string {
	// Thinking text is a status line; keep only its first line.
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if s.width <= 0 {
		return text
	}

	room := s.width - ansi.StringWidth(thinkingPrefix)
	if room <= 1 {
		return ""
	}
	return ansi.Truncate(text, room, "…")
}

// thinkingLine is the rewritable thinking placeholder.
type thinkingLine struct {
	surface *TerminalSurface
	text    string
	drawn   bool
	removed bool
}

func (t *thinkingLine) SetText(text string) {
	t.surface.mu.Lock()
	defer t.surface.mu.Unlock()

	if t.removed {
		return
	}
	t.text = text
	t.draw()
}

func (t *thinkingLine) AppendText(text string) {
	t.surface.mu.Lock()
	defer t.surface.mu.Unlock()

	if t.removed {
		return
	}
	t.text += text
	t.draw()
}

func (t *thinkingLine) Remove() {
	t.surface.mu.Lock()
	defer t.surface.mu.Unlock()

	if t.removed {
		return
	}
	t.clear()
	t.removed = true
	if t.surface.thinking == t {
		t.surface.thinking = nil
	}
}

// draw rewrites the line in place. The caller holds the surface lock.
func (t *thinkingLine) draw() {
	fmt.Fprint(t.surface.out, "\r"+ansi.EraseEntireLine+
		cliui.ThinkingStyle.Render(thinkingPrefix+t.surface.fit(t.text)))
	t.drawn = true
}

// clear erases the line. The caller holds the surface lock.
func (t *thinkingLine) clear() {
	if !t.drawn {
		return
	}
	fmt.Fprint(t.surface.out, "\r"+ansi.EraseEntireLine)
	t.drawn = false
}

// answerStream writes tokens straight to the terminal. Printed text cannot
// be taken back, so SetText starts the answer over on a new line.
type answerStream struct {
	surface *TerminalSurface
}

func (a *answerStream) SetText(text string) {
	a.surface.mu.Lock()
	defer a.surface.mu.Unlock()

	a.surface.breakLine()
	a.write(text)
}

func (a *answerStream) AppendText(text string) {
	a.surface.mu.Lock()
	defer a.surface.mu.Unlock()

	a.write(text)
}

func (a *answerStream) Remove() {
	a.surface.mu.Lock()
	defer a.surface.mu.Unlock()

	a.surface.breakLine()
}

// write prints text and tracks whether the cursor ends mid-line. The caller
// holds the surface lock.
func (a *answerStream) write(text string) {
	if text == "" {
		return
	}
	fmt.Fprint(a.surface.out, text)
	a.surface.atLineStart = strings.HasSuffix(text, "\n")
}
