package ndjson

import (
	"errors"
	"strings"
)

// DefaultMaxLineSize bounds how much unterminated text a Splitter will hold.
const DefaultMaxLineSize = 1024 * 1024

// ErrLineTooLong is returned by Splitter.Write when a line grew past the
// configured maximum and was dropped. It is not fatal: the lines returned with
// it are valid and the Splitter resumes after the next "\n".
var ErrLineTooLong = errors.New("ndjson: line exceeds maximum size")

// Splitter reassembles newline-terminated lines from a sequence of byte
// chunks.
//
// Each Write decodes the chunk, appends it to the running buffer and returns
// every line completed by it. The final, possibly incomplete segment is kept
// as the new buffer and is only released once a later chunk terminates it.
// An unterminated tail left over when the stream ends is never returned as a
// line; callers that care can inspect it with Buffered.
type Splitter struct {
	decoder Decoder
	buffer  string
	maxLine int

	// skipping is set while the rest of an oversized line is thrown away.
	skipping bool
	skipped  int
}

// SplitterOption configures a Splitter created with NewSplitter.
type SplitterOption func(*Splitter)

// WithMaxLineSize caps the length of a single line. Longer lines are dropped.
// A value of zero or less disables the cap.
func WithMaxLineSize(n int) SplitterOption {
	return func(s *Splitter) {
		s.maxLine = n
	}
}

// NewSplitter returns a Splitter with an empty buffer.
func NewSplitter(opts ...SplitterOption) *Splitter {
	s := &Splitter{
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write consumes one chunk and returns the lines it completed, in order and
// without their trailing "\n". Lines are returned verbatim: they may be blank
// or carry surrounding whitespace such as a "\r" from CRLF framing.
//
// If a line longer than the cap was dropped during this call, the remaining
// lines are returned together with ErrLineTooLong.
func (s *Splitter) Write(chunk []byte) ([]string, error) {
	text := s.decoder.Decode(chunk)
	if text == "" {
		return nil, nil
	}

	var lines []string
	dropped := 0

	for text != "" {
		i := strings.IndexByte(text, '\n')

		if s.skipping {
			if i < 0 {
				break
			}
			s.skipping = false
			text = text[i+1:]
			continue
		}

		if i < 0 {
			s.buffer += text
			if s.tooLong(s.buffer) {
				s.buffer = ""
				s.skipping = true
				dropped++
			}
			break
		}

		line := s.buffer + text[:i]
		s.buffer = ""
		text = text[i+1:]

		if s.tooLong(line) {
			dropped++
			continue
		}
		lines = append(lines, line)
	}

	if dropped > 0 {
		s.skipped += dropped
		return lines, ErrLineTooLong
	}
	return lines, nil
}

// Skipped returns the number of oversized lines dropped so far.
func (s *Splitter) Skipped() int {
	return s.skipped
}

func (s *Splitter) tooLong(line string) bool {
	return s.maxLine > 0 && len(line) > s.maxLine
}

// Buffered returns the text received since the last newline.
func (s *Splitter) Buffered() string {
	return s.buffer
}

// Pending reports the number of undecoded bytes held by the UTF-8 decoder.
func (s *Splitter) Pending() int {
	return s.decoder.Pending()
}

// Reset discards the buffered tail and any partial multibyte sequence.
func (s *Splitter) Reset() {
	s.buffer = ""
	s.skipping = false
	s.decoder.Reset()
}
