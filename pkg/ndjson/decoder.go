// Package ndjson provides incremental, chunk-boundary tolerant splitting of
// newline-delimited JSON streams.
//
// Transports deliver bytes in arbitrarily sized chunks with no alignment
// guarantee relative to logical records: a chunk may end in the middle of a
// UTF-8 multibyte sequence or in the middle of a JSON line. The Decoder and
// Splitter types in this package carry those partial tails across writes so
// that callers only ever see complete, valid UTF-8 lines.
//
// This package intentionally knows nothing about the records themselves;
// parsing lines into events is left to pkg/stream.
package ndjson

import (
	"strings"
	"unicode/utf8"
)

// Decoder is a stream-aware UTF-8 decoder.
//
// A multibyte sequence split across two calls to Decode is held back and
// completed by the next call. Bytes that can never form a valid sequence are
// replaced with utf8.RuneError (U+FFFD), one replacement per invalid byte.
type Decoder struct {
	// pending holds at most utf8.UTFMax-1 bytes of an incomplete trailing
	// sequence from the previous chunk.
	pending []byte
}

// Decode converts chunk to text, prefixing any bytes retained from the
// previous call and retaining an incomplete trailing sequence for the next.
func (d *Decoder) Decode(chunk []byte) string {
	data := chunk
	if len(d.pending) > 0 {
		data = make([]byte, 0, len(d.pending)+len(chunk))
		data = append(data, d.pending...)
		data = append(data, chunk...)
		d.pending = d.pending[:0]
	}

	cut := incompleteTail(data)
	if cut < len(data) {
		d.pending = append(d.pending, data[cut:]...)
		data = data[:cut]
	}

	if utf8.Valid(data) {
		return string(data)
	}

	var sb strings.Builder
	sb.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(data[:size])
		}
		data = data[size:]
	}
	return sb.String()
}

// Pending reports the number of bytes held back waiting for the rest of a
// multibyte sequence.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset drops any retained partial sequence.
func (d *Decoder) Reset() {
	d.pending = d.pending[:0]
}

// incompleteTail returns the index at which a trailing, not-yet-complete
// UTF-8 sequence starts, or len(b) if the tail is complete (or invalid, in
// which case waiting for more bytes would not help).
func incompleteTail(b []byte) int {
	n := len(b)
	limit := max(n-(utf8.UTFMax-1), 0)

	for i := n - 1; i >= limit; i-- {
		c := b[i]
		if c < utf8.RuneSelf {
			return n
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[i:]) {
				return n
			}
			return i
		}
	}
	return n
}
