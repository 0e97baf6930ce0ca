package stream

import (
	"fmt"
)

// TransportError is returned when the request fails outright or the
// orchestrator answers with a non-success status. It is reported once and
// no stream is ever opened for the request.
type TransportError struct {
	// StatusCode is the HTTP status code, or 0 if no response was received.
	StatusCode int

	// Status is the response's status description (e.g. "500 Internal Server Error").
	Status string

	// Err is the underlying request error when no response was received.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return "request failed: " + e.Status
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NetworkError is returned when the underlying connection fails while the
// stream is being read. Whatever answer has been displayed so far stays.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError describes a single line that could not be parsed as an event.
// It never ends the stream; Reader logs it and moves on to the next line.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding stream line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UpstreamError is a well-formed error event sent by the orchestrator. It is
// shown to the user inline without stopping the stream.
type UpstreamError string

func (e UpstreamError) Error() string {
	return string(e)
}
