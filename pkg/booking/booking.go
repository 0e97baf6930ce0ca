// Package booking builds links to the consultation booking page, prefilled
// with what the user told the assistant.
package booking

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultBaseURL is the booking page used when none is configured.
const DefaultBaseURL = "https://calendly.com/gorightgoleft"

// Request holds the fields prefilled on the booking page.
type Request struct {
	Name    string
	Email   string
	Message string
}

// URL returns base with the request appended as a query string. Parameters
// are always in the order name, email, message and are escaped the way
// browsers escape URI components, so spaces become %20.
func URL(base string, req Request) (string, error) {
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("booking base URL must be absolute")
	}

	query := strings.Join([]string{
		"name=" + EscapeComponent(req.Name),
		"email=" + EscapeComponent(req.Email),
		"message=" + EscapeComponent(req.Message),
	}, "&")

	sep := "?"
	if u.RawQuery != "" || strings.HasSuffix(base, "?") {
		sep = "&"
	}
	return strings.TrimSuffix(base, "?") + sep + query, nil
}

// EscapeComponent escapes s like JavaScript's encodeURIComponent: letters,
// digits and - _ . ! ~ * ' ( ) are kept, everything else is percent-encoded
// as UTF-8.
func EscapeComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")

	// QueryEscape encodes these, encodeURIComponent does not.
	for enc, raw := range map[string]string{
		"%21": "!",
		"%27": "'",
		"%28": "(",
		"%29": ")",
		"%2A": "*",
	} {
		escaped = strings.ReplaceAll(escaped, enc, raw)
	}
	return escaped
}
