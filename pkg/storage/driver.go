// Package storage persists chat exchanges: one user message together with
// the answer that was streamed back for it.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving exchanges in a
// storage backend.
type Driver interface {
	// Put stores an exchange. Returns true if the exchange was newly
	// inserted, false if one with the same ID already exists. Storing an
	// existing ID is a no-op.
	Put(ctx context.Context, ex *Exchange) (bool, error)

	// Get retrieves an exchange by its ID.
	Get(ctx context.Context, id string) (*Exchange, error)

	// List returns stored exchanges, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Exchange, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ListOptions filters the result of Driver.List.
type ListOptions struct {
	// SessionID restricts the result to one session when set.
	SessionID string

	// Limit caps the number of exchanges returned. Zero means no limit.
	Limit int
}
