// Package sqlstore implements storage.Driver on top of database/sql. The
// sqlite and postgres drivers share it and differ only in Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/chatline/pkg/storage"
)

// Dialect captures the SQL differences between backends.
type Dialect int

const (
	// SQLite uses "?" placeholders.
	SQLite Dialect = iota

	// Postgres uses "$n" placeholders.
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// rebind rewrites "?" placeholders for the dialect.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const schema = `CREATE TABLE IF NOT EXISTS exchanges (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	message      TEXT NOT NULL,
	thought      TEXT NOT NULL,
	answer       TEXT NOT NULL,
	errors       TEXT NOT NULL,
	completed    BOOLEAN NOT NULL,
	streaming    BOOLEAN NOT NULL,
	http_status  INTEGER NOT NULL,
	started_at   BIGINT NOT NULL,
	completed_at BIGINT NOT NULL
)`

const sessionIndex = `CREATE INDEX IF NOT EXISTS exchanges_session_started
	ON exchanges (session_id, started_at)`

const columns = `id, session_id, endpoint, message, thought, answer, errors,
	completed, streaming, http_status, started_at, completed_at`

// Driver implements storage.Driver over a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

// New wraps db and creates the schema if it does not exist yet.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range []string{schema, sessionIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Driver{DB: db, Dialect: dialect}, nil
}

// Put stores an exchange. Returns true if the exchange was newly inserted.
func (d *Driver) Put(ctx context.Context, ex *storage.Exchange) (bool, error) {
	if err := ex.Validate(); err != nil {
		return false, err
	}

	errs, err := json.Marshal(nonNil(ex.Errors))
	if err != nil {
		return false, fmt.Errorf("encoding errors: %w", err)
	}

	query := d.Dialect.rebind(`INSERT INTO exchanges (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	res, err := d.DB.ExecContext(ctx, query,
		ex.ID,
		ex.SessionID,
		ex.Endpoint,
		ex.Message,
		ex.Thought,
		ex.Answer,
		string(errs),
		ex.Completed,
		ex.Streaming,
		ex.HTTPStatus,
		toNanos(ex.StartedAt),
		toNanos(ex.CompletedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting exchange %s: %w", ex.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting exchange %s: %w", ex.ID, err)
	}
	return n > 0, nil
}

// Get retrieves an exchange by its ID.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Exchange, error) {
	query := d.Dialect.rebind(`SELECT ` + columns + ` FROM exchanges WHERE id = ?`)

	ex, err := scanExchange(d.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting exchange %s: %w", id, err)
	}
	return ex, nil
}

// List returns stored exchanges, newest first.
func (d *Driver) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Exchange, error) {
	query := `SELECT ` + columns + ` FROM exchanges`
	var args []any

	if opts.SessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, opts.SessionID)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := d.DB.QueryContext(ctx, d.Dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	defer rows.Close()

	var result []*storage.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("listing exchanges: %w", err)
		}
		result = append(result, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	return result, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(s scanner) (*storage.Exchange, error) {
	var (
		ex          storage.Exchange
		errs        string
		startedAt   int64
		completedAt int64
	)

	err := s.Scan(
		&ex.ID,
		&ex.SessionID,
		&ex.Endpoint,
		&ex.Message,
		&ex.Thought,
		&ex.Answer,
		&errs,
		&ex.Completed,
		&ex.Streaming,
		&ex.HTTPStatus,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(errs), &ex.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors of %s: %w", ex.ID, err)
	}
	if len(ex.Errors) == 0 {
		ex.Errors = nil
	}
	ex.StartedAt = fromNanos(startedAt)
	ex.CompletedAt = fromNanos(completedAt)

	return &ex, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ storage.Driver = (*Driver)(nil)
