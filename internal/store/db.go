// Package store holds the Postgres repositories behind the sync pipeline.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicateKey is returned when a create races an existing dedup key.
	ErrDuplicateKey = errors.New("store: duplicate dedup key")
)

// Source is the provenance tag of a persisted record.
type Source string

const (
	SourceSheet    Source = "sheet"
	SourceEMR      Source = "emr"
	SourceInternal Source = "internal"
)
