package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the slice of *pgxpool.Pool the executor and pool manager rely on.
// All implementations must be safe for concurrent use.
type Querier interface {
	// Exec runs a statement that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Query runs a statement and returns its rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// Ping acquires a connection, checks it and releases it.
	Ping(ctx context.Context) error

	// Close closes every connection held by the pool.
	Close()
}

// Executor is the single path through which SQL reaches the store.
type Executor interface {
	// Query runs a statement and collects its rows.
	Query(ctx context.Context, sql string, args ...any) (*Result, error)

	// Exec runs a statement and reports the number of rows it affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}
