package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/joacominatel/pgstore/internal/database"
)

const (
	// DefaultWaitTimeout bounds the availability wait before each statement.
	DefaultWaitTimeout = 10 * time.Second

	// DefaultSlowQuery is the duration above which a statement is logged as slow.
	DefaultSlowQuery = 5 * time.Second

	slowPreviewLen   = 200
	failedPreviewLen = 120
)

// Gate is what the executor needs from the pool manager.
type Gate interface {
	WaitForAvailability(ctx context.Context, timeout time.Duration) error
	Pool() (database.Querier, error)
}

// Executor runs every statement issued by the data layer. It waits for the
// pool, times the statement, logs slow and failed statements and wraps
// driver failures as QueryFailed errors.
type Executor struct {
	gate Gate
	log  zerolog.Logger

	// WaitTimeout bounds the availability wait.
	WaitTimeout time.Duration

	// SlowQuery is the slow-statement threshold.
	SlowQuery time.Duration

	now func() time.Time
}

// NewExecutor creates an Executor with the default timeouts.
func NewExecutor(gate Gate, log zerolog.Logger) *Executor {
	return &Executor{
		gate:        gate,
		log:         log.With().Str("component", "executor").Logger(),
		WaitTimeout: DefaultWaitTimeout,
		SlowQuery:   DefaultSlowQuery,
		now:         time.Now,
	}
}

// Query runs sql and collects every returned row.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) (*database.Result, error) {
	var result *database.Result
	err := e.run(ctx, sql, func(pool database.Querier) error {
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}

		fields := rows.FieldDescriptions()
		columns := make([]string, len(fields))
		for i, f := range fields {
			columns[i] = f.Name
		}

		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return err
		}
		out := make([]database.Row, len(maps))
		for i, m := range maps {
			out[i] = m
		}
		result = &database.Result{
			Columns:      columns,
			Rows:         out,
			RowsAffected: rows.CommandTag().RowsAffected(),
		}
		return nil
	}, func(d time.Duration) {
		if result != nil {
			result.Duration = d
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Exec runs sql and returns the number of affected rows.
func (e *Executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := e.run(ctx, sql, func(pool database.Querier) error {
		tag, err := pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	}, nil)
	return affected, err
}

func (e *Executor) run(ctx context.Context, sql string, fn func(database.Querier) error, done func(time.Duration)) error {
	if err := e.gate.WaitForAvailability(ctx, e.WaitTimeout); err != nil {
		return err
	}
	pool, err := e.gate.Pool()
	if err != nil {
		return err
	}

	start := e.now()
	err = fn(pool)
	elapsed := e.now().Sub(start)

	if err != nil {
		preview := database.Preview(sql, failedPreviewLen)
		e.log.Error().Err(err).Str("sql", preview).Dur("duration", elapsed).Msg("query failed")
		return &database.Error{
			Kind:      database.KindQueryFailed,
			Message:   "query failed",
			Statement: preview,
			Cause:     err,
		}
	}
	if elapsed > e.SlowQuery {
		e.log.Warn().
			Str("sql", database.Preview(sql, slowPreviewLen)).
			Dur("duration", elapsed).
			Msg("slow query")
	}
	if done != nil {
		done(elapsed)
	}
	return nil
}
