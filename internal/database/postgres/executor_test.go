package postgres

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/pgstore/internal/database"
)

// fakeGate is an always-open (or always-failing) availability gate.
type fakeGate struct {
	pool    database.Querier
	waitErr error
	waits   int
}

func (g *fakeGate) WaitForAvailability(ctx context.Context, timeout time.Duration) error {
	g.waits++
	return g.waitErr
}

func (g *fakeGate) Pool() (database.Querier, error) {
	if g.pool == nil {
		return nil, &database.Error{Kind: database.KindNotInitialized, Message: "pool not initialized"}
	}
	return g.pool, nil
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestExecutor_QueryCollectsRows(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "hosts" WHERE "id" = $1`)).
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "web-1"))

	gate := &fakeGate{pool: mock}
	exec := NewExecutor(gate, zerolog.Nop())

	res, err := exec.Query(context.Background(), `SELECT * FROM "hosts" WHERE "id" = $1`, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, database.Row{"id": int64(5), "name": "web-1"}, res.Rows[0])
	assert.Equal(t, 1, gate.waits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_ExecReturnsAffected(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "hosts" SET "name" = $1 WHERE "id" = $2`)).
		WithArgs("web-2", 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	exec := NewExecutor(&fakeGate{pool: mock}, zerolog.Nop())
	n, err := exec.Exec(context.Background(), `UPDATE "hosts" SET "name" = $1 WHERE "id" = $2`, "web-2", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_FailureIsWrappedAndLogged(t *testing.T) {
	mock := newMockPool(t)
	cause := errors.New(`duplicate key value violates unique constraint "hosts_pkey"`)
	mock.ExpectExec(`INSERT INTO`).WithArgs(1).WillReturnError(cause)

	var logs bytes.Buffer
	exec := NewExecutor(&fakeGate{pool: mock}, zerolog.New(&logs))

	_, err := exec.Exec(context.Background(), `INSERT INTO "hosts" ("id") VALUES ($1)`, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrQueryFailed)
	assert.ErrorIs(t, err, cause)

	var dbErr *database.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, `INSERT INTO "hosts" ("id") VALUES ($1)`, dbErr.Statement)
	assert.Contains(t, logs.String(), "query failed")
}

func TestExecutor_StatementPreviewIsTruncated(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`SELECT`).WillReturnError(errors.New("boom"))

	exec := NewExecutor(&fakeGate{pool: mock}, zerolog.Nop())
	long := "SELECT " + string(bytes.Repeat([]byte("x"), 300))
	_, err := exec.Exec(context.Background(), long)

	var dbErr *database.Error
	require.ErrorAs(t, err, &dbErr)
	assert.Len(t, dbErr.Statement, failedPreviewLen+3)
}

func TestExecutor_LogsSlowQueries(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`SELECT pg_sleep`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	var logs bytes.Buffer
	exec := NewExecutor(&fakeGate{pool: mock}, zerolog.New(&logs))

	exec.now = steppingClock(6 * time.Second)
	_, err := exec.Exec(context.Background(), `SELECT pg_sleep(6)`)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "slow query")
	assert.Contains(t, logs.String(), "pg_sleep(6)")

	logs.Reset()
	exec.now = steppingClock(time.Millisecond)
	_, err = exec.Exec(context.Background(), `SELECT 1`)
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "slow query")
}

func TestExecutor_GateErrorsStopBeforeThePool(t *testing.T) {
	timeout := &database.Error{Kind: database.KindTimeout, Message: "timed out"}
	exec := NewExecutor(&fakeGate{waitErr: timeout}, zerolog.Nop())

	_, err := exec.Query(context.Background(), `SELECT 1`)
	assert.ErrorIs(t, err, database.ErrTimeout)
}

func TestExecutor_NotInitialized(t *testing.T) {
	exec := NewExecutor(&fakeGate{}, zerolog.Nop())

	_, err := exec.Exec(context.Background(), `SELECT 1`)
	assert.ErrorIs(t, err, database.ErrNotInitialized)
}

func TestExecutor_ThroughManagerTimesOut(t *testing.T) {
	m := NewManager(Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop())
	exec := NewExecutor(m, zerolog.Nop())
	exec.WaitTimeout = 20 * time.Millisecond

	_, err := exec.Query(context.Background(), `SELECT 1`)
	assert.ErrorIs(t, err, database.ErrTimeout)
}
