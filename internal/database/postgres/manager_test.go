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

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock
}

func mockOpener(mock pgxmock.PgxPoolIface) Option {
	return WithOpener(func(ctx context.Context, cfg Config) (database.Querier, error) {
		return mock, nil
	})
}

func probeSQL(table string) string {
	return regexp.QuoteMeta(`SELECT 1 FROM "` + table + `" LIMIT 1`)
}

func TestManager_InitializeWarmsUpTables(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing()
	mock.ExpectExec(probeSQL("hosts")).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(probeSQL("ghosts")).WillReturnError(errors.New(`relation "ghosts" does not exist`))
	mock.ExpectExec(probeSQL("memberships")).WillReturnResult(pgxmock.NewResult("SELECT", 0))

	m := NewManager(Config{Tables: []string{"hosts", "ghosts", "memberships"}}, zerolog.Nop(), mockOpener(mock))
	assert.Equal(t, StateUninitialized, m.State())

	report, err := m.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, m.Ready())
	assert.Len(t, report.Probes, 3)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "ghosts", failed[0].Table)
	assert.ErrorContains(t, failed[0].Err, "does not exist")

	// Already available: no new round-trips.
	again, err := m.Initialize(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ConnectedLogNamesTargetAndSession(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing()

	var logs bytes.Buffer
	m := NewManager(Config{Target: "svc@db.internal:5432/inventory"}, zerolog.New(&logs), mockOpener(mock))
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "svc@db.internal:5432/inventory", m.Target())
	assert.Contains(t, logs.String(), `"message":"postgres connected"`)
	assert.Contains(t, logs.String(), `"target":"svc@db.internal:5432/inventory"`)
	assert.Contains(t, logs.String(), `"session":"`+m.Session()+`"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_InitializeOpenFailure(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop(), WithOpener(func(ctx context.Context, cfg Config) (database.Querier, error) {
		return nil, errors.New("dial tcp: connection refused")
	}))

	_, err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, m.State())
	assert.False(t, m.Ready())

	_, err = m.Pool()
	assert.ErrorIs(t, err, database.ErrNotInitialized)
}

func TestManager_InitializePingFailureClosesPool(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing().WillReturnError(errors.New("password authentication failed"))
	mock.ExpectClose()

	m := NewManager(Config{Tables: []string{"hosts"}}, zerolog.Nop(), mockOpener(mock))
	_, err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
	assert.Equal(t, StateFailed, m.State())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_WaitForAvailabilityTimesOut(t *testing.T) {
	m := NewManager(Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	err := m.WaitForAvailability(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, database.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestManager_WaitForAvailabilityHonorsContext(t *testing.T) {
	m := NewManager(Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.WaitForAvailability(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_WaitForAvailabilityResolves(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing()

	m := NewManager(Config{PollInterval: 5 * time.Millisecond}, zerolog.Nop(), mockOpener(mock))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = m.Initialize(context.Background())
	}()

	require.NoError(t, m.WaitForAvailability(context.Background(), 2*time.Second))
	assert.True(t, m.Ready())

	// Fast path once available.
	require.NoError(t, m.WaitForAvailability(context.Background(), 0))
}

func TestManager_ShutdownIsIdempotent(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing()
	mock.ExpectClose()

	m := NewManager(Config{}, zerolog.Nop(), mockOpener(mock))
	_, err := m.Initialize(context.Background())
	require.NoError(t, err)

	pool, err := m.Pool()
	require.NoError(t, err)
	assert.NotNil(t, pool)

	m.Shutdown()
	m.Shutdown()

	assert.Equal(t, StateClosed, m.State())
	assert.False(t, m.Ready())
	_, err = m.Pool()
	assert.ErrorIs(t, err, database.ErrNotInitialized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_ShutdownBeforeInitialize(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop())
	m.Shutdown()
	assert.Equal(t, StateUninitialized, m.State())
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop())
	assert.Equal(t, int32(1), m.cfg.MaxConns)
	assert.Equal(t, DefaultPollInterval, m.cfg.PollInterval)
	assert.NotEmpty(t, m.Session())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "available", StateAvailable.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
