package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/pgstore/internal/config"
	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/database/postgres"
	"github.com/joacominatel/pgstore/internal/filter"
	"github.com/joacominatel/pgstore/internal/schema"
	"github.com/joacominatel/pgstore/internal/store"
)

func hostsRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(schema.Table{
		Name:        "hosts",
		Columns:     []string{"id", "name", "type_id"},
		PrimaryKeys: schema.KeyList{"id"},
		CreateSQL:   `CREATE TABLE "hosts" ("id" INTEGER PRIMARY KEY, "name" TEXT, "type_id" JSONB)`,
	})
	require.NoError(t, err)
	return reg
}

func newConnectedService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	svc := NewService(Options{
		Registry:    hostsRegistry(t),
		WaitTimeout: 50 * time.Millisecond,
		PoolOptions: []postgres.Option{postgres.WithOpener(func(ctx context.Context, cfg postgres.Config) (database.Querier, error) {
			return mock, nil
		})},
	}, zerolog.Nop())

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT 1 FROM "hosts" LIMIT 1`)).WillReturnResult(pgxmock.NewResult("SELECT", 0))

	report, err := svc.Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())
	require.True(t, svc.IsReady())
	return svc, mock
}

func TestService_CRUDRoundTrip(t *testing.T) {
	svc, mock := newConnectedService(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX("id"), 0) AS max_id FROM "hosts"`)).
		WillReturnRows(pgxmock.NewRows([]string{"max_id"}).AddRow(int32(0)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "hosts" ("id", "name", "type_id") VALUES ($1, $2, $3) ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "type_id" = EXCLUDED."type_id"`)).
		WithArgs(int64(1), "web-1", `{"web":1}`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "hosts" WHERE "id" = $1 LIMIT 1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "type_id"}).AddRow(int32(1), "web-1", `{"web":1}`))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "hosts" SET "name" = $1 WHERE "id" = $2`)).
		WithArgs("web-2", int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "hosts" WHERE "id" = $1`)).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	id, err := svc.NextID(ctx, "hosts")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	saved := database.Row{"id": id, "name": "web-1", "type_id": map[string]any{"web": 1}}
	n, err := svc.Save(ctx, "hosts", []database.Row{saved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, map[string]any{"web": 1}, saved["type_id"])

	row, err := svc.Get(ctx, "hosts", id, store.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "web-1", row["name"])
	assert.JSONEq(t, `{"web":1}`, row["type_id"].(string))

	n, err = svc.Update(ctx, "hosts", database.Row{"id": id, "name": "web-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.Delete(ctx, "hosts", filter.Eq{Column: "id", Value: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Delete(ctx, "hosts", nil)
	assert.ErrorIs(t, err, database.ErrUnsafeDelete)

	mock.ExpectClose()
	svc.Close()
	assert.Equal(t, postgres.StateClosed, svc.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ExecuteAndDescribe(t *testing.T) {
	svc, mock := newConnectedService(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT now() AS ts`)).
		WillReturnRows(pgxmock.NewRows([]string{"ts"}).AddRow(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
	mock.ExpectQuery(`FROM information_schema.columns c`).
		WithArgs("public", "hosts").
		WillReturnRows(pgxmock.NewRows([]string{
			"column_name", "data_type", "is_nullable", "column_default", "ordinal_position", "is_primary",
		}).AddRow("id", "integer", "NO", "", int32(1), true))
	mock.ExpectQuery(`FROM pg_class`).
		WithArgs("hosts", "public").
		WillReturnRows(pgxmock.NewRows([]string{"estimate"}).AddRow(int64(12)))
	mock.ExpectQuery(`FROM information_schema.columns c`).
		WithArgs("public", "ghosts").
		WillReturnRows(pgxmock.NewRows([]string{
			"column_name", "data_type", "is_nullable", "column_default", "ordinal_position", "is_primary",
		}))

	res, err := svc.Execute(ctx, `SELECT now() AS ts`)
	require.NoError(t, err)
	assert.Equal(t, []string{"ts"}, res.Columns)

	info, err := svc.Describe(ctx, "hosts")
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.RowCount)
	require.Len(t, info.Columns, 1)
	assert.True(t, info.Columns[0].IsPrimary)

	_, err = svc.Describe(ctx, "ghosts")
	assert.ErrorIs(t, err, database.ErrSchemaMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_MissingTables(t *testing.T) {
	svc, mock := newConnectedService(t)

	mock.ExpectQuery(`table_type = 'BASE TABLE'`).
		WithArgs("public").
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow("hosts"))
	mock.ExpectQuery(`table_type = 'BASE TABLE'`).
		WithArgs("public").
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow("memberships"))

	missing, err := svc.MissingTables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)

	missing, err = svc.MissingTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hosts"}, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_ConnectFailure(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	svc := NewService(Options{
		Registry: hostsRegistry(t),
		PoolOptions: []postgres.Option{postgres.WithOpener(func(ctx context.Context, cfg postgres.Config) (database.Querier, error) {
			return nil, refused
		})},
	}, zerolog.Nop())

	_, err := svc.Connect(context.Background())
	var connErr *ErrConnection
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, refused)
	assert.False(t, svc.IsReady())
	assert.Equal(t, postgres.StateFailed, svc.State())
}

func TestService_OperationsTimeOutBeforeConnect(t *testing.T) {
	svc := NewService(Options{
		Registry:    hostsRegistry(t),
		WaitTimeout: 20 * time.Millisecond,
		Pool:        postgres.Config{PollInterval: 5 * time.Millisecond},
	}, zerolog.Nop())

	_, err := svc.Load(context.Background(), "hosts", store.LoadOptions{})
	assert.ErrorIs(t, err, database.ErrTimeout)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  hosts:
    columns: [id, type_id]
    primary_keys: id
    create_sql: CREATE TABLE "hosts" ("id" INTEGER PRIMARY KEY, "type_id" JSONB)
`), 0o600))

	cfg := &config.Config{
		Postgres:  config.Postgres{Host: "localhost", Port: 5432, Database: "inventory", User: "svc", MaxConns: 1},
		Registry:  path,
		TypeScope: config.TypeScope{Table: "hosts", Column: "type_id"},
		Log:       config.Log{Format: "console"},
	}
	svc, err := NewFromConfig(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"hosts"}, svc.Registry().Names())
	assert.Equal(t, "svc@localhost:5432/inventory", svc.Target())
	assert.NotEmpty(t, svc.Session())

	cfg.Registry = filepath.Join(dir, "missing.yaml")
	_, err = NewFromConfig(cfg, zerolog.Nop())
	var cfgErr *ErrConfig
	assert.ErrorAs(t, err, &cfgErr)

	cfg.Registry = ""
	_, err = NewFromConfig(cfg, zerolog.Nop())
	assert.ErrorAs(t, err, &cfgErr)
}

func TestService_SignalClosesPool(t *testing.T) {
	svc, mock := newConnectedService(t)
	mock.ExpectClose()

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	ch <- syscall.SIGTERM
	svc.watch(ctx, ch, cancel)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, svc.IsReady())
	assert.Equal(t, postgres.StateClosed, svc.State())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_WatchStopsWithContext(t *testing.T) {
	svc, mock := newConnectedService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.watch(ctx, make(chan os.Signal), func() {})

	assert.True(t, svc.IsReady())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSignals_CancelStopsListening(t *testing.T) {
	svc := NewService(Options{Registry: hostsRegistry(t)}, zerolog.Nop())

	ctx, cancel := svc.HandleSignals(context.Background(), syscall.SIGUSR1)
	cancel()
	<-ctx.Done()
	assert.Equal(t, postgres.StateUninitialized, svc.State())
}
