package app

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/joacominatel/pgstore/internal/config"
	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/database/postgres"
	"github.com/joacominatel/pgstore/internal/filter"
	"github.com/joacominatel/pgstore/internal/reconcile"
	"github.com/joacominatel/pgstore/internal/schema"
	"github.com/joacominatel/pgstore/internal/store"
)

// TableInfo describes a live table.
type TableInfo struct {
	Name     string            `json:"name"`
	Columns  []database.Column `json:"columns"`
	RowCount int64             `json:"row_count"`
}

// Options wires a Service.
type Options struct {
	Registry *schema.Registry
	Pool     postgres.Config

	// Schema is the PostgreSQL schema inspected by the catalog.
	Schema string

	WaitTimeout time.Duration
	SlowQuery   time.Duration
	TypeScope   store.TypeScope

	PoolOptions []postgres.Option
}

// Service owns the connection pool and coordinates the data layer over it.
type Service struct {
	manager    *postgres.Manager
	exec       *postgres.Executor
	catalog    *postgres.Catalog
	store      *store.Store
	reconciler *reconcile.Reconciler
	registry   *schema.Registry
	log        zerolog.Logger
}

// NewService creates a Service. Nothing is opened until Connect.
func NewService(opts Options, log zerolog.Logger) *Service {
	pool := opts.Pool
	if len(pool.Tables) == 0 {
		pool.Tables = opts.Registry.Names()
	}

	manager := postgres.NewManager(pool, log, opts.PoolOptions...)
	exec := postgres.NewExecutor(manager, log)
	if opts.WaitTimeout > 0 {
		exec.WaitTimeout = opts.WaitTimeout
	}
	if opts.SlowQuery > 0 {
		exec.SlowQuery = opts.SlowQuery
	}

	catalog := postgres.NewCatalog(exec, opts.Schema)
	st := store.New(exec, opts.Registry, log)
	if opts.TypeScope.Table != "" {
		st.TypeScope = opts.TypeScope
	}

	return &Service{
		manager:    manager,
		exec:       exec,
		catalog:    catalog,
		store:      st,
		reconciler: reconcile.New(exec, catalog, opts.Registry, log),
		registry:   opts.Registry,
		log:        log,
	}
}

// NewFromConfig loads the registry named by cfg and builds a Service from it.
func NewFromConfig(cfg *config.Config, log zerolog.Logger, poolOpts ...postgres.Option) (*Service, error) {
	if err := cfg.ResolvePassword(); err != nil {
		return nil, &ErrConfig{Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ErrConfig{Cause: err}
	}
	reg, err := schema.LoadFile(cfg.Registry)
	if err != nil {
		return nil, &ErrConfig{Cause: err}
	}

	return NewService(Options{
		Registry: reg,
		Pool: postgres.Config{
			DSN:            cfg.Postgres.DSN(),
			MaxConns:       cfg.Postgres.MaxConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
			PollInterval:   cfg.Availability.PollInterval,
			Target:         cfg.Postgres.DisplayString(),
		},
		WaitTimeout: cfg.Availability.WaitTimeout,
		SlowQuery:   cfg.SlowQuery,
		TypeScope:   store.TypeScope{Table: cfg.TypeScope.Table, Column: cfg.TypeScope.Column},
		PoolOptions: poolOpts,
	}, log), nil
}

// Connect opens the pool and warms up the registered tables.
func (s *Service) Connect(ctx context.Context) (*postgres.WarmupReport, error) {
	report, err := s.manager.Initialize(ctx)
	if err != nil {
		return nil, &ErrConnection{Cause: err}
	}
	return report, nil
}

// Close closes the pool. It is safe to call more than once.
func (s *Service) Close() {
	s.manager.Shutdown()
}

// IsReady reports whether the pool is available.
func (s *Service) IsReady() bool {
	return s.manager.Ready()
}

// State returns the pool state.
func (s *Service) State() postgres.State {
	return s.manager.State()
}

// Target returns the server summary, e.g. user@host:5432/db.
func (s *Service) Target() string {
	return s.manager.Target()
}

// Session returns the pool session id used in logs.
func (s *Service) Session() string {
	return s.manager.Session()
}

// Registry returns the declared tables.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Execute runs arbitrary SQL and returns its rows and affected count.
func (s *Service) Execute(ctx context.Context, sql string, args ...any) (*database.Result, error) {
	return s.exec.Query(ctx, sql, args...)
}

// Load reads rows from a registered table.
func (s *Service) Load(ctx context.Context, table string, opts store.LoadOptions) (*store.LoadResult, error) {
	return s.store.Load(ctx, table, opts)
}

// Get reads one row by primary key; nil when it does not exist.
func (s *Service) Get(ctx context.Context, table string, id any, opts store.LoadOptions) (database.Row, error) {
	return s.store.Get(ctx, table, id, opts)
}

// Save upserts rows.
func (s *Service) Save(ctx context.Context, table string, rows []database.Row) (int64, error) {
	return s.store.Save(ctx, table, rows)
}

// Update writes one row by primary key.
func (s *Service) Update(ctx context.Context, table string, row database.Row) (int64, error) {
	return s.store.Update(ctx, table, row)
}

// Delete removes the rows matching where.
func (s *Service) Delete(ctx context.Context, table string, where filter.Expr) (int64, error) {
	return s.store.Delete(ctx, table, where)
}

// EnsureTables creates missing tables and columns.
func (s *Service) EnsureTables(ctx context.Context) (*reconcile.Report, error) {
	return s.reconciler.Ensure(ctx)
}

// NextID allocates the next primary-key value of table.
func (s *Service) NextID(ctx context.Context, table string) (int64, error) {
	return s.store.NextID(ctx, table)
}

// NextTypeID allocates the next id within a type category.
func (s *Service) NextTypeID(ctx context.Context, category string) (store.Allocation, error) {
	return s.store.NextTypeID(ctx, category)
}

// MissingTables returns the registered tables absent from the live schema,
// in registry order.
func (s *Service) MissingTables(ctx context.Context) ([]string, error) {
	live, err := s.catalog.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range s.registry.Names() {
		if !slices.Contains(live, name) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// Describe returns the live columns and approximate row count of table.
func (s *Service) Describe(ctx context.Context, table string) (*TableInfo, error) {
	cols, err := s.catalog.GetColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("describe %s: %w", table, database.SchemaMissing(table))
	}
	count, err := s.catalog.GetTableRowCount(ctx, table)
	if err != nil {
		return nil, err
	}
	return &TableInfo{Name: table, Columns: cols, RowCount: count}, nil
}
