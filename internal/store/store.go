// Package store implements reads, batched upserts, updates, deletes and id
// allocation over the tables of a schema registry. Every statement goes
// through a database.Executor.
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
	"github.com/joacominatel/pgstore/internal/schema"
)

// DefaultBatchSize is the maximum number of rows per INSERT.
const DefaultBatchSize = 500

// TypeScope names the table and JSON column holding per-category counters.
type TypeScope struct {
	Table  string
	Column string
}

// DefaultTypeScope is the hosts.type_id counter column.
var DefaultTypeScope = TypeScope{Table: "hosts", Column: "type_id"}

// Store is the CRUD engine.
type Store struct {
	exec     database.Executor
	registry *schema.Registry
	log      zerolog.Logger

	// BatchSize caps the rows per INSERT statement.
	BatchSize int

	// TypeScope is where NextTypeID looks for counters.
	TypeScope TypeScope
}

// New creates a Store.
func New(exec database.Executor, registry *schema.Registry, log zerolog.Logger) *Store {
	return &Store{
		exec:      exec,
		registry:  registry,
		log:       log.With().Str("component", "store").Logger(),
		BatchSize: DefaultBatchSize,
		TypeScope: DefaultTypeScope,
	}
}

// LoadOptions shapes a Load.
type LoadOptions struct {
	// ID selects one row by primary key. With a composite key it must be a
	// map holding every key column. Pagination and counting are ignored.
	ID any

	// Where filters the rows.
	Where filter.Expr

	// PrimaryKey overrides the table's declared key for ID lookups.
	PrimaryKey []string

	// CaseInsensitive compares strings and LIKE patterns through LOWER().
	CaseInsensitive bool

	// Limit caps the rows returned; 0 means no limit.
	Limit  int
	Offset int

	// Columns projects the result; empty means every column.
	Columns []string

	// SortBy orders the rows; SortOrder is ASC (default) or DESC.
	SortBy    string
	SortOrder string

	// WithCount also counts every row matching the filter.
	WithCount bool
}

// LoadResult is the outcome of a Load.
type LoadResult struct {
	Rows []database.Row

	// Total is set when WithCount was requested (and no ID was given).
	Total *int64
}

// Load reads rows from table.
func (s *Store) Load(ctx context.Context, table string, opts LoadOptions) (*LoadResult, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	b, err := s.conditions(t, opts)
	if err != nil {
		return nil, err
	}

	projection := "*"
	if len(opts.Columns) > 0 {
		if err := checkColumns(t, opts.Columns); err != nil {
			return nil, err
		}
		projection = quoteList(opts.Columns)
	}

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT %s FROM %s%s", projection, filter.Ident(t.Name), b.Where())

	if opts.SortBy != "" {
		if !t.HasColumn(opts.SortBy) {
			return nil, &database.Error{Kind: database.KindInvalidArgument, Table: t.Name, Column: opts.SortBy, Message: "sort column is not declared"}
		}
		order, err := sortOrder(opts.SortOrder)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&q, " ORDER BY %s %s", filter.Ident(opts.SortBy), order)
	}

	single := opts.ID != nil
	if single {
		q.WriteString(" LIMIT 1")
	} else {
		if opts.Limit < 0 || opts.Offset < 0 {
			return nil, database.Errorf(database.KindInvalidArgument, "limit and offset must not be negative")
		}
		limit := "ALL"
		if opts.Limit > 0 {
			limit = strconv.Itoa(opts.Limit)
		}
		fmt.Fprintf(&q, " LIMIT %s OFFSET %d", limit, opts.Offset)
	}

	res, err := s.exec.Query(ctx, q.String(), b.Args()...)
	if err != nil {
		return nil, err
	}

	out := &LoadResult{Rows: res.Rows}
	if single {
		if len(out.Rows) > 1 {
			out.Rows = out.Rows[:1]
		}
		return out, nil
	}
	if !opts.WithCount {
		return out, nil
	}

	countRes, err := s.exec.Query(ctx,
		fmt.Sprintf("SELECT COUNT(*) AS count FROM %s%s", filter.Ident(t.Name), b.Where()),
		b.Args()...)
	if err != nil {
		return nil, err
	}
	total, _ := toInt64(countRes.First()["count"])
	out.Total = &total
	return out, nil
}

// Get returns the row of table whose primary key is id, or nil when no such
// row exists.
func (s *Store) Get(ctx context.Context, table string, id any, opts LoadOptions) (database.Row, error) {
	if id == nil {
		return nil, &database.Error{Kind: database.KindMissingKey, Table: table, Message: "primary key value is nil"}
	}
	opts.ID = id
	res, err := s.Load(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return res.Rows[0], nil
}

// conditions compiles the ID lookup and the filter of opts.
func (s *Store) conditions(t *schema.Table, opts LoadOptions) (*filter.Builder, error) {
	b := filter.NewBuilder(opts.CaseInsensitive)

	if opts.ID != nil {
		keys := opts.PrimaryKey
		if len(keys) == 0 {
			keys = t.PrimaryKeys
		}
		if err := checkColumns(t, keys); err != nil {
			return nil, err
		}
		key, err := filter.KeyLookup(keys, opts.ID)
		if err != nil {
			return nil, withTable(err, t.Name)
		}
		if err := b.Add(key); err != nil {
			return nil, err
		}
	}

	if opts.Where != nil {
		if err := checkColumns(t, filter.Columns(opts.Where)); err != nil {
			return nil, err
		}
		if err := b.Add(opts.Where); err != nil {
			return nil, withTable(err, t.Name)
		}
	}
	return b, nil
}

func (s *Store) table(name string) (*schema.Table, error) {
	t, ok := s.registry.Table(name)
	if !ok {
		return nil, database.SchemaMissing(name)
	}
	return t, nil
}

func sortOrder(order string) (string, error) {
	if order == "" {
		return "ASC", nil
	}
	o := strings.ToUpper(order)
	if o != "ASC" && o != "DESC" {
		return "", database.Errorf(database.KindInvalidArgument, "invalid sort order: %s", order)
	}
	return o, nil
}

func checkColumns(t *schema.Table, cols []string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return &database.Error{Kind: database.KindInvalidArgument, Table: t.Name, Column: c, Message: "column is not declared"}
		}
	}
	return nil
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = filter.Ident(c)
	}
	return strings.Join(quoted, ", ")
}

// withTable fills in the table of a data-layer error that lacks one.
func withTable(err error, table string) error {
	if e, ok := err.(*database.Error); ok && e.Table == "" {
		cp := *e
		cp.Table = table
		return &cp
	}
	return err
}
