// Package reconcile brings the live database in line with a schema
// registry: missing tables are created and missing columns are added.
// Columns are never dropped or altered.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
	"github.com/joacominatel/pgstore/internal/schema"
)

// Catalog is the metadata the reconciler needs.
type Catalog interface {
	LiveColumns(ctx context.Context, tables []string) (map[string]map[string]bool, error)
	TableExists(ctx context.Context, table string) (bool, error)
}

// ColumnOutcome is the result of adding one missing column.
type ColumnOutcome struct {
	Table  string
	Column string
	Type   string
	Err    error
}

// Report describes what Ensure changed.
type Report struct {
	// Created lists the tables created, in registry order.
	Created []string

	// Columns lists every column add that was attempted.
	Columns []ColumnOutcome
}

// ColumnsAdded counts the columns added successfully.
func (r *Report) ColumnsAdded() int {
	n := 0
	for _, c := range r.Columns {
		if c.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the column adds that failed.
func (r *Report) Failed() []ColumnOutcome {
	var out []ColumnOutcome
	for _, c := range r.Columns {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

// Changed reports whether Ensure created or attempted anything.
func (r *Report) Changed() bool {
	return len(r.Created) > 0 || len(r.Columns) > 0
}

// Reconciler applies a registry to the database.
type Reconciler struct {
	exec     database.Executor
	catalog  Catalog
	registry *schema.Registry
	log      zerolog.Logger
}

// New creates a Reconciler.
func New(exec database.Executor, catalog Catalog, registry *schema.Registry, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		exec:     exec,
		catalog:  catalog,
		registry: registry,
		log:      log.With().Str("component", "reconcile").Logger(),
	}
}

// Ensure creates every registered table that does not exist and adds the
// declared columns missing from the ones that do. A failed CREATE aborts;
// a failed column add is recorded in the report and the run continues.
func (r *Reconciler) Ensure(ctx context.Context) (*Report, error) {
	names := r.registry.Names()
	report := &Report{}
	if len(names) == 0 {
		return report, nil
	}

	live, err := r.catalog.LiveColumns(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	for _, name := range names {
		t, _ := r.registry.Table(name)

		exists, err := r.catalog.TableExists(ctx, name)
		if err != nil {
			return report, fmt.Errorf("reconcile %s: %w", name, err)
		}

		if !exists {
			if _, err := r.exec.Exec(ctx, t.CreateSQL); err != nil {
				r.log.Error().Err(err).Str("table", name).Msg("create table failed")
				return report, fmt.Errorf("create table %s: %w", name, err)
			}
			r.log.Info().Str("table", name).Msg("table created")
			report.Created = append(report.Created, name)
			continue
		}

		have := live[name]
		for _, col := range t.Columns {
			if have[col] {
				continue
			}
			report.Columns = append(report.Columns, r.addColumn(ctx, t, col))
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		r.log.Warn().
			Int("failed", len(failed)).
			Int("added", report.ColumnsAdded()).
			Msg("column reconciliation incomplete")
	}
	return report, nil
}

func (r *Reconciler) addColumn(ctx context.Context, t *schema.Table, col string) ColumnOutcome {
	typ := t.ColumnType(col)
	out := ColumnOutcome{Table: t.Name, Column: col, Type: typ}

	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", filter.Ident(t.Name), filter.Ident(col), typ)
	if _, err := r.exec.Exec(ctx, sql); err != nil {
		r.log.Error().Err(err).
			Str("table", t.Name).
			Str("column", col).
			Str("type", typ).
			Msg("add column failed")
		out.Err = err
		return out
	}

	r.log.Info().Str("table", t.Name).Str("column", col).Str("type", typ).Msg("column added")
	return out
}
