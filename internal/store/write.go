package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
	"github.com/joacominatel/pgstore/internal/schema"
)

// Save upserts rows into table. The written columns are the declared columns
// present in at least one row; a row lacking one of them writes NULL there.
// Rows go out in batches of BatchSize, each as one INSERT ... ON CONFLICT
// (<primary key>) DO UPDATE statement; batches run in order and the first
// failure stops the rest. Without updatable columns the statement is a plain
// INSERT. Caller rows are not modified. Returns the rows affected.
func (s *Store) Save(ctx context.Context, table string, rows []database.Row) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	cols := presentColumns(t, rows)
	if len(cols) == 0 {
		return 0, nil
	}

	conflict := ""
	if updates := nonKeyColumns(t, cols); len(updates) > 0 {
		sets := make([]string, len(updates))
		for i, c := range updates {
			q := filter.Ident(c)
			sets[i] = q + " = EXCLUDED." + q
		}
		conflict = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", quoteList(t.PrimaryKeys), strings.Join(sets, ", "))
	}
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", filter.Ident(t.Name), quoteList(cols))

	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var affected int64
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batch := rows[start:end]

		b := filter.NewBuilder(false)
		tuples := make([]string, len(batch))
		for i, row := range batch {
			ph := make([]string, len(cols))
			for j, c := range cols {
				v, err := normalize(row[c])
				if err != nil {
					return affected, &database.Error{Kind: database.KindInvalidArgument, Table: t.Name, Column: c, Message: "value cannot be serialized", Cause: err}
				}
				ph[j] = b.Bind(v)
			}
			tuples[i] = "(" + strings.Join(ph, ", ") + ")"
		}

		n, err := s.exec.Exec(ctx, head+strings.Join(tuples, ", ")+conflict, b.Args()...)
		if err != nil {
			return affected, fmt.Errorf("save %s rows %d-%d: %w", t.Name, start, end-1, err)
		}
		affected += n
	}
	return affected, nil
}

// Update writes the declared non-key columns present in row to the row
// identified by its primary key. Every key column must be present and
// non-nil. With nothing to set it returns 0 without touching the store.
func (s *Store) Update(ctx context.Context, table string, row database.Row) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	for _, k := range t.PrimaryKeys {
		if v, ok := row[k]; !ok || v == nil {
			return 0, &database.Error{Kind: database.KindMissingKey, Table: t.Name, Column: k, Message: "primary key missing for update"}
		}
	}

	setCols := nonKeyColumns(t, presentColumns(t, []database.Row{row}))
	if len(setCols) == 0 {
		return 0, nil
	}

	b := filter.NewBuilder(false)
	sets := make([]string, len(setCols))
	for i, c := range setCols {
		v, err := normalize(row[c])
		if err != nil {
			return 0, &database.Error{Kind: database.KindInvalidArgument, Table: t.Name, Column: c, Message: "value cannot be serialized", Cause: err}
		}
		sets[i] = filter.Ident(c) + " = " + b.Bind(v)
	}
	for _, k := range t.PrimaryKeys {
		if err := b.Add(filter.Key{Column: k, Value: row[k]}); err != nil {
			return 0, err
		}
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s", filter.Ident(t.Name), strings.Join(sets, ", "), b.Where())
	return s.exec.Exec(ctx, sql, b.Args()...)
}

// Delete removes the rows of table matching where. A filter that compiles
// to no condition is refused with UnsafeDelete before any SQL is issued.
func (s *Store) Delete(ctx context.Context, table string, where filter.Expr) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	if where == nil {
		return 0, &database.Error{Kind: database.KindUnsafeDelete, Table: t.Name, Message: "refusing to delete without conditions"}
	}
	if err := checkColumns(t, filter.Columns(where)); err != nil {
		return 0, err
	}

	b := filter.NewBuilder(false)
	if err := b.Add(where); err != nil {
		return 0, withTable(err, t.Name)
	}
	if b.Empty() {
		return 0, &database.Error{Kind: database.KindUnsafeDelete, Table: t.Name, Message: "refusing to delete without conditions"}
	}

	return s.exec.Exec(ctx, fmt.Sprintf("DELETE FROM %s%s", filter.Ident(t.Name), b.Where()), b.Args()...)
}

// presentColumns returns the declared columns, in declaration order, that
// appear in at least one row.
func presentColumns(t *schema.Table, rows []database.Row) []string {
	var cols []string
	for _, c := range t.Columns {
		for _, row := range rows {
			if _, ok := row[c]; ok {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

func nonKeyColumns(t *schema.Table, cols []string) []string {
	var out []string
	for _, c := range cols {
		if !t.IsKey(c) {
			out = append(out, c)
		}
	}
	return out
}
