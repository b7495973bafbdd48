package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
)

// NextID returns one more than the largest value of the table's first
// primary-key column, or 1 when the table is empty.
func (s *Store) NextID(ctx context.Context, table string) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}

	sql := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) AS max_id FROM %s", filter.Ident(t.PrimaryKeys[0]), filter.Ident(t.Name))
	res, err := s.exec.Query(ctx, sql)
	if err != nil {
		return 0, err
	}
	highest, ok := toInt64(res.First()["max_id"])
	if !ok {
		return 0, &database.Error{Kind: database.KindQueryFailed, Table: t.Name, Column: t.PrimaryKeys[0], Message: "primary key is not an integer"}
	}
	return highest + 1, nil
}

// SkippedRow is a row the fallback scan could not decode.
type SkippedRow struct {
	Index int
	Err   error
}

// Allocation is the outcome of NextTypeID.
type Allocation struct {
	Next int64

	// Fallback is the error of the aggregate query when the row scan had to
	// be used instead.
	Fallback error

	// Skipped lists the rows ignored by the row scan.
	Skipped []SkippedRow
}

// NextTypeID returns one more than the largest integer stored under
// category in the JSON counter column of the type scope, or 1 when none is
// stored. When the aggregate query fails every row is loaded and scanned
// instead.
func (s *Store) NextTypeID(ctx context.Context, category string) (Allocation, error) {
	if category == "" {
		return Allocation{}, database.Errorf(database.KindInvalidArgument, "category is empty")
	}
	t, err := s.table(s.TypeScope.Table)
	if err != nil {
		return Allocation{}, err
	}
	col := s.TypeScope.Column
	if err := checkColumns(t, []string{col}); err != nil {
		return Allocation{}, err
	}

	q := filter.Ident(col)
	sql := fmt.Sprintf("SELECT COALESCE(MAX((%s->>$1)::int), 0) AS max_id FROM %s WHERE %s ? $1", q, filter.Ident(t.Name), q)
	res, err := s.exec.Query(ctx, sql, category)
	if err == nil {
		if highest, ok := toInt64(res.First()["max_id"]); ok {
			return Allocation{Next: highest + 1}, nil
		}
		err = &database.Error{Kind: database.KindQueryFailed, Table: t.Name, Column: col, Message: "aggregate did not return an integer"}
	}

	s.log.Warn().Err(err).
		Str("table", t.Name).
		Str("column", col).
		Str("category", category).
		Msg("type id aggregate failed, scanning rows")

	alloc, scanErr := s.scanTypeIDs(ctx, t.Name, col, category)
	if scanErr != nil {
		return Allocation{}, fmt.Errorf("type id fallback after %v: %w", err, scanErr)
	}
	alloc.Fallback = err
	return alloc, nil
}

func (s *Store) scanTypeIDs(ctx context.Context, table, col, category string) (Allocation, error) {
	loaded, err := s.Load(ctx, table, LoadOptions{Columns: []string{col}})
	if err != nil {
		return Allocation{}, err
	}

	var (
		highest int64
		skipped []SkippedRow
	)
	for i, row := range loaded.Rows {
		counters, err := decodeCounters(row[col])
		if err != nil {
			skipped = append(skipped, SkippedRow{Index: i, Err: err})
			continue
		}
		raw, ok := counters[category]
		if !ok || raw == nil {
			continue
		}
		n, ok := toInt64(raw)
		if !ok {
			skipped = append(skipped, SkippedRow{Index: i, Err: fmt.Errorf("%s is not an integer: %v", category, raw)})
			continue
		}
		highest = max(highest, n)
	}

	if len(skipped) > 0 {
		s.log.Warn().
			Str("table", table).
			Str("column", col).
			Int("skipped", len(skipped)).
			Msg("type id scan skipped undecodable rows")
	}
	return Allocation{Next: highest + 1, Skipped: skipped}, nil
}

// decodeCounters reads a JSON object column as returned by the driver.
func decodeCounters(v any) (map[string]any, error) {
	var data []byte
	switch c := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return c, nil
	case string:
		data = []byte(c)
	case []byte:
		data = c
	default:
		return nil, fmt.Errorf("unexpected counter value of type %T", v)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
