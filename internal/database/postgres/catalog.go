package postgres

import (
	"context"
	"fmt"

	"github.com/joacominatel/pgstore/internal/database"
)

// DefaultSchema is the PostgreSQL schema the registry's tables live in.
const DefaultSchema = "public"

// Catalog answers metadata questions through the executor.
type Catalog struct {
	exec   database.Executor
	schema string
}

// NewCatalog creates a Catalog for a schema ("" means DefaultSchema).
func NewCatalog(exec database.Executor, schema string) *Catalog {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Catalog{exec: exec, schema: schema}
}

// Schema returns the schema this catalog inspects.
func (c *Catalog) Schema() string {
	return c.schema
}

// TableExists reports whether a base table or view named table exists.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	res, err := c.exec.Query(ctx, queryTableExists, c.schema, table)
	if err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}
	exists, _ := res.First()["exists"].(bool)
	return exists, nil
}

// LiveColumns returns, for each of the given tables that exists, the set of
// its column names, fetched in a single round-trip.
func (c *Catalog) LiveColumns(ctx context.Context, tables []string) (map[string]map[string]bool, error) {
	res, err := c.exec.Query(ctx, queryLiveColumns, c.schema, tables)
	if err != nil {
		return nil, fmt.Errorf("live columns: %w", err)
	}
	out := make(map[string]map[string]bool)
	for _, row := range res.Rows {
		table, _ := row["table_name"].(string)
		col, _ := row["column_name"].(string)
		if out[table] == nil {
			out[table] = make(map[string]bool)
		}
		out[table][col] = true
	}
	return out, nil
}

// ListTables returns all base table names in the schema.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	res, err := c.exec.Query(ctx, queryListTables, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		name, _ := row["table_name"].(string)
		tables = append(tables, name)
	}
	return tables, nil
}

// GetColumns returns column metadata for a table.
func (c *Catalog) GetColumns(ctx context.Context, table string) ([]database.Column, error) {
	res, err := c.exec.Query(ctx, queryGetColumns, c.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	columns := make([]database.Column, 0, len(res.Rows))
	for _, row := range res.Rows {
		var col database.Column
		col.Name, _ = row["column_name"].(string)
		col.DataType, _ = row["data_type"].(string)
		nullable, _ := row["is_nullable"].(string)
		col.IsNullable = nullable == "YES"
		col.Default, _ = row["column_default"].(string)
		col.OrdinalPos = int(toInt64(row["ordinal_position"]))
		col.IsPrimary, _ = row["is_primary"].(bool)
		columns = append(columns, col)
	}
	return columns, nil
}

// GetTableRowCount returns the approximate row count from pg_class statistics.
func (c *Catalog) GetTableRowCount(ctx context.Context, table string) (int64, error) {
	res, err := c.exec.Query(ctx, queryTableRowCount, table, c.schema)
	if err != nil {
		return 0, fmt.Errorf("row count: %w", err)
	}
	count := toInt64(res.First()["estimate"])
	if count < 0 {
		count = 0
	}
	return count, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
