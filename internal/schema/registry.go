package schema

import (
	"fmt"
	"slices"
)

// FallbackType is used for a back-filled column whose type cannot be found
// in the table's CREATE statement.
const FallbackType = "TEXT"

// Table declares one table: its columns, primary key and creation DDL.
type Table struct {
	Name        string   `yaml:"-"`
	Columns     []string `yaml:"columns"`
	PrimaryKeys KeyList  `yaml:"primary_keys"`
	CreateSQL   string   `yaml:"create_sql"`
}

// HasColumn reports whether col is declared on the table.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// IsKey reports whether col is part of the primary key.
func (t *Table) IsKey(col string) bool {
	return slices.Contains(t.PrimaryKeys, col)
}

// ColumnType returns the type clause declared for col in CreateSQL,
// or FallbackType when the statement does not define it.
func (t *Table) ColumnType(col string) string {
	if typ, ok := ExtractColumnType(t.CreateSQL, col); ok {
		return typ
	}
	return FallbackType
}

func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table without a name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns declared", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c == "" {
			return fmt.Errorf("table %s: empty column name", t.Name)
		}
		if seen[c] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c)
		}
		seen[c] = true
	}
	for _, k := range t.PrimaryKeys {
		if !seen[k] {
			return fmt.Errorf("table %s: primary key %q is not a declared column", t.Name, k)
		}
	}
	if t.CreateSQL == "" {
		return fmt.Errorf("table %s: create_sql is empty", t.Name)
	}
	if len(t.PrimaryKeys) == 0 {
		return fmt.Errorf("table %s: no primary key declared", t.Name)
	}
	return nil
}

// Registry is the immutable set of declared tables.
// It preserves declaration order, which is also creation order.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry validates tables and builds a registry from them.
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for i := range tables {
		t := tables[i]
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.tables[t.Name]; dup {
			return nil, fmt.Errorf("table %s declared twice", t.Name)
		}
		t.Columns = slices.Clone(t.Columns)
		t.PrimaryKeys = slices.Clone(t.PrimaryKeys)
		r.tables[t.Name] = &t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Table looks up a table by name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Names returns the table names in declaration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of declared tables.
func (r *Registry) Len() int {
	return len(r.order)
}
