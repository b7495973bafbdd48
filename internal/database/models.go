package database

import "time"

// Row maps column names to the values the driver decoded for them.
type Row map[string]any

// Column represents a table column with its metadata.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"nullable"`
	IsPrimary  bool   `json:"primary"`
	Default    string `json:"default,omitempty"`
	OrdinalPos int    `json:"ordinal"`
}

// Result holds the outcome of a statement run through the executor.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
	Duration     time.Duration
}

// First returns the first row, or nil when the result is empty.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}
