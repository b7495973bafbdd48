package cli

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/joacominatel/pgstore/internal/database"
	"github.com/joacominatel/pgstore/internal/filter"
)

// readJSON decodes s, or stdin when s is "-". Integral numbers decode to
// int64, other numbers to float64.
func readJSON(s string, stdin io.Reader) (any, error) {
	data := []byte(s)
	if s == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return plainNumbers(v), nil
}

func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = plainNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = plainNumbers(e)
		}
		return x
	default:
		return v
	}
}

// readRows accepts one JSON object or an array of objects.
func readRows(s string, stdin io.Reader) ([]database.Row, error) {
	v, err := readJSON(s, stdin)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case map[string]any:
		return []database.Row{x}, nil
	case []any:
		rows := make([]database.Row, len(x))
		for i, e := range x {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d is not an object", i)
			}
			rows[i] = m
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("data must be an object or an array of objects")
	}
}

// readWhere parses a JSON condition object; "" means no filter.
func readWhere(s string, stdin io.Reader) (filter.Expr, error) {
	if s == "" {
		return nil, nil
	}
	v, err := readJSON(s, stdin)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("where must be a JSON object")
	}
	return filter.FromMap(m)
}

// parseID reads a primary-key value: a JSON object for composite keys,
// otherwise a scalar.
func parseID(s string) (any, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		return readJSON(s, nil)
	}
	return parseScalar(s), nil
}

// parseScalar turns a command-line word into an int64, float64, bool or
// nil ("null") where it reads as one, else keeps the string.
func parseScalar(s string) any {
	if s == "null" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.ContainsAny(s, "0123456789") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
