package store

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalize converts a value to the form written to the store. Objects,
// arrays and slices (except []byte) become their JSON text; scalars, times
// and driver.Valuer implementations pass through. v itself is never
// modified.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, []byte, time.Time, driver.Valuer:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// toInt64 reads an integer from a driver-decoded or JSON-decoded value.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case pgtype.Numeric:
		i, err := n.Int64Value()
		return i.Int64, err == nil && i.Valid
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
