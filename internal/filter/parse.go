package filter

import (
	"reflect"
	"sort"

	"github.com/joacominatel/pgstore/internal/database"
)

// Keys recognized in the map form of a filter.
const (
	KeyOr    = "$or"
	KeyAnyOf = "anyOf"
	OpLike   = "$like"
)

var compareOps = map[string]Op{
	"$lt":  Lt,
	"$lte": Lte,
	"$gt":  Gt,
	"$gte": Gte,
}

// FromMap decodes the map form of a filter:
//
//	{"status": "active", "name": {"$like": "web"}, "cpu": {"$gte": 2, "$lt": 8},
//	 "$or": [{"region": "us"}, {"region": "eu"}]}
//
// Sibling keys are ANDed in sorted column order; the $or (or anyOf) groups
// follow them. Unknown operator keys and unsupported values are rejected.
func FromMap(where map[string]any) (Expr, error) {
	cols := make([]string, 0, len(where))
	var groups any
	hasGroups := false
	for k, v := range where {
		if k == KeyOr || k == KeyAnyOf {
			if hasGroups {
				return nil, database.Errorf(database.KindInvalidArgument, "both %s and %s given", KeyOr, KeyAnyOf)
			}
			groups, hasGroups = v, true
			continue
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	out := make(And, 0, len(cols)+1)
	for _, col := range cols {
		e, err := columnExpr(col, where[col])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if hasGroups {
		or, err := anyOfExpr(groups)
		if err != nil {
			return nil, err
		}
		out = append(out, or)
	}
	return out, nil
}

func anyOfExpr(v any) (Expr, error) {
	var raw []map[string]any
	switch g := v.(type) {
	case []map[string]any:
		raw = g
	case []any:
		for i, item := range g {
			m, ok := asMap(item)
			if !ok {
				return nil, database.Errorf(database.KindInvalidArgument, "%s group %d is %T, want an object", KeyOr, i, item)
			}
			raw = append(raw, m)
		}
	default:
		return nil, database.Errorf(database.KindInvalidArgument, "%s must be a list of objects, got %T", KeyOr, v)
	}

	out := make(AnyOf, 0, len(raw))
	for _, m := range raw {
		e, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func columnExpr(col string, v any) (Expr, error) {
	if col == "" {
		return nil, database.Errorf(database.KindInvalidArgument, "filter on empty column name")
	}
	ops, isObject := asMap(v)
	if !isObject {
		if !isScalar(v) {
			return nil, &database.Error{Kind: database.KindInvalidArgument, Column: col, Message: "unsupported filter value of type " + reflect.TypeOf(v).String()}
		}
		return Eq{Column: col, Value: v}, nil
	}
	if len(ops) == 0 {
		return nil, &database.Error{Kind: database.KindInvalidArgument, Column: col, Message: "empty operator object"}
	}

	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(And, 0, len(names))
	for _, name := range names {
		operand := ops[name]
		if name == OpLike {
			s, ok := operand.(string)
			if !ok {
				return nil, &database.Error{Kind: database.KindInvalidArgument, Column: col, Message: OpLike + " needs a string"}
			}
			out = append(out, Like{Column: col, Pattern: s})
			continue
		}
		op, ok := compareOps[name]
		if !ok {
			return nil, &database.Error{Kind: database.KindInvalidArgument, Column: col, Message: "unknown operator " + name}
		}
		if operand == nil || !isScalar(operand) {
			return nil, &database.Error{Kind: database.KindInvalidArgument, Column: col, Message: name + " needs a scalar operand"}
		}
		out = append(out, Compare{Column: col, Op: op, Value: operand})
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

// isScalar reports whether v can be bound as a single parameter.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case []byte:
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Func, reflect.Chan:
		return false
	}
	return true
}
