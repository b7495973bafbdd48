package filter

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/joacominatel/pgstore/internal/database"
)

// Builder accumulates WHERE conditions and their positional arguments.
// The zero value is ready to use with exact matching.
type Builder struct {
	// CaseInsensitive makes Eq on strings and Like compare through LOWER().
	CaseInsensitive bool

	conds []string
	args  []any
}

// NewBuilder creates a Builder.
func NewBuilder(caseInsensitive bool) *Builder {
	return &Builder{CaseInsensitive: caseInsensitive}
}

// Bind appends v to the argument list and returns its placeholder.
func (b *Builder) Bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// Add compiles e and appends it as one condition. Expressions that compile
// to nothing (empty And or AnyOf) add no condition.
func (b *Builder) Add(e Expr) error {
	frag, err := b.compile(e)
	if err != nil {
		return err
	}
	if frag != "" {
		b.conds = append(b.conds, frag)
	}
	return nil
}

// Conditions returns the compiled conditions in build order.
func (b *Builder) Conditions() []string {
	return b.conds
}

// Args returns the bound arguments; Args()[i] belongs to placeholder $(i+1).
func (b *Builder) Args() []any {
	return b.args
}

// Empty reports whether no condition has been added.
func (b *Builder) Empty() bool {
	return len(b.conds) == 0
}

// Where renders " WHERE c1 AND c2 ..." or "" when there are no conditions.
func (b *Builder) Where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *Builder) compile(e Expr) (string, error) {
	switch x := e.(type) {
	case nil:
		return "", database.Errorf(database.KindInvalidArgument, "nil filter expression")
	case Key:
		col, err := ident(x.Column)
		if err != nil {
			return "", err
		}
		return col + " = " + b.Bind(x.Value), nil
	case Eq:
		return b.compileEq(x)
	case Like:
		col, err := ident(x.Column)
		if err != nil {
			return "", err
		}
		term := "%" + strings.ReplaceAll(x.Pattern, "%", "") + "%"
		if b.CaseInsensitive {
			return "LOWER(" + col + ") LIKE LOWER(" + b.Bind(term) + ")", nil
		}
		return col + " LIKE " + b.Bind(term), nil
	case Compare:
		col, err := ident(x.Column)
		if err != nil {
			return "", err
		}
		switch x.Op {
		case Lt, Lte, Gt, Gte:
		default:
			return "", database.Errorf(database.KindInvalidArgument, "unknown comparison operator %q on %s", x.Op, x.Column)
		}
		return col + " " + string(x.Op) + " " + b.Bind(x.Value), nil
	case And:
		return b.join(x, " AND ")
	case AnyOf:
		return b.join(x, " OR ")
	default:
		return "", database.Errorf(database.KindInvalidArgument, "unsupported filter expression %T", e)
	}
}

func (b *Builder) compileEq(x Eq) (string, error) {
	col, err := ident(x.Column)
	if err != nil {
		return "", err
	}
	if x.Value == nil {
		return col + " IS NULL", nil
	}
	if s, ok := x.Value.(string); ok && b.CaseInsensitive {
		return "LOWER(" + col + ") = LOWER(" + b.Bind(s) + ")", nil
	}
	return col + " = " + b.Bind(x.Value), nil
}

// join compiles children in order; a single surviving child is returned bare.
func (b *Builder) join(children []Expr, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		frag, err := b.compile(c)
		if err != nil {
			return "", err
		}
		if frag != "" {
			parts = append(parts, frag)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		return "(" + strings.Join(parts, sep) + ")", nil
	}
}

// Ident quotes a column or table name.
func Ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func ident(name string) (string, error) {
	if name == "" {
		return "", database.Errorf(database.KindInvalidArgument, "filter on empty column name")
	}
	return Ident(name), nil
}

// KeyLookup builds the condition selecting one row by primary key. With a
// single key column id is the key value itself (a one-entry map is also
// accepted); with a composite key id must be a map holding every key column.
func KeyLookup(keys []string, id any) (Expr, error) {
	if len(keys) == 0 {
		return nil, database.Errorf(database.KindSchemaMissing, "no primary key declared")
	}
	m, isMap := asMap(id)
	if len(keys) == 1 && !isMap {
		if id == nil {
			return nil, &database.Error{Kind: database.KindMissingKey, Column: keys[0], Message: "primary key value is nil"}
		}
		return Key{Column: keys[0], Value: id}, nil
	}
	if !isMap {
		return nil, database.Errorf(database.KindMissingKey, "composite key (%s) needs a column map, got %T", strings.Join(keys, ", "), id)
	}
	out := make(And, 0, len(keys))
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			return nil, &database.Error{Kind: database.KindMissingKey, Column: k, Message: "primary key value missing"}
		}
		out = append(out, Key{Column: k, Value: v})
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case database.Row:
		return m, true
	default:
		return nil, false
	}
}
