// Package filter turns structured row filters into parameterized SQL.
//
// A filter is a tree of Expr values. Leaves compare one column with one
// value; And and AnyOf combine them. The tree is sealed: only the types in
// this package implement Expr, so Builder can switch over it exhaustively.
//
// Compilation is pure. Values never appear in the SQL text; each one is
// bound to a $n placeholder whose index is its position in the argument
// list.
package filter

// Expr is a node in a filter tree.
type Expr interface {
	exprNode()
}

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	Lt  Op = "<"
	Lte Op = "<="
	Gt  Op = ">"
	Gte Op = ">="
)

// Key is an exact primary-key equality. It ignores case-insensitive mode.
type Key struct {
	Column string
	Value  any
}

// Eq matches rows whose column equals Value. A nil Value matches NULL.
type Eq struct {
	Column string
	Value  any
}

// Like matches rows whose column contains Pattern as a substring.
// Any % in Pattern is removed before it is wrapped in %...%.
type Like struct {
	Column  string
	Pattern string
}

// Compare matches rows whose column relates to Value by Op.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

// And matches rows satisfying every expression. Empty And matches everything.
type And []Expr

// AnyOf matches rows satisfying at least one group. Empty AnyOf matches
// everything.
type AnyOf []Expr

func (Key) exprNode()     {}
func (Eq) exprNode()      {}
func (Like) exprNode()    {}
func (Compare) exprNode() {}
func (And) exprNode()     {}
func (AnyOf) exprNode()   {}

// Columns lists the columns referenced by e, in first-seen order.
func Columns(e Expr) []string {
	var cols []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		var col string
		switch x := e.(type) {
		case Key:
			col = x.Column
		case Eq:
			col = x.Column
		case Like:
			col = x.Column
		case Compare:
			col = x.Column
		case And:
			for _, c := range x {
				walk(c)
			}
		case AnyOf:
			for _, c := range x {
				walk(c)
			}
		}
		if col != "" && !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	if e != nil {
		walk(e)
	}
	return cols
}
