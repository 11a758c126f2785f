// Package expr implements the restricted SQL expression dialect understood by
// execution engines: flat SELECT statements over a single frame, arithmetic,
// comparisons, boolean logic, null tests and a small function vocabulary.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is an expression tree node.
type Expr interface {
	fmt.Stringer
	exprNode()
}

// ColumnRef references a column, optionally qualified by a frame alias.
type ColumnRef struct {
	Qualifier string
	Name      string
}

func (*ColumnRef) exprNode() {}

func (e *ColumnRef) String() string {
	if e.Qualifier != "" {
		return e.Qualifier + "." + e.Name
	}
	return e.Name
}

// Star is the `*` (or `alias.*`) select item.
type Star struct {
	Qualifier string
}

func (*Star) exprNode() {}

func (e *Star) String() string {
	if e.Qualifier != "" {
		return e.Qualifier + ".*"
	}
	return "*"
}

// NumberLit is a numeric literal. IsInt distinguishes integer literals from
// floating-point ones.
type NumberLit struct {
	IsInt bool
	Int   int64
	Float float64
}

func (*NumberLit) exprNode() {}

func (e *NumberLit) String() string {
	if e.IsInt {
		return strconv.FormatInt(e.Int, 10)
	}
	return strconv.FormatFloat(e.Float, 'g', -1, 64)
}

// StringLit is a single-quoted string literal.
type StringLit struct {
	Value string
}

func (*StringLit) exprNode() {}

func (e *StringLit) String() string {
	return "'" + strings.ReplaceAll(e.Value, "'", "''") + "'"
}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Value bool
}

func (*BoolLit) exprNode() {}

func (e *BoolLit) String() string {
	if e.Value {
		return "TRUE"
	}
	return "FALSE"
}

// NullLit is the NULL literal.
type NullLit struct{}

func (*NullLit) exprNode() {}

func (e *NullLit) String() string { return "NULL" }

// Unary is a prefix operation: "-" or "NOT".
type Unary struct {
	Op string
	X  Expr
}

func (*Unary) exprNode() {}

func (e *Unary) String() string {
	if e.Op == "NOT" {
		return "NOT " + e.X.String()
	}
	return e.Op + e.X.String()
}

// Binary is an infix operation: arithmetic, comparison, AND or OR.
type Binary struct {
	Op string
	X  Expr
	Y  Expr
}

func (*Binary) exprNode() {}

func (e *Binary) String() string {
	return "(" + e.X.String() + " " + e.Op + " " + e.Y.String() + ")"
}

// IsNull is `X IS [NOT] NULL`.
type IsNull struct {
	X      Expr
	Negate bool
}

func (*IsNull) exprNode() {}

func (e *IsNull) String() string {
	if e.Negate {
		return e.X.String() + " IS NOT NULL"
	}
	return e.X.String() + " IS NULL"
}

// In is `X [NOT] IN (v1, v2, ...)` with literal members.
type In struct {
	X      Expr
	Set    []Expr
	Negate bool
}

func (*In) exprNode() {}

func (e *In) String() string {
	members := make([]string, len(e.Set))
	for i, m := range e.Set {
		members[i] = m.String()
	}
	op := " IN ("
	if e.Negate {
		op = " NOT IN ("
	}
	return e.X.String() + op + strings.Join(members, ", ") + ")"
}

// Call is a function application.
type Call struct {
	Fn   string
	Args []Expr
}

func (*Call) exprNode() {}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return e.Fn + "(" + strings.Join(args, ", ") + ")"
}

// Alias renames a select item.
type Alias struct {
	X  Expr
	As string
}

func (*Alias) exprNode() {}

func (e *Alias) String() string {
	return e.X.String() + " AS " + e.As
}

// SelectStmt is a restricted `SELECT items FROM frame [WHERE cond]`.
type SelectStmt struct {
	Items []Expr
	From  string
	Where Expr
}

func (s *SelectStmt) String() string {
	items := make([]string, len(s.Items))
	for i, it := range s.Items {
		items[i] = it.String()
	}
	out := "SELECT " + strings.Join(items, ", ") + " FROM " + s.From
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// SelectsAll returns true iff the statement's select list contains a bare or
// alias-qualified star.
func (s *SelectStmt) SelectsAll() bool {
	for _, it := range s.Items {
		if _, ok := it.(*Star); ok {
			return true
		}
	}
	return false
}

// OutputName returns the column name a select item materializes under.
func OutputName(e Expr) string {
	switch v := e.(type) {
	case *Alias:
		return v.As
	case *ColumnRef:
		return v.Name
	default:
		return e.String()
	}
}

// Columns returns the names of all columns referenced by e, in first-use order.
func Columns(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch v := e.(type) {
		case *ColumnRef:
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v.Name)
			}
		case *Unary:
			walk(v.X)
		case *Binary:
			walk(v.X)
			walk(v.Y)
		case *IsNull:
			walk(v.X)
		case *In:
			walk(v.X)
			for _, m := range v.Set {
				walk(m)
			}
		case *Call:
			for _, a := range v.Args {
				walk(a)
			}
		case *Alias:
			walk(v.X)
		}
	}
	walk(e)
	return out
}
