package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/schema"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindLong
	kindDouble
	kindString
)

type value struct {
	kind valueKind
	b    bool
	i    int64
	f    float64
	s    string
}

func (v value) isNull() bool { return v.kind == kindNull }

func (v value) asDouble() float64 {
	if v.kind == kindLong {
		return float64(v.i)
	}
	return v.f
}

func (v value) render() string {
	switch v.kind {
	case kindBool:
		if v.b {
			return "true"
		}
		return "false"
	case kindLong:
		return fmt.Sprintf("%d", v.i)
	case kindDouble:
		return fmt.Sprintf("%g", v.f)
	case kindString:
		return v.s
	}
	return ""
}

// InferType computes the engine type an expression evaluates to against a
// given input schema. Integer-typed arithmetic widens to bigint; division is
// always double.
func InferType(sch ddf.Schema, e Expr) (ddf.ColumnType, error) {
	switch v := e.(type) {
	case *ColumnRef:
		return sch.ColumnType(v.Name)
	case *NumberLit:
		if v.IsInt {
			return ddf.Long, nil
		}
		return ddf.Double, nil
	case *StringLit:
		return ddf.String, nil
	case *BoolLit:
		return ddf.Bool, nil
	case *NullLit:
		return ddf.String, nil
	case *Alias:
		return InferType(sch, v.X)
	case *Unary:
		if v.Op == "NOT" {
			return ddf.Bool, nil
		}
		t, err := InferType(sch, v.X)
		if err != nil {
			return "", err
		}
		if !t.IsNumeric() {
			return "", errors.IncompatibleTypeError{Col: v.X.String(), Want: "numeric", Got: string(t)}
		}
		return widenNumeric(t, t), nil
	case *Binary:
		switch v.Op {
		case "AND", "OR", "=", "!=", "<", "<=", ">", ">=":
			return ddf.Bool, nil
		}
		xt, err := InferType(sch, v.X)
		if err != nil {
			return "", err
		}
		yt, err := InferType(sch, v.Y)
		if err != nil {
			return "", err
		}
		if !xt.IsNumeric() || !yt.IsNumeric() {
			return "", errors.IncompatibleTypeError{Col: v.String(), Want: "numeric", Got: string(xt) + "/" + string(yt)}
		}
		if v.Op == "/" {
			return ddf.Double, nil
		}
		return widenNumeric(xt, yt), nil
	case *IsNull, *In:
		return ddf.Bool, nil
	case *Call:
		return inferCallType(sch, v)
	case *Star:
		return "", fmt.Errorf("* is not a scalar expression")
	}
	return "", fmt.Errorf("cannot type %s", e)
}

func widenNumeric(a, b ddf.ColumnType) ddf.ColumnType {
	if a == ddf.Float || a == ddf.Double || b == ddf.Float || b == ddf.Double {
		return ddf.Double
	}
	return ddf.Long
}

// unify picks the type a multi-branch expression materializes under. Temporal
// values degrade to their string renderings.
func unify(a, b ddf.ColumnType) (ddf.ColumnType, error) {
	if a.IsTemporal() {
		a = ddf.String
	}
	if b.IsTemporal() {
		b = ddf.String
	}
	if a == b {
		return a, nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		return widenNumeric(a, b), nil
	}
	return "", errors.IncompatibleTypeError{Col: "", Want: string(a), Got: string(b)}
}

func inferCallType(sch ddf.Schema, c *Call) (ddf.ColumnType, error) {
	switch c.Fn {
	case "COALESCE":
		if len(c.Args) == 0 {
			return "", fmt.Errorf("COALESCE requires at least one argument")
		}
		var out ddf.ColumnType
		for _, a := range c.Args {
			if _, isNull := a.(*NullLit); isNull {
				continue
			}
			t, err := InferType(sch, a)
			if err != nil {
				return "", err
			}
			if out == "" {
				if t.IsTemporal() {
					t = ddf.String
				}
				out = t
				continue
			}
			u, err := unify(out, t)
			if err != nil {
				return "", err
			}
			out = u
		}
		if out == "" {
			out = ddf.String
		}
		return out, nil
	case "ABS":
		if len(c.Args) != 1 {
			return "", fmt.Errorf("ABS requires one argument")
		}
		t, err := InferType(sch, c.Args[0])
		if err != nil {
			return "", err
		}
		if !t.IsNumeric() {
			return "", errors.IncompatibleTypeError{Col: c.String(), Want: "numeric", Got: string(t)}
		}
		return widenNumeric(t, t), nil
	case "LN", "LOG", "EXP", "SQRT", "POW":
		return ddf.Double, nil
	case "UPPER", "LOWER", "TRIM":
		return ddf.String, nil
	case "LENGTH":
		return ddf.Long, nil
	}
	return "", errors.UnsupportedSQLError{Query: c.String(), Reason: "unknown function " + c.Fn}
}

// EvalColumn evaluates e for every row of rec, returning a typed column of
// rec.NumRows() values. A bare column reference returns the input column.
func EvalColumn(mem memory.Allocator, rec arrow.Record, e Expr) (arrow.Array, error) {
	if ref, ok := e.(*ColumnRef); ok {
		idx := rec.Schema().FieldIndices(ref.Name)
		if len(idx) == 0 {
			return nil, errors.MissingColumnError{Name: ref.Name}
		}
		col := rec.Column(idx[0])
		col.Retain()
		return col, nil
	}
	if al, ok := e.(*Alias); ok {
		return EvalColumn(mem, rec, al.X)
	}
	sch := schema.FromArrow(rec.Schema())
	outType, err := InferType(sch, e)
	if err != nil {
		return nil, err
	}
	if outType.IsTemporal() {
		outType = ddf.String
	}
	ev := &evaluator{rec: rec}
	n := int(rec.NumRows())
	switch outType {
	case ddf.Bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for row := 0; row < n; row++ {
			v, err := ev.eval(e, row)
			if err != nil {
				return nil, err
			}
			if v.isNull() {
				b.AppendNull()
			} else {
				b.Append(v.b)
			}
		}
		return b.NewArray(), nil
	case ddf.Int, ddf.Long:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for row := 0; row < n; row++ {
			v, err := ev.eval(e, row)
			if err != nil {
				return nil, err
			}
			switch {
			case v.isNull():
				b.AppendNull()
			case v.kind == kindDouble:
				b.Append(int64(v.f))
			default:
				b.Append(v.i)
			}
		}
		return b.NewArray(), nil
	case ddf.Float, ddf.Double:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for row := 0; row < n; row++ {
			v, err := ev.eval(e, row)
			if err != nil {
				return nil, err
			}
			if v.isNull() {
				b.AppendNull()
			} else {
				b.Append(v.asDouble())
			}
		}
		return b.NewArray(), nil
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for row := 0; row < n; row++ {
			v, err := ev.eval(e, row)
			if err != nil {
				return nil, err
			}
			if v.isNull() {
				b.AppendNull()
			} else {
				b.Append(v.render())
			}
		}
		return b.NewArray(), nil
	}
}

// EvalPredicate evaluates a boolean condition for every row of rec. Rows
// evaluating to null keep SQL semantics and are excluded.
func EvalPredicate(rec arrow.Record, e Expr) ([]bool, error) {
	ev := &evaluator{rec: rec}
	n := int(rec.NumRows())
	out := make([]bool, n)
	for row := 0; row < n; row++ {
		v, err := ev.eval(e, row)
		if err != nil {
			return nil, err
		}
		if v.isNull() {
			continue
		}
		if v.kind != kindBool {
			return nil, errors.IncompatibleTypeError{Col: e.String(), Want: "boolean", Got: "non-boolean"}
		}
		out[row] = v.b
	}
	return out, nil
}

type evaluator struct {
	rec    arrow.Record
	colIdx map[string]int
}

func (ev *evaluator) column(name string) (arrow.Array, error) {
	if ev.colIdx == nil {
		ev.colIdx = make(map[string]int, ev.rec.NumCols())
		for i, f := range ev.rec.Schema().Fields() {
			ev.colIdx[f.Name] = i
		}
	}
	i, ok := ev.colIdx[name]
	if !ok {
		return nil, errors.MissingColumnError{Name: name}
	}
	return ev.rec.Column(i), nil
}

func (ev *evaluator) eval(e Expr, row int) (value, error) {
	switch v := e.(type) {
	case *ColumnRef:
		col, err := ev.column(v.Name)
		if err != nil {
			return value{}, err
		}
		return cellValue(col, row), nil
	case *NumberLit:
		if v.IsInt {
			return value{kind: kindLong, i: v.Int, f: v.Float}, nil
		}
		return value{kind: kindDouble, f: v.Float}, nil
	case *StringLit:
		return value{kind: kindString, s: v.Value}, nil
	case *BoolLit:
		return value{kind: kindBool, b: v.Value}, nil
	case *NullLit:
		return value{}, nil
	case *Alias:
		return ev.eval(v.X, row)
	case *Unary:
		return ev.evalUnary(v, row)
	case *Binary:
		return ev.evalBinary(v, row)
	case *IsNull:
		x, err := ev.eval(v.X, row)
		if err != nil {
			return value{}, err
		}
		return value{kind: kindBool, b: x.isNull() != v.Negate}, nil
	case *In:
		return ev.evalIn(v, row)
	case *Call:
		return ev.evalCall(v, row)
	}
	return value{}, fmt.Errorf("cannot evaluate %s", e)
}

func (ev *evaluator) evalUnary(u *Unary, row int) (value, error) {
	x, err := ev.eval(u.X, row)
	if err != nil {
		return value{}, err
	}
	if x.isNull() {
		return value{}, nil
	}
	switch u.Op {
	case "NOT":
		if x.kind != kindBool {
			return value{}, errors.IncompatibleTypeError{Col: u.String(), Want: "boolean", Got: "non-boolean"}
		}
		return value{kind: kindBool, b: !x.b}, nil
	case "-":
		switch x.kind {
		case kindLong:
			return value{kind: kindLong, i: -x.i, f: -x.f}, nil
		case kindDouble:
			return value{kind: kindDouble, f: -x.f}, nil
		}
		return value{}, errors.IncompatibleTypeError{Col: u.String(), Want: "numeric", Got: "non-numeric"}
	}
	return value{}, fmt.Errorf("cannot evaluate unary %s", u.Op)
}

func (ev *evaluator) evalBinary(b *Binary, row int) (value, error) {
	switch b.Op {
	case "AND", "OR":
		return ev.evalLogic(b, row)
	}
	x, err := ev.eval(b.X, row)
	if err != nil {
		return value{}, err
	}
	y, err := ev.eval(b.Y, row)
	if err != nil {
		return value{}, err
	}
	switch b.Op {
	case "=", "!=", "<", "<=", ">", ">=":
		return compare(b.Op, x, y)
	}
	// arithmetic
	if x.isNull() || y.isNull() {
		return value{}, nil
	}
	if x.kind == kindString || y.kind == kindString || x.kind == kindBool || y.kind == kindBool {
		return value{}, errors.IncompatibleTypeError{Col: b.String(), Want: "numeric", Got: "non-numeric"}
	}
	bothLong := x.kind == kindLong && y.kind == kindLong
	switch b.Op {
	case "+":
		if bothLong {
			return value{kind: kindLong, i: x.i + y.i}, nil
		}
		return value{kind: kindDouble, f: x.asDouble() + y.asDouble()}, nil
	case "-":
		if bothLong {
			return value{kind: kindLong, i: x.i - y.i}, nil
		}
		return value{kind: kindDouble, f: x.asDouble() - y.asDouble()}, nil
	case "*":
		if bothLong {
			return value{kind: kindLong, i: x.i * y.i}, nil
		}
		return value{kind: kindDouble, f: x.asDouble() * y.asDouble()}, nil
	case "/":
		d := y.asDouble()
		if d == 0 {
			return value{}, nil
		}
		return value{kind: kindDouble, f: x.asDouble() / d}, nil
	case "%":
		if bothLong {
			if y.i == 0 {
				return value{}, nil
			}
			return value{kind: kindLong, i: x.i % y.i}, nil
		}
		d := y.asDouble()
		if d == 0 {
			return value{}, nil
		}
		return value{kind: kindDouble, f: math.Mod(x.asDouble(), d)}, nil
	}
	return value{}, fmt.Errorf("cannot evaluate binary %s", b.Op)
}

// evalLogic applies three-valued AND/OR.
func (ev *evaluator) evalLogic(b *Binary, row int) (value, error) {
	x, err := ev.eval(b.X, row)
	if err != nil {
		return value{}, err
	}
	if !x.isNull() && x.kind != kindBool {
		return value{}, errors.IncompatibleTypeError{Col: b.String(), Want: "boolean", Got: "non-boolean"}
	}
	if b.Op == "AND" && !x.isNull() && !x.b {
		return value{kind: kindBool, b: false}, nil
	}
	if b.Op == "OR" && !x.isNull() && x.b {
		return value{kind: kindBool, b: true}, nil
	}
	y, err := ev.eval(b.Y, row)
	if err != nil {
		return value{}, err
	}
	if !y.isNull() && y.kind != kindBool {
		return value{}, errors.IncompatibleTypeError{Col: b.String(), Want: "boolean", Got: "non-boolean"}
	}
	if y.isNull() || x.isNull() {
		if b.Op == "AND" && !y.isNull() && !y.b {
			return value{kind: kindBool, b: false}, nil
		}
		if b.Op == "OR" && !y.isNull() && y.b {
			return value{kind: kindBool, b: true}, nil
		}
		return value{}, nil
	}
	if b.Op == "AND" {
		return value{kind: kindBool, b: x.b && y.b}, nil
	}
	return value{kind: kindBool, b: x.b || y.b}, nil
}

func compare(op string, x, y value) (value, error) {
	if x.isNull() || y.isNull() {
		return value{}, nil
	}
	var cmp int
	switch {
	case x.kind == kindString && y.kind == kindString:
		cmp = strings.Compare(x.s, y.s)
	case x.kind == kindBool && y.kind == kindBool:
		if op != "=" && op != "!=" {
			return value{}, errors.IncompatibleTypeError{Col: op, Want: "orderable", Got: "boolean"}
		}
		if x.b == y.b {
			cmp = 0
		} else {
			cmp = 1
		}
	case (x.kind == kindLong || x.kind == kindDouble) && (y.kind == kindLong || y.kind == kindDouble):
		if x.kind == kindLong && y.kind == kindLong {
			switch {
			case x.i < y.i:
				cmp = -1
			case x.i > y.i:
				cmp = 1
			}
		} else {
			xf, yf := x.asDouble(), y.asDouble()
			switch {
			case xf < yf:
				cmp = -1
			case xf > yf:
				cmp = 1
			}
		}
	default:
		return value{}, errors.IncompatibleTypeError{Col: op, Want: "comparable operands", Got: "mixed types"}
	}
	var out bool
	switch op {
	case "=":
		out = cmp == 0
	case "!=":
		out = cmp != 0
	case "<":
		out = cmp < 0
	case "<=":
		out = cmp <= 0
	case ">":
		out = cmp > 0
	case ">=":
		out = cmp >= 0
	}
	return value{kind: kindBool, b: out}, nil
}

func (ev *evaluator) evalIn(in *In, row int) (value, error) {
	x, err := ev.eval(in.X, row)
	if err != nil {
		return value{}, err
	}
	if x.isNull() {
		return value{}, nil
	}
	for _, m := range in.Set {
		mv, err := ev.eval(m, row)
		if err != nil {
			return value{}, err
		}
		if mv.isNull() {
			continue
		}
		eq, err := compare("=", x, mv)
		if err != nil {
			return value{}, err
		}
		if !eq.isNull() && eq.b {
			return value{kind: kindBool, b: !in.Negate}, nil
		}
	}
	return value{kind: kindBool, b: in.Negate}, nil
}

func (ev *evaluator) evalCall(c *Call, row int) (value, error) {
	switch c.Fn {
	case "COALESCE":
		for _, a := range c.Args {
			v, err := ev.eval(a, row)
			if err != nil {
				return value{}, err
			}
			if !v.isNull() {
				return v, nil
			}
		}
		return value{}, nil
	}
	args := make([]value, len(c.Args))
	for i, a := range c.Args {
		v, err := ev.eval(a, row)
		if err != nil {
			return value{}, err
		}
		if v.isNull() {
			return value{}, nil
		}
		args[i] = v
	}
	switch c.Fn {
	case "ABS":
		x := args[0]
		if x.kind == kindLong {
			if x.i < 0 {
				return value{kind: kindLong, i: -x.i}, nil
			}
			return x, nil
		}
		return value{kind: kindDouble, f: math.Abs(x.asDouble())}, nil
	case "LN", "LOG":
		x := args[0].asDouble()
		if x <= 0 {
			return value{}, nil
		}
		return value{kind: kindDouble, f: math.Log(x)}, nil
	case "EXP":
		return value{kind: kindDouble, f: math.Exp(args[0].asDouble())}, nil
	case "SQRT":
		x := args[0].asDouble()
		if x < 0 {
			return value{}, nil
		}
		return value{kind: kindDouble, f: math.Sqrt(x)}, nil
	case "POW":
		if len(args) != 2 {
			return value{}, fmt.Errorf("POW requires two arguments")
		}
		return value{kind: kindDouble, f: math.Pow(args[0].asDouble(), args[1].asDouble())}, nil
	case "UPPER":
		return value{kind: kindString, s: strings.ToUpper(args[0].render())}, nil
	case "LOWER":
		return value{kind: kindString, s: strings.ToLower(args[0].render())}, nil
	case "TRIM":
		return value{kind: kindString, s: strings.TrimSpace(args[0].render())}, nil
	case "LENGTH":
		return value{kind: kindLong, i: int64(len(args[0].render()))}, nil
	}
	return value{}, errors.UnsupportedSQLError{Query: c.String(), Reason: "unknown function " + c.Fn}
}

// cellValue reads one cell as an evaluation value. Temporal cells surface as
// their canonical string renderings.
func cellValue(col arrow.Array, row int) value {
	if col.IsNull(row) {
		return value{}
	}
	switch c := col.(type) {
	case *array.Boolean:
		return value{kind: kindBool, b: c.Value(row)}
	case *array.Int8:
		return value{kind: kindLong, i: int64(c.Value(row))}
	case *array.Int16:
		return value{kind: kindLong, i: int64(c.Value(row))}
	case *array.Int32:
		return value{kind: kindLong, i: int64(c.Value(row))}
	case *array.Int64:
		return value{kind: kindLong, i: c.Value(row)}
	case *array.Float32:
		return value{kind: kindDouble, f: float64(c.Value(row))}
	case *array.Float64:
		return value{kind: kindDouble, f: c.Value(row)}
	case *array.String:
		return value{kind: kindString, s: c.Value(row)}
	case *array.LargeString:
		return value{kind: kindString, s: c.Value(row)}
	case *array.Binary:
		return value{kind: kindString, s: string(c.Value(row))}
	case *array.Date32:
		return value{kind: kindString, s: c.Value(row).ToTime().Format("2006-01-02")}
	case *array.Date64:
		return value{kind: kindString, s: c.Value(row).ToTime().Format("2006-01-02")}
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return value{kind: kindString, s: c.Value(row).ToTime(unit).UTC().Format("2006-01-02 15:04:05")}
	}
	return value{}
}
