// Package recordops implements columnar kernels over Arrow records. The local
// transform replay path, the in-process engine and the sampler all share these
// so a chain applied locally matches the engine's results cell for cell.
package recordops

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/util"
)

// Project returns a record holding cols in the given order.
func Project(rec arrow.Record, cols []string) (arrow.Record, error) {
	sch := rec.Schema()
	fields := make([]arrow.Field, 0, len(cols))
	arrs := make([]arrow.Array, 0, len(cols))
	for _, name := range cols {
		idxs := sch.FieldIndices(name)
		if len(idxs) == 0 {
			return nil, ddferrors.MissingColumnError{Name: name}
		}
		fields = append(fields, sch.Field(idxs[0]))
		arrs = append(arrs, rec.Column(idxs[0]))
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, rec.NumRows()), nil
}

// Drop returns a record without cols. Absent names are ignored.
func Drop(rec arrow.Record, cols []string) (arrow.Record, error) {
	dropping := make(map[string]bool, len(cols))
	for _, name := range cols {
		dropping[name] = true
	}
	sch := rec.Schema()
	var fields []arrow.Field
	var arrs []arrow.Array
	for i, f := range sch.Fields() {
		if dropping[f.Name] {
			continue
		}
		fields = append(fields, f)
		arrs = append(arrs, rec.Column(i))
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, rec.NumRows()), nil
}

// Take returns a record holding the given rows, in index order.
func Take(mem memory.Allocator, rec arrow.Record, indices []int) (arrow.Record, error) {
	sch := rec.Schema()
	arrs := make([]arrow.Array, sch.NumFields())
	for i, f := range sch.Fields() {
		b := array.NewBuilder(mem, f.Type)
		col := rec.Column(i)
		for _, row := range indices {
			if err := appendCell(b, f.Name, col, row); err != nil {
				b.Release()
				releaseAll(arrs[:i])
				return nil, err
			}
		}
		arrs[i] = b.NewArray()
		b.Release()
	}
	out := array.NewRecord(sch, arrs, int64(len(indices)))
	releaseAll(arrs)
	return out, nil
}

// FilterRows returns a record holding the rows where keep is true.
func FilterRows(mem memory.Allocator, rec arrow.Record, keep []bool) (arrow.Record, error) {
	if int64(len(keep)) != rec.NumRows() {
		return nil, fmt.Errorf("filter mask covers %d of %d rows", len(keep), rec.NumRows())
	}
	var indices []int
	for i, k := range keep {
		if k {
			indices = append(indices, i)
		}
	}
	return Take(mem, rec, indices)
}

// SampleRows draws n rows uniformly without replacement, preserving row order.
// When n covers the whole record the record itself is returned, retained.
func SampleRows(mem memory.Allocator, rec arrow.Record, n int, rng *rand.Rand) (arrow.Record, error) {
	rows := int(rec.NumRows())
	if n >= rows {
		rec.Retain()
		return rec, nil
	}
	if n < 0 {
		n = 0
	}
	indices := rng.Perm(rows)[:n]
	sort.Ints(indices)
	return Take(mem, rec, indices)
}

// Concat appends records with identical schemas into one.
func Concat(mem memory.Allocator, recs []arrow.Record) (arrow.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("nothing to concatenate")
	}
	if len(recs) == 1 {
		recs[0].Retain()
		return recs[0], nil
	}
	sch := recs[0].Schema()
	var rows int64
	for _, rec := range recs {
		if err := sameColumns(sch, rec.Schema()); err != nil {
			return nil, err
		}
		rows += rec.NumRows()
	}
	arrs := make([]arrow.Array, sch.NumFields())
	for i := range sch.Fields() {
		parts := make([]arrow.Array, len(recs))
		for j, rec := range recs {
			parts[j] = rec.Column(i)
		}
		col, err := array.Concatenate(parts, mem)
		if err != nil {
			releaseAll(arrs[:i])
			return nil, err
		}
		arrs[i] = col
	}
	out := array.NewRecord(sch, arrs, rows)
	releaseAll(arrs)
	return out, nil
}

// UnionAll appends records aligning columns by name. The output carries the
// union of all columns in first-seen order; columns a record lacks are filled
// with nulls. Numerical type mismatches widen to double.
func UnionAll(mem memory.Allocator, recs []arrow.Record) (arrow.Record, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("nothing to union")
	}
	if len(recs) == 1 {
		recs[0].Retain()
		return recs[0], nil
	}
	var names []string
	types := make(map[string]arrow.DataType)
	for _, rec := range recs {
		for _, f := range rec.Schema().Fields() {
			have, ok := types[f.Name]
			if !ok {
				names = append(names, f.Name)
				types[f.Name] = f.Type
				continue
			}
			unified, ok := unifyType(have, f.Type)
			if !ok {
				return nil, ddferrors.IncompatibleTypeError{Col: f.Name, Want: have.String(), Got: f.Type.String()}
			}
			types[f.Name] = unified
		}
	}
	fields := make([]arrow.Field, len(names))
	var rows int64
	for _, rec := range recs {
		rows += rec.NumRows()
	}
	arrs := make([]arrow.Array, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: types[name], Nullable: true}
		b := array.NewBuilder(mem, types[name])
		for _, rec := range recs {
			idxs := rec.Schema().FieldIndices(name)
			if len(idxs) == 0 {
				b.AppendNulls(int(rec.NumRows()))
				continue
			}
			col := rec.Column(idxs[0])
			for row := 0; row < int(rec.NumRows()); row++ {
				if err := appendCell(b, name, col, row); err != nil {
					b.Release()
					releaseAll(arrs[:i])
					return nil, err
				}
			}
		}
		arrs[i] = b.NewArray()
		b.Release()
	}
	out := array.NewRecord(arrow.NewSchema(fields, nil), arrs, rows)
	releaseAll(arrs)
	return out, nil
}

// AlignRecords rebuilds records onto their common schema: the union of all
// columns in first-seen order, numerical type mismatches widened to double,
// missing columns null-filled. Records already on the common schema are
// returned retained.
func AlignRecords(mem memory.Allocator, recs []arrow.Record) ([]arrow.Record, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	var names []string
	types := make(map[string]arrow.DataType)
	for _, rec := range recs {
		for _, f := range rec.Schema().Fields() {
			have, ok := types[f.Name]
			if !ok {
				names = append(names, f.Name)
				types[f.Name] = f.Type
				continue
			}
			unified, ok := unifyType(have, f.Type)
			if !ok {
				return nil, ddferrors.IncompatibleTypeError{Col: f.Name, Want: have.String(), Got: f.Type.String()}
			}
			types[f.Name] = unified
		}
	}
	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: types[name], Nullable: true}
	}
	target := arrow.NewSchema(fields, nil)
	out := make([]arrow.Record, len(recs))
	for i, rec := range recs {
		aligned, err := alignRecord(mem, rec, target)
		if err != nil {
			for _, r := range out[:i] {
				r.Release()
			}
			return nil, err
		}
		out[i] = aligned
	}
	return out, nil
}

func alignRecord(mem memory.Allocator, rec arrow.Record, target *arrow.Schema) (arrow.Record, error) {
	if rec.Schema().Equal(target) {
		rec.Retain()
		return rec, nil
	}
	rows := int(rec.NumRows())
	arrs := make([]arrow.Array, target.NumFields())
	for i, f := range target.Fields() {
		idxs := rec.Schema().FieldIndices(f.Name)
		switch {
		case len(idxs) == 0:
			b := array.NewBuilder(mem, f.Type)
			b.AppendNulls(rows)
			arrs[i] = b.NewArray()
			b.Release()
		case arrow.TypeEqual(rec.Column(idxs[0]).DataType(), f.Type):
			arrs[i] = rec.Column(idxs[0])
			arrs[i].Retain()
		default:
			b := array.NewBuilder(mem, f.Type)
			col := rec.Column(idxs[0])
			for row := 0; row < rows; row++ {
				if err := appendCell(b, f.Name, col, row); err != nil {
					b.Release()
					releaseAll(arrs[:i])
					return nil, err
				}
			}
			arrs[i] = b.NewArray()
			b.Release()
		}
	}
	out := array.NewRecord(target, arrs, rec.NumRows())
	releaseAll(arrs)
	return out, nil
}

// EmptyRecord returns a zero-row record carrying the given schema.
func EmptyRecord(mem memory.Allocator, sch *arrow.Schema) arrow.Record {
	arrs := make([]arrow.Array, sch.NumFields())
	for i, f := range sch.Fields() {
		b := array.NewBuilder(mem, f.Type)
		arrs[i] = b.NewArray()
		b.Release()
	}
	out := array.NewRecord(sch, arrs, 0)
	releaseAll(arrs)
	return out
}

// FillNulls applies a null-fill plan, appending one derived column per spec.
// Numerical fills produce double outputs, string fills produce string outputs
// over the source column's canonical rendering. Existing columns under the
// derived names are replaced.
func FillNulls(mem memory.Allocator, rec arrow.Record, plan *ddf.NullFillPlan) (arrow.Record, error) {
	rows := int(rec.NumRows())
	fields := make([]arrow.Field, 0, len(plan.Specs))
	arrs := make([]arrow.Array, 0, len(plan.Specs))
	fail := func(err error) (arrow.Record, error) {
		releaseAll(arrs)
		return nil, err
	}
	for _, spec := range plan.Specs {
		idxs := rec.Schema().FieldIndices(spec.Col)
		if len(idxs) == 0 {
			return fail(ddferrors.MissingColumnError{Name: spec.Col})
		}
		col := rec.Column(idxs[0])
		switch {
		case spec.NumValue != nil:
			if !isNumericType(col.DataType()) {
				return fail(ddferrors.IncompatibleTypeError{Col: spec.Col, Want: "numerical", Got: col.DataType().String()})
			}
			b := array.NewFloat64Builder(mem)
			for row := 0; row < rows; row++ {
				if v, ok := util.CellFloat(col, row); ok {
					b.Append(v)
				} else {
					b.Append(*spec.NumValue)
				}
			}
			fields = append(fields, arrow.Field{Name: spec.OutCol, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
			arrs = append(arrs, b.NewArray())
			b.Release()
		case spec.BoolValue != nil:
			c, ok := col.(*array.Boolean)
			if !ok {
				return fail(ddferrors.IncompatibleTypeError{Col: spec.Col, Want: "boolean", Got: col.DataType().String()})
			}
			b := array.NewBooleanBuilder(mem)
			for row := 0; row < rows; row++ {
				if c.IsNull(row) {
					b.Append(*spec.BoolValue)
				} else {
					b.Append(c.Value(row))
				}
			}
			fields = append(fields, arrow.Field{Name: spec.OutCol, Type: arrow.FixedWidthTypes.Boolean, Nullable: true})
			arrs = append(arrs, b.NewArray())
			b.Release()
		case spec.StrValue != nil:
			b := array.NewStringBuilder(mem)
			for row := 0; row < rows; row++ {
				if s, ok := util.RenderCell(col, row); ok {
					b.Append(s)
				} else {
					b.Append(*spec.StrValue)
				}
			}
			fields = append(fields, arrow.Field{Name: spec.OutCol, Type: arrow.BinaryTypes.String, Nullable: true})
			arrs = append(arrs, b.NewArray())
			b.Release()
		default:
			return fail(fmt.Errorf("null-fill spec for %s carries no fill value", spec.Col))
		}
	}
	out := appendColumns(rec, fields, arrs)
	releaseAll(arrs)
	return out, nil
}

// ApplyPrep applies a preparation plan, appending the plan's derived columns.
// Cat indices are bigint, OHE indicators and scaled numbers are double; none
// of the outputs carry nulls. Existing columns under the derived names are
// replaced.
func ApplyPrep(mem memory.Allocator, rec arrow.Record, plan *ddf.PrepPlan) (arrow.Record, error) {
	rows := int(rec.NumRows())
	var fields []arrow.Field
	var arrs []arrow.Array
	fail := func(err error) (arrow.Record, error) {
		releaseAll(arrs)
		return nil, err
	}
	for _, cat := range plan.Cats {
		idxs := rec.Schema().FieldIndices(cat.Col)
		if len(idxs) == 0 {
			return fail(ddferrors.MissingColumnError{Name: cat.Col})
		}
		col := rec.Column(idxs[0])
		levelIdx := make(map[string]int, len(cat.Levels))
		for i, lvl := range cat.Levels {
			levelIdx[lvl] = i
		}
		cellIdx := make([]int, rows)
		b := array.NewInt64Builder(mem)
		for row := 0; row < rows; row++ {
			idx := len(cat.Levels)
			if s, ok := util.RenderCell(col, row); ok {
				if i, ok := levelIdx[s]; ok {
					idx = i
				}
			}
			cellIdx[row] = idx
			b.Append(int64(idx))
		}
		fields = append(fields, arrow.Field{Name: cat.OutCol, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
		arrs = append(arrs, b.NewArray())
		b.Release()
		for lvl, name := range cat.OHECols() {
			ib := array.NewFloat64Builder(mem)
			for row := 0; row < rows; row++ {
				if cellIdx[row] == lvl {
					ib.Append(1)
				} else {
					ib.Append(0)
				}
			}
			fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
			arrs = append(arrs, ib.NewArray())
			ib.Release()
		}
	}
	for _, num := range plan.Nums {
		idxs := rec.Schema().FieldIndices(num.Col)
		if len(idxs) == 0 {
			return fail(ddferrors.MissingColumnError{Name: num.Col})
		}
		col := rec.Column(idxs[0])
		if !isNumericType(col.DataType()) {
			return fail(ddferrors.IncompatibleTypeError{Col: num.Col, Want: "numerical", Got: col.DataType().String()})
		}
		b := array.NewFloat64Builder(mem)
		for row := 0; row < rows; row++ {
			v, ok := util.CellFloat(col, row)
			if !ok {
				v = num.FillValue
			}
			b.Append(scale(&num, v))
		}
		fields = append(fields, arrow.Field{Name: num.OutCol, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		arrs = append(arrs, b.NewArray())
		b.Release()
	}
	out := appendColumns(rec, fields, arrs)
	releaseAll(arrs)
	return out, nil
}

func scale(spec *ddf.NumPrepSpec, v float64) float64 {
	switch spec.Scaler {
	case ddf.StandardScaler:
		std := spec.Std
		if std == 0 {
			std = 1
		}
		return (v - spec.Mean) / std
	case ddf.MaxAbsScaler:
		if spec.MaxAbs == 0 {
			return v
		}
		return v / spec.MaxAbs
	case ddf.MinMaxScaler:
		if spec.Max == spec.Min {
			return 0.5
		}
		return (v - spec.Min) / (spec.Max - spec.Min)
	}
	return v
}

// appendColumns returns rec with the given columns appended, replacing any
// existing columns carrying the same names.
func appendColumns(rec arrow.Record, fields []arrow.Field, arrs []arrow.Array) arrow.Record {
	replacing := make(map[string]bool, len(fields))
	for _, f := range fields {
		replacing[f.Name] = true
	}
	var outFields []arrow.Field
	var outArrs []arrow.Array
	for i, f := range rec.Schema().Fields() {
		if replacing[f.Name] {
			continue
		}
		outFields = append(outFields, f)
		outArrs = append(outArrs, rec.Column(i))
	}
	outFields = append(outFields, fields...)
	outArrs = append(outArrs, arrs...)
	return array.NewRecord(arrow.NewSchema(outFields, nil), outArrs, rec.NumRows())
}

func sameColumns(a, b *arrow.Schema) error {
	if a.NumFields() != b.NumFields() {
		return fmt.Errorf("column counts differ: %d vs %d", a.NumFields(), b.NumFields())
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name {
			return fmt.Errorf("column %d differs: %s vs %s", i, fa.Name, fb.Name)
		}
		if !arrow.TypeEqual(fa.Type, fb.Type) {
			return ddferrors.IncompatibleTypeError{Col: fa.Name, Want: fa.Type.String(), Got: fb.Type.String()}
		}
	}
	return nil
}

func unifyType(a, b arrow.DataType) (arrow.DataType, bool) {
	if arrow.TypeEqual(a, b) {
		return a, true
	}
	if isNumericType(a) && isNumericType(b) {
		return arrow.PrimitiveTypes.Float64, true
	}
	return nil, false
}

func isNumericType(dt arrow.DataType) bool {
	return arrow.IsInteger(dt.ID()) || arrow.IsFloating(dt.ID())
}

func appendCell(b array.Builder, name string, col arrow.Array, row int) error {
	if col.IsNull(row) {
		b.AppendNull()
		return nil
	}
	mismatch := func() error {
		return ddferrors.IncompatibleTypeError{Col: name, Want: b.Type().String(), Got: col.DataType().String()}
	}
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		c, ok := col.(*array.Boolean)
		if !ok {
			return mismatch()
		}
		bb.Append(c.Value(row))
	case *array.Int32Builder:
		c, ok := col.(*array.Int32)
		if !ok {
			return mismatch()
		}
		bb.Append(c.Value(row))
	case *array.Int64Builder:
		switch c := col.(type) {
		case *array.Int32:
			bb.Append(int64(c.Value(row)))
		case *array.Int64:
			bb.Append(c.Value(row))
		default:
			return mismatch()
		}
	case *array.Float32Builder:
		c, ok := col.(*array.Float32)
		if !ok {
			return mismatch()
		}
		bb.Append(c.Value(row))
	case *array.Float64Builder:
		v, ok := util.CellFloat(col, row)
		if !ok {
			return mismatch()
		}
		bb.Append(v)
	case *array.StringBuilder:
		switch c := col.(type) {
		case *array.String:
			bb.Append(c.Value(row))
		case *array.LargeString:
			bb.Append(c.Value(row))
		case *array.Binary:
			bb.Append(string(c.Value(row)))
		default:
			return mismatch()
		}
	case *array.BinaryBuilder:
		switch c := col.(type) {
		case *array.Binary:
			bb.Append(c.Value(row))
		case *array.String:
			bb.Append([]byte(c.Value(row)))
		default:
			return mismatch()
		}
	case *array.Date32Builder:
		c, ok := col.(*array.Date32)
		if !ok {
			return mismatch()
		}
		bb.Append(c.Value(row))
	case *array.TimestampBuilder:
		c, ok := col.(*array.Timestamp)
		if !ok || !arrow.TypeEqual(c.DataType(), b.Type()) {
			return mismatch()
		}
		bb.Append(c.Value(row))
	default:
		return mismatch()
	}
	return nil
}

func releaseAll(arrs []arrow.Array) {
	for _, a := range arrs {
		if a != nil {
			a.Release()
		}
	}
}
