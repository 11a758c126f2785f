package localexec

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/expr"
	"github.com/adatao/ddf/internal/recordops"
	"github.com/adatao/ddf/schema"
)

// frame is an immutable in-process EngineFrame: a list of records sharing one
// schema. Deriving operations build new records; a frame's records are never
// mutated or released while the frame is reachable.
type frame struct {
	engine *Engine
	schema ddf.Schema
	recs   []arrow.Record
	cached bool
}

func newFrame(e *Engine, recs []arrow.Record) *frame {
	var sch ddf.Schema
	if len(recs) > 0 {
		sch = schema.FromArrow(recs[0].Schema())
	} else {
		sch = schema.CreateSchema()
	}
	return &frame{engine: e, schema: sch, recs: recs}
}

func (f *frame) Schema() ddf.Schema {
	return f.schema
}

func (f *frame) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.numRows(), nil
}

func (f *frame) numRows() int64 {
	var n int64
	for _, rec := range f.recs {
		n += rec.NumRows()
	}
	return n
}

// mapRecords derives a frame by applying fn to each record.
func (f *frame) mapRecords(ctx context.Context, sch ddf.Schema, fn func(arrow.Record) (arrow.Record, error)) (*frame, error) {
	out := make([]arrow.Record, len(f.recs))
	for i, rec := range f.recs {
		if err := ctx.Err(); err != nil {
			releaseRecords(out[:i])
			return nil, err
		}
		r, err := fn(rec)
		if err != nil {
			releaseRecords(out[:i])
			return nil, err
		}
		out[i] = r
	}
	return &frame{engine: f.engine, schema: sch, recs: out}, nil
}

func (f *frame) Project(ctx context.Context, colNames []string) (ddf.EngineFrame, error) {
	sch, err := f.schema.Select(colNames...)
	if err != nil {
		return nil, err
	}
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		return recordops.Project(rec, colNames)
	})
}

func (f *frame) Drop(ctx context.Context, colNames []string) (ddf.EngineFrame, error) {
	sch, err := f.schema.Drop(colNames...)
	if err != nil {
		return nil, err
	}
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		return recordops.Drop(rec, colNames)
	})
}

func (f *frame) SelectExprs(ctx context.Context, exprs []string) (ddf.EngineFrame, error) {
	items := make([]expr.Expr, len(exprs))
	for i, src := range exprs {
		item, err := expr.ParseSelectItem(src)
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return f.selectItems(ctx, items, "select")
}

// selectItems projects the frame onto a parsed select list, expanding stars.
func (f *frame) selectItems(ctx context.Context, items []expr.Expr, query string) (*frame, error) {
	var names []string
	var types []ddf.ColumnType
	for _, item := range items {
		if _, ok := item.(*expr.Star); ok {
			err := f.schema.ForEachColumn(func(name string, t ddf.ColumnType) error {
				names = append(names, name)
				types = append(types, t)
				return nil
			})
			if err != nil {
				return nil, err
			}
			continue
		}
		t, err := evalItemType(f.schema, item)
		if err != nil {
			return nil, err
		}
		names = append(names, expr.OutputName(item))
		types = append(types, t)
	}
	sch, err := schema.FromColumns(names, types)
	if err != nil {
		return nil, ddferrors.UnsupportedSQLError{Query: query, Reason: err.Error()}
	}
	mem := f.engine.opts.Mem
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		var fields []arrow.Field
		var arrs []arrow.Array
		for _, item := range items {
			if _, ok := item.(*expr.Star); ok {
				for i, fld := range rec.Schema().Fields() {
					col := rec.Column(i)
					col.Retain()
					fields = append(fields, fld)
					arrs = append(arrs, col)
				}
				continue
			}
			col, err := expr.EvalColumn(mem, rec, item)
			if err != nil {
				releaseArrays(arrs)
				return nil, err
			}
			fields = append(fields, arrow.Field{Name: expr.OutputName(item), Type: col.DataType(), Nullable: true})
			arrs = append(arrs, col)
		}
		out := array.NewRecord(arrow.NewSchema(fields, nil), arrs, rec.NumRows())
		releaseArrays(arrs)
		return out, nil
	})
}

func (f *frame) Filter(ctx context.Context, condition string) (ddf.EngineFrame, error) {
	cond, err := expr.ParseExpr(condition)
	if err != nil {
		return nil, err
	}
	return f.filterExpr(ctx, cond)
}

func (f *frame) filterExpr(ctx context.Context, cond expr.Expr) (*frame, error) {
	mem := f.engine.opts.Mem
	return f.mapRecords(ctx, f.schema, func(rec arrow.Record) (arrow.Record, error) {
		keep, err := expr.EvalPredicate(rec, cond)
		if err != nil {
			return nil, err
		}
		return recordops.FilterRows(mem, rec, keep)
	})
}

func (f *frame) WithColumn(ctx context.Context, colName string, expression string) (ddf.EngineFrame, error) {
	e, err := expr.ParseExpr(expression)
	if err != nil {
		return nil, err
	}
	t, err := evalItemType(f.schema, e)
	if err != nil {
		return nil, err
	}
	sch := f.schema.SetColumn(colName, t)
	mem := f.engine.opts.Mem
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		col, err := expr.EvalColumn(mem, rec, e)
		if err != nil {
			return nil, err
		}
		out := setColumn(rec, colName, col)
		col.Release()
		return out, nil
	})
}

func (f *frame) FillNulls(ctx context.Context, plan *ddf.NullFillPlan) (ddf.EngineFrame, error) {
	sch := f.schema
	for _, spec := range plan.Specs {
		switch {
		case spec.NumValue != nil:
			sch = sch.SetColumn(spec.OutCol, ddf.Double)
		case spec.BoolValue != nil:
			sch = sch.SetColumn(spec.OutCol, ddf.Bool)
		default:
			sch = sch.SetColumn(spec.OutCol, ddf.String)
		}
	}
	mem := f.engine.opts.Mem
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		return recordops.FillNulls(mem, rec, plan)
	})
}

func (f *frame) Prep(ctx context.Context, plan *ddf.PrepPlan) (ddf.EngineFrame, error) {
	sch := f.schema
	for _, cat := range plan.Cats {
		sch = sch.SetColumn(cat.OutCol, ddf.Long)
		for _, name := range cat.OHECols() {
			sch = sch.SetColumn(name, ddf.Double)
		}
	}
	for _, num := range plan.Nums {
		sch = sch.SetColumn(num.OutCol, ddf.Double)
	}
	mem := f.engine.opts.Mem
	return f.mapRecords(ctx, sch, func(rec arrow.Record) (arrow.Record, error) {
		return recordops.ApplyPrep(mem, rec, plan)
	})
}

func (f *frame) Sample(ctx context.Context, n int64, seed int64) (ddf.EngineFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := f.numRows()
	if n >= total {
		return &frame{engine: f.engine, schema: f.schema, recs: f.recs}, nil
	}
	if n < 0 {
		n = 0
	}
	rng := rand.New(rand.NewSource(seed))
	picks := rng.Perm(int(total))[:int(n)]
	sort.Ints(picks)

	mem := f.engine.opts.Mem
	var out []arrow.Record
	var offset int64
	next := 0
	for _, rec := range f.recs {
		var local []int
		for next < len(picks) && int64(picks[next]) < offset+rec.NumRows() {
			local = append(local, int(int64(picks[next])-offset))
			next++
		}
		offset += rec.NumRows()
		if len(local) == 0 {
			continue
		}
		sampled, err := recordops.Take(mem, rec, local)
		if err != nil {
			releaseRecords(out)
			return nil, err
		}
		out = append(out, sampled)
	}
	return &frame{engine: f.engine, schema: f.schema, recs: out}, nil
}

func (f *frame) Repartition(ctx context.Context, n int) (ddf.EngineFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("cannot repartition into %d partitions", n)
	}
	if len(f.recs) == 0 {
		return &frame{engine: f.engine, schema: f.schema}, nil
	}
	all, err := recordops.Concat(f.engine.opts.Mem, f.recs)
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return &frame{engine: f.engine, schema: f.schema, recs: []arrow.Record{all}}, nil
	}
	rows := all.NumRows()
	chunk := (rows + int64(n) - 1) / int64(n)
	if chunk < 1 {
		chunk = 1
	}
	var out []arrow.Record
	for lo := int64(0); lo < rows; lo += chunk {
		hi := lo + chunk
		if hi > rows {
			hi = rows
		}
		out = append(out, all.NewSlice(lo, hi))
	}
	all.Release()
	return &frame{engine: f.engine, schema: f.schema, recs: out}, nil
}

func (f *frame) Union(ctx context.Context, others ...ddf.EngineFrame) (ddf.EngineFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := make([]arrow.Record, 0, len(f.recs))
	all = append(all, f.recs...)
	for _, other := range others {
		of, ok := other.(*frame)
		if !ok {
			return nil, fmt.Errorf("frame %T was not produced by this engine", other)
		}
		all = append(all, of.recs...)
	}
	aligned, err := recordops.AlignRecords(f.engine.opts.Mem, all)
	if err != nil {
		return nil, err
	}
	return newFrame(f.engine, aligned), nil
}

// Cache is a no-op beyond marking: every frame is already materialized.
func (f *frame) Cache(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.cached = true
	return nil
}

func (f *frame) Head(ctx context.Context, n int64) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mem := f.engine.opts.Mem
	if n <= 0 || len(f.recs) == 0 {
		return recordops.EmptyRecord(mem, f.arrowSchema()), nil
	}
	var parts []arrow.Record
	remaining := n
	for _, rec := range f.recs {
		if remaining <= 0 {
			break
		}
		take := rec.NumRows()
		if take > remaining {
			take = remaining
		}
		if take == rec.NumRows() {
			rec.Retain()
			parts = append(parts, rec)
		} else {
			parts = append(parts, rec.NewSlice(0, take))
		}
		remaining -= take
	}
	out, err := recordops.Concat(mem, parts)
	releaseRecords(parts)
	return out, err
}

func (f *frame) Collect(ctx context.Context) ([]arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]arrow.Record, len(f.recs))
	for i, rec := range f.recs {
		rec.Retain()
		out[i] = rec
	}
	return out, nil
}

func (f *frame) arrowSchema() *arrow.Schema {
	if len(f.recs) > 0 {
		return f.recs[0].Schema()
	}
	return schema.ToArrow(f.schema)
}

// evalItemType computes the engine type a select item materializes under.
// Bare column references keep the source type; computed values land on the
// evaluator's widened types.
func evalItemType(sch ddf.Schema, item expr.Expr) (ddf.ColumnType, error) {
	x := item
	if al, ok := x.(*expr.Alias); ok {
		x = al.X
	}
	if ref, ok := x.(*expr.ColumnRef); ok {
		return sch.ColumnType(ref.Name)
	}
	t, err := expr.InferType(sch, x)
	if err != nil {
		return "", err
	}
	switch {
	case t == ddf.Int:
		return ddf.Long, nil
	case t == ddf.Float:
		return ddf.Double, nil
	case t.IsTemporal():
		return ddf.String, nil
	}
	return t, nil
}

// setColumn replaces col in place when the name exists, appending otherwise.
func setColumn(rec arrow.Record, name string, col arrow.Array) arrow.Record {
	fields := append([]arrow.Field{}, rec.Schema().Fields()...)
	arrs := make([]arrow.Array, len(fields))
	for i := range fields {
		arrs[i] = rec.Column(i)
	}
	replaced := false
	for i, fld := range fields {
		if fld.Name == name {
			fields[i] = arrow.Field{Name: name, Type: col.DataType(), Nullable: true}
			arrs[i] = col
			replaced = true
			break
		}
	}
	if !replaced {
		fields = append(fields, arrow.Field{Name: name, Type: col.DataType(), Nullable: true})
		arrs = append(arrs, col)
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, rec.NumRows())
}

func releaseRecords(recs []arrow.Record) {
	for _, rec := range recs {
		if rec != nil {
			rec.Release()
		}
	}
}

func releaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		a.Release()
	}
}
