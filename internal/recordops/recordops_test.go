package recordops

import (
	"math"
	"math/rand"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
)

func testRecord(t *testing.T) arrow.Record {
	mem := memory.DefaultAllocator
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "city", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	ib.AppendValues([]int64{1, 2, 3, 4}, nil)
	fb := array.NewFloat64Builder(mem)
	defer fb.Release()
	fb.AppendValues([]float64{10.5, 0, 30, 40}, []bool{true, false, true, true})
	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.AppendValues([]string{"sfo", "", "sfo", "nyc"}, []bool{true, false, true, true})
	cols := []arrow.Array{ib.NewArray(), fb.NewArray(), sb.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecord(sch, cols, 4)
}

func TestProject(t *testing.T) {
	rec := testRecord(t)
	defer rec.Release()

	out, err := Project(rec, []string{"city", "id"})
	require.Nil(t, err)
	defer out.Release()
	require.Equal(t, 2, out.Schema().NumFields())
	require.Equal(t, "city", out.Schema().Field(0).Name)
	require.Equal(t, "id", out.Schema().Field(1).Name)
	require.EqualValues(t, 4, out.NumRows())

	_, err = Project(rec, []string{"nope"})
	require.IsType(t, ddferrors.MissingColumnError{}, err)
}

func TestDrop(t *testing.T) {
	rec := testRecord(t)
	defer rec.Release()

	out, err := Drop(rec, []string{"price", "absent"})
	require.Nil(t, err)
	defer out.Release()
	require.Equal(t, 2, out.Schema().NumFields())
	require.Equal(t, "id", out.Schema().Field(0).Name)
	require.Equal(t, "city", out.Schema().Field(1).Name)
}

func TestTakeAndFilterRows(t *testing.T) {
	mem := memory.DefaultAllocator
	rec := testRecord(t)
	defer rec.Release()

	out, err := Take(mem, rec, []int{3, 0})
	require.Nil(t, err)
	defer out.Release()
	require.EqualValues(t, 2, out.NumRows())
	require.EqualValues(t, 4, out.Column(0).(*array.Int64).Value(0))
	require.EqualValues(t, 1, out.Column(0).(*array.Int64).Value(1))
	require.False(t, out.Column(1).IsNull(1))

	filtered, err := FilterRows(mem, rec, []bool{false, true, false, true})
	require.Nil(t, err)
	defer filtered.Release()
	require.EqualValues(t, 2, filtered.NumRows())
	require.EqualValues(t, 2, filtered.Column(0).(*array.Int64).Value(0))
	require.True(t, filtered.Column(1).IsNull(0))

	_, err = FilterRows(mem, rec, []bool{true})
	require.NotNil(t, err)
}

func TestSampleRows(t *testing.T) {
	mem := memory.DefaultAllocator
	rec := testRecord(t)
	defer rec.Release()

	all, err := SampleRows(mem, rec, 10, rand.New(rand.NewSource(1)))
	require.Nil(t, err)
	defer all.Release()
	require.EqualValues(t, 4, all.NumRows())

	two, err := SampleRows(mem, rec, 2, rand.New(rand.NewSource(1)))
	require.Nil(t, err)
	defer two.Release()
	require.EqualValues(t, 2, two.NumRows())
	// row order is preserved
	ids := two.Column(0).(*array.Int64)
	require.True(t, ids.Value(0) < ids.Value(1))
}

func TestConcat(t *testing.T) {
	mem := memory.DefaultAllocator
	a := testRecord(t)
	defer a.Release()
	b := testRecord(t)
	defer b.Release()

	out, err := Concat(mem, []arrow.Record{a, b})
	require.Nil(t, err)
	defer out.Release()
	require.EqualValues(t, 8, out.NumRows())
	require.EqualValues(t, 1, out.Column(0).(*array.Int64).Value(4))
	require.True(t, out.Column(2).IsNull(5))
}

func TestUnionAllAlignsByName(t *testing.T) {
	mem := memory.DefaultAllocator
	a := testRecord(t)
	defer a.Release()

	sch := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "extra", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	ib := array.NewInt64Builder(mem)
	ib.AppendValues([]int64{9}, nil)
	sb := array.NewStringBuilder(mem)
	sb.Append("x")
	cols := []arrow.Array{ib.NewArray(), sb.NewArray()}
	ib.Release()
	sb.Release()
	b := array.NewRecord(sch, cols, 1)
	for _, c := range cols {
		c.Release()
	}
	defer b.Release()

	out, err := UnionAll(mem, []arrow.Record{a, b})
	require.Nil(t, err)
	defer out.Release()
	require.EqualValues(t, 5, out.NumRows())
	require.Equal(t, []string{"id", "price", "city", "extra"}, colNames(out))
	require.True(t, out.Column(1).IsNull(4))
	require.True(t, out.Column(3).IsNull(0))
	require.Equal(t, "x", out.Column(3).(*array.String).Value(4))
}

func TestUnionAllWidensNumbers(t *testing.T) {
	mem := memory.DefaultAllocator
	intRec := recordWithOneColumn(t, "v", arrow.PrimitiveTypes.Int64)
	defer intRec.Release()
	dblRec := recordWithOneColumn(t, "v", arrow.PrimitiveTypes.Float64)
	defer dblRec.Release()

	out, err := UnionAll(mem, []arrow.Record{intRec, dblRec})
	require.Nil(t, err)
	defer out.Release()
	require.True(t, arrow.TypeEqual(arrow.PrimitiveTypes.Float64, out.Schema().Field(0).Type))
	require.EqualValues(t, 7, out.Column(0).(*array.Float64).Value(0))

	strRec := recordWithOneColumn(t, "v", arrow.BinaryTypes.String)
	defer strRec.Release()
	_, err = UnionAll(mem, []arrow.Record{intRec, strRec})
	require.IsType(t, ddferrors.IncompatibleTypeError{}, err)
}

func recordWithOneColumn(t *testing.T, name string, dt arrow.DataType) arrow.Record {
	mem := memory.DefaultAllocator
	sch := arrow.NewSchema([]arrow.Field{{Name: name, Type: dt, Nullable: true}}, nil)
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	switch bb := b.(type) {
	case *array.Int64Builder:
		bb.Append(7)
	case *array.Float64Builder:
		bb.Append(7.5)
	case *array.StringBuilder:
		bb.Append("seven")
	}
	col := b.NewArray()
	defer col.Release()
	return array.NewRecord(sch, []arrow.Array{col}, 1)
}

func colNames(rec arrow.Record) []string {
	names := make([]string, rec.Schema().NumFields())
	for i, f := range rec.Schema().Fields() {
		names[i] = f.Name
	}
	return names
}

func TestAlignRecords(t *testing.T) {
	mem := memory.DefaultAllocator
	full := testRecord(t)
	defer full.Release()
	narrow := recordWithOneColumn(t, "id", arrow.PrimitiveTypes.Int64)
	defer narrow.Release()

	aligned, err := AlignRecords(mem, []arrow.Record{full, narrow})
	require.Nil(t, err)
	defer func() {
		for _, r := range aligned {
			r.Release()
		}
	}()
	require.Len(t, aligned, 2)
	// already-aligned records come back as-is
	require.Equal(t, []string{"id", "price", "city"}, colNames(aligned[0]))
	require.Equal(t, []string{"id", "price", "city"}, colNames(aligned[1]))
	require.EqualValues(t, 7, aligned[1].Column(0).(*array.Int64).Value(0))
	require.True(t, aligned[1].Column(1).IsNull(0))
	require.True(t, aligned[1].Column(2).IsNull(0))
}

func TestEmptyRecord(t *testing.T) {
	rec := testRecord(t)
	defer rec.Release()
	empty := EmptyRecord(memory.DefaultAllocator, rec.Schema())
	defer empty.Release()
	require.EqualValues(t, 0, empty.NumRows())
	require.Equal(t, colNames(rec), colNames(empty))
}

func TestFillNulls(t *testing.T) {
	mem := memory.DefaultAllocator
	rec := testRecord(t)
	defer rec.Release()

	num := 99.5
	str := "unknown"
	plan := &ddf.NullFillPlan{Specs: []ddf.NullFillSpec{
		{Col: "price", OutCol: ddf.NullFillPrefix + "price" + ddf.PrepSuffix, Method: ddf.FillWithConst, NumValue: &num},
		{Col: "city", OutCol: ddf.NullFillPrefix + "city" + ddf.PrepSuffix, Method: ddf.FillWithConst, StrValue: &str},
	}}
	out, err := FillNulls(mem, rec, plan)
	require.Nil(t, err)
	defer out.Release()

	require.Equal(t, 5, out.Schema().NumFields())
	prices := out.Column(3).(*array.Float64)
	require.EqualValues(t, 10.5, prices.Value(0))
	require.EqualValues(t, 99.5, prices.Value(1))
	cities := out.Column(4).(*array.String)
	require.Equal(t, "unknown", cities.Value(1))
	require.Equal(t, "nyc", cities.Value(3))

	_, err = FillNulls(mem, rec, &ddf.NullFillPlan{Specs: []ddf.NullFillSpec{
		{Col: "city", OutCol: "x", NumValue: &num},
	}})
	require.IsType(t, ddferrors.IncompatibleTypeError{}, err)
}

func TestApplyPrepCats(t *testing.T) {
	mem := memory.DefaultAllocator
	rec := testRecord(t)
	defer rec.Release()

	plan := &ddf.PrepPlan{Cats: []ddf.CatPrepSpec{{
		Col:    "city",
		OutCol: ddf.CatIdxPrefix + "city" + ddf.PrepSuffix,
		Levels: []string{"sfo", "nyc"},
		OHE:    true,
	}}}
	out, err := ApplyPrep(mem, rec, plan)
	require.Nil(t, err)
	defer out.Release()

	require.Equal(t, 6, out.Schema().NumFields())
	idx := out.Column(3).(*array.Int64)
	require.EqualValues(t, 0, idx.Value(0))
	require.EqualValues(t, 2, idx.Value(1)) // null lands in the overflow bucket
	require.EqualValues(t, 1, idx.Value(3))

	ohe0 := out.Column(4).(*array.Float64)
	ohe1 := out.Column(5).(*array.Float64)
	require.EqualValues(t, 1, ohe0.Value(0))
	require.EqualValues(t, 0, ohe1.Value(0))
	require.EqualValues(t, 0, ohe0.Value(1))
	require.EqualValues(t, 0, ohe1.Value(1))
	require.EqualValues(t, 1, ohe1.Value(3))
}

func TestApplyPrepNums(t *testing.T) {
	mem := memory.DefaultAllocator
	rec := testRecord(t)
	defer rec.Release()

	plan := &ddf.PrepPlan{Nums: []ddf.NumPrepSpec{
		{Col: "price", OutCol: "std", FillValue: 20, Scaler: ddf.StandardScaler, Mean: 20, Std: 10},
		{Col: "price", OutCol: "maxabs", FillValue: 20, Scaler: ddf.MaxAbsScaler, MaxAbs: 40},
		{Col: "price", OutCol: "minmax", FillValue: 20, Scaler: ddf.MinMaxScaler, Min: 10.5, Max: 40},
	}}
	out, err := ApplyPrep(mem, rec, plan)
	require.Nil(t, err)
	defer out.Release()

	std := out.Column(3).(*array.Float64)
	require.InDelta(t, (10.5-20)/10, std.Value(0), 1e-9)
	require.InDelta(t, 0, std.Value(1), 1e-9) // filled with the mean
	maxabs := out.Column(4).(*array.Float64)
	require.InDelta(t, 1, maxabs.Value(3), 1e-9)
	minmax := out.Column(5).(*array.Float64)
	require.InDelta(t, 0, minmax.Value(0), 1e-9)
	require.InDelta(t, 1, minmax.Value(3), 1e-9)
	require.False(t, math.IsNaN(minmax.Value(1)))
}
