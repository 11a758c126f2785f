package expr

import (
	"testing"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/schema"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func testRecord(t *testing.T) arrow.Record {
	t.Helper()
	mem := memory.DefaultAllocator
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	ib.AppendValues([]int64{1, 2, 3, 4}, []bool{true, true, false, true})
	fb := array.NewFloat64Builder(mem)
	defer fb.Release()
	fb.AppendValues([]float64{0.5, -1.5, 2.5, 0}, []bool{true, true, true, false})
	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.AppendValues([]string{"a", "b", "", "d"}, []bool{true, true, false, true})
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "s", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	return array.NewRecord(sch, []arrow.Array{ib.NewArray(), fb.NewArray(), sb.NewArray()}, 4)
}

func TestEvalColumnArithmetic(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("n * 2 + 1")
	require.Nil(t, err)
	col, err := EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	longs, ok := col.(*array.Int64)
	require.True(t, ok)
	require.Equal(t, int64(3), longs.Value(0))
	require.Equal(t, int64(5), longs.Value(1))
	require.True(t, longs.IsNull(2))
	require.Equal(t, int64(9), longs.Value(3))
}

func TestEvalColumnDivisionIsDouble(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("n / 2")
	require.Nil(t, err)
	col, err := EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	doubles, ok := col.(*array.Float64)
	require.True(t, ok)
	require.InDelta(t, 0.5, doubles.Value(0), 1e-9)
	require.InDelta(t, 1.0, doubles.Value(1), 1e-9)
}

func TestEvalColumnCoalesce(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("COALESCE(x, 0.0)")
	require.Nil(t, err)
	col, err := EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	doubles := col.(*array.Float64)
	require.False(t, doubles.IsNull(3))
	require.InDelta(t, 0.0, doubles.Value(3), 1e-9)
	require.InDelta(t, -1.5, doubles.Value(1), 1e-9)
}

func TestEvalColumnBareRefPreservesType(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("s")
	require.Nil(t, err)
	col, err := EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	strs, ok := col.(*array.String)
	require.True(t, ok)
	require.Equal(t, "b", strs.Value(1))
}

func TestEvalPredicate(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("n >= 2 AND x < 0")
	require.Nil(t, err)
	keep, err := EvalPredicate(rec, e)
	require.Nil(t, err)
	require.Equal(t, []bool{false, true, false, false}, keep)
}

func TestEvalPredicateNullIsFalse(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("n > 0")
	require.Nil(t, err)
	keep, err := EvalPredicate(rec, e)
	require.Nil(t, err)
	// row 2 has null n
	require.Equal(t, []bool{true, true, false, true}, keep)
}

func TestEvalPredicateIsNullAndIn(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("s IS NULL")
	require.Nil(t, err)
	keep, err := EvalPredicate(rec, e)
	require.Nil(t, err)
	require.Equal(t, []bool{false, false, true, false}, keep)

	e, err = ParseExpr("s IN ('a', 'd')")
	require.Nil(t, err)
	keep, err = EvalPredicate(rec, e)
	require.Nil(t, err)
	require.Equal(t, []bool{true, false, false, true}, keep)
}

func TestEvalFunctions(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("ABS(x)")
	require.Nil(t, err)
	col, err := EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	doubles := col.(*array.Float64)
	require.InDelta(t, 1.5, doubles.Value(1), 1e-9)

	e, err = ParseExpr("UPPER(s)")
	require.Nil(t, err)
	col, err = EvalColumn(memory.DefaultAllocator, rec, e)
	require.Nil(t, err)
	strs := col.(*array.String)
	require.Equal(t, "B", strs.Value(1))
	require.True(t, strs.IsNull(2))
}

func TestEvalMixedTypeComparisonFails(t *testing.T) {
	rec := testRecord(t)
	e, err := ParseExpr("n > s")
	require.Nil(t, err)
	_, err = EvalPredicate(rec, e)
	require.NotNil(t, err)
}

func TestInferType(t *testing.T) {
	sch, err := schema.FromColumns(
		[]string{"n", "x", "s", "flag"},
		[]ddf.ColumnType{ddf.Long, ddf.Double, ddf.String, ddf.Bool},
	)
	require.Nil(t, err)
	for src, want := range map[string]ddf.ColumnType{
		"n + 1":              ddf.Long,
		"n / 2":              ddf.Double,
		"n + x":              ddf.Double,
		"s":                  ddf.String,
		"n > 1":              ddf.Bool,
		"NOT flag":           ddf.Bool,
		"COALESCE(s, 'z')":   ddf.String,
		"COALESCE(n, 0)":     ddf.Long,
		"COALESCE(x, n, 0)":  ddf.Double,
		"LENGTH(s)":          ddf.Long,
		"LN(x)":              ddf.Double,
	} {
		e, err := ParseExpr(src)
		require.Nil(t, err, src)
		got, err := InferType(sch, e)
		require.Nil(t, err, src)
		require.Equal(t, want, got, src)
	}
	e, err := ParseExpr("s + 1")
	require.Nil(t, err)
	_, err = InferType(sch, e)
	require.NotNil(t, err)
}
