package pieceio

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func buildTestRecord(t *testing.T) arrow.Record {
	t.Helper()
	mem := memory.DefaultAllocator
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	ib.AppendValues([]int64{10, 20, 30}, []bool{true, false, true})
	fb := array.NewFloat64Builder(mem)
	defer fb.Release()
	fb.AppendValues([]float64{1.5, 2.5, 3.5}, nil)
	sb := array.NewStringBuilder(mem)
	defer sb.Release()
	sb.AppendValues([]string{"x", "y", "z"}, []bool{true, true, false})
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "label", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	return array.NewRecord(sch, []arrow.Array{ib.NewArray(), fb.NewArray(), sb.NewArray()}, 3)
}

func TestWriteReadRoundTrip(t *testing.T) {
	rec := buildTestRecord(t)
	var buf bytes.Buffer
	require.Nil(t, WriteTo(&buf, rec, nil))

	back, err := ReadBytes(context.Background(), buf.Bytes(), nil)
	require.Nil(t, err)
	require.Equal(t, int64(3), back.NumRows())
	require.Equal(t, int64(3), back.NumCols())

	// parquet groups order columns alphabetically
	names := make([]string, 0, 3)
	for _, f := range back.Schema().Fields() {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"id", "label", "price"}, names)

	ids := back.Column(0).(*array.Int64)
	require.Equal(t, int64(10), ids.Value(0))
	require.True(t, ids.IsNull(1))
	require.Equal(t, int64(30), ids.Value(2))

	labels := back.Column(1).(*array.String)
	require.Equal(t, "x", labels.Value(0))
	require.True(t, labels.IsNull(2))

	prices := back.Column(2).(*array.Float64)
	require.InDelta(t, 2.5, prices.Value(1), 1e-9)
}

func TestWriteFileAndReadFile(t *testing.T) {
	rec := buildTestRecord(t)
	path := filepath.Join(t.TempDir(), "date=2016-07-11", "part-0.parquet")
	require.Nil(t, WriteFile(path, rec, &WriteOptions{Compression: "gzip"}))

	back, err := ReadFile(context.Background(), path, &ReadOptions{
		PartitionValues: PartitionKeyValues("date=2016-07-11/part-0.parquet"),
	})
	require.Nil(t, err)
	require.Equal(t, int64(4), back.NumCols())

	idx := back.Schema().FieldIndices("date")
	require.Len(t, idx, 1)
	dates := back.Column(idx[0]).(*array.String)
	for r := 0; r < 3; r++ {
		require.Equal(t, "2016-07-11", dates.Value(r))
	}

	n, err := NumRows(path)
	require.Nil(t, err)
	require.Equal(t, int64(3), n)
}

func TestPartitionKeyValues(t *testing.T) {
	kvs := PartitionKeyValues("date=2016-07-11/hour=5/part-0.parquet")
	require.Equal(t, []KV{{Key: "date", Value: "2016-07-11"}, {Key: "hour", Value: "5"}}, kvs)

	require.Empty(t, PartitionKeyValues("part-0.parquet"))
	require.Empty(t, PartitionKeyValues(""))

	kvs = PartitionKeyValues("city=New%20York/part-0.parquet")
	require.Equal(t, "New York", kvs[0].Value)
}

func TestAttachPartitionColumnsTypes(t *testing.T) {
	rec := buildTestRecord(t)
	out, err := AttachPartitionColumns(memory.DefaultAllocator, rec, []KV{
		{Key: "hour", Value: "7"},
		{Key: "region", Value: "west"},
		{Key: "id", Value: "duplicate-skipped"},
	})
	require.Nil(t, err)
	require.Equal(t, int64(5), out.NumCols())

	hourIdx := out.Schema().FieldIndices("hour")
	require.Len(t, hourIdx, 1)
	hours, ok := out.Column(hourIdx[0]).(*array.Int64)
	require.True(t, ok)
	require.Equal(t, int64(7), hours.Value(2))

	regionIdx := out.Schema().FieldIndices("region")
	regions := out.Column(regionIdx[0]).(*array.String)
	require.Equal(t, "west", regions.Value(0))
}

func TestReadBinaryCoercion(t *testing.T) {
	mem := memory.DefaultAllocator
	bb := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	defer bb.Release()
	bb.Append([]byte("raw"))
	bb.AppendNull()
	sch := arrow.NewSchema([]arrow.Field{{Name: "payload", Type: arrow.BinaryTypes.Binary, Nullable: true}}, nil)
	rec := array.NewRecord(sch, []arrow.Array{bb.NewArray()}, 2)

	var buf bytes.Buffer
	require.Nil(t, WriteTo(&buf, rec, nil))

	plain, err := ReadBytes(context.Background(), buf.Bytes(), nil)
	require.Nil(t, err)
	_, isBinary := plain.Column(0).(*array.Binary)
	require.True(t, isBinary)

	coerced, err := ReadBytes(context.Background(), buf.Bytes(), &ReadOptions{CoerceBinaryToString: true})
	require.Nil(t, err)
	strs, isString := coerced.Column(0).(*array.String)
	require.True(t, isString)
	require.Equal(t, "raw", strs.Value(0))
	require.True(t, strs.IsNull(1))
}
