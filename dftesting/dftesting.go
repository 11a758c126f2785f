// Package dftesting provides helpers for building Parquet dataset fixtures
// on disk, so that package tests across this module construct partitioned
// datasets the same way instead of each reinventing record builders.
package dftesting

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf/internal/pieceio"
	"github.com/adatao/ddf/internal/util"
)

// Col describes one column of a test record. Values must be a []int32,
// []int64, []float64, []string or []bool; a nil Valid mask marks every
// value non-null.
type Col struct {
	Name   string
	Values interface{}
	Valid  []bool
}

// MakeRecord builds an Arrow record from column descriptions.
func MakeRecord(t testing.TB, cols ...Col) arrow.Record {
	t.Helper()
	mem := memory.DefaultAllocator
	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	nRows := -1
	for i, c := range cols {
		var arr arrow.Array
		var dt arrow.DataType
		switch vals := c.Values.(type) {
		case []int32:
			b := array.NewInt32Builder(mem)
			b.AppendValues(vals, c.Valid)
			arr, dt = b.NewArray(), arrow.PrimitiveTypes.Int32
			b.Release()
		case []int64:
			b := array.NewInt64Builder(mem)
			b.AppendValues(vals, c.Valid)
			arr, dt = b.NewArray(), arrow.PrimitiveTypes.Int64
			b.Release()
		case []float64:
			b := array.NewFloat64Builder(mem)
			b.AppendValues(vals, c.Valid)
			arr, dt = b.NewArray(), arrow.PrimitiveTypes.Float64
			b.Release()
		case []string:
			b := array.NewStringBuilder(mem)
			b.AppendValues(vals, c.Valid)
			arr, dt = b.NewArray(), arrow.BinaryTypes.String
			b.Release()
		case []bool:
			b := array.NewBooleanBuilder(mem)
			b.AppendValues(vals, c.Valid)
			arr, dt = b.NewArray(), arrow.FixedWidthTypes.Boolean
			b.Release()
		default:
			t.Fatalf("column %s: unsupported values type %T", c.Name, c.Values)
		}
		if nRows < 0 {
			nRows = arr.Len()
		}
		require.Equal(t, nRows, arr.Len(), "column %s", c.Name)
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
		arrs[i] = arr
	}
	sch := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(sch, arrs, int64(nRows))
	for _, arr := range arrs {
		arr.Release()
	}
	return rec
}

// WritePiece writes one Parquet piece file, creating parent directories.
func WritePiece(t testing.TB, path string, cols ...Col) {
	t.Helper()
	rec := MakeRecord(t, cols...)
	defer rec.Release()
	require.Nil(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.Nil(t, pieceio.WriteFile(path, rec, nil))
}

// Piece pairs a dataset-relative sub-path with the columns of its record.
type Piece struct {
	SubPath string
	Cols    []Col
}

// WriteDataset writes a multi-piece dataset under dir, plus a success
// marker, and returns dir.
func WriteDataset(t testing.TB, dir string, pieces ...Piece) string {
	t.Helper()
	for _, p := range pieces {
		WritePiece(t, filepath.Join(dir, filepath.FromSlash(p.SubPath)), p.Cols...)
	}
	require.Nil(t, os.MkdirAll(dir, 0755))
	require.Nil(t, os.WriteFile(filepath.Join(dir, util.SuccessMarker), nil, 0644))
	return dir
}

// WriteDatePartitioned writes a deterministic date-partitioned dataset with
// nDates pieces of rowsPerDate rows each, and returns dir. Each piece holds
// an id column (globally sequential int64), a price column (float64, null on
// every fifth id) and a sector column (strings cycling A, B, C).
func WriteDatePartitioned(t testing.TB, dir string, nDates int, rowsPerDate int) string {
	t.Helper()
	require.LessOrEqual(t, nDates, 31, "one calendar month of pieces")
	sectors := []string{"A", "B", "C"}
	pieces := make([]Piece, 0, nDates)
	id := int64(0)
	for d := 0; d < nDates; d++ {
		ids := make([]int64, rowsPerDate)
		prices := make([]float64, rowsPerDate)
		priceValid := make([]bool, rowsPerDate)
		secs := make([]string, rowsPerDate)
		for r := 0; r < rowsPerDate; r++ {
			ids[r] = id
			prices[r] = float64(id) / 2
			priceValid[r] = id%5 != 4
			secs[r] = sectors[id%int64(len(sectors))]
			id++
		}
		pieces = append(pieces, Piece{
			SubPath: fmt.Sprintf("date=2016-07-%02d/part-00000.parquet", d+1),
			Cols: []Col{
				{Name: "id", Values: ids},
				{Name: "price", Values: prices, Valid: priceValid},
				{Name: "sector", Values: secs},
			},
		})
	}
	return WriteDataset(t, dir, pieces...)
}
