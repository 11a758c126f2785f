package localexec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/internal/pieceio"
)

// writeDataset lays out a two-date partitioned dataset. Pieces read back with
// columns in Parquet field order (alphabetical) plus the partition key.
func writeDataset(t *testing.T) string {
	dir := t.TempDir()
	writePiece(t, filepath.Join(dir, "date=2016-07-11", "part-00000.parquet"),
		[]int64{1, 2, 3},
		[]float64{10.5, 0, 30}, []bool{true, false, true},
		[]string{"tech", "energy", "tech"})
	writePiece(t, filepath.Join(dir, "date=2016-07-12", "part-00000.parquet"),
		[]int64{4, 5},
		[]float64{40, 50}, nil,
		[]string{"tech", "retail"})
	return dir
}

func writePiece(t *testing.T, path string, ids []int64, prices []float64, priceValid []bool, sectors []string) {
	mem := memory.DefaultAllocator
	sch := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "price", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "sector", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	ib := array.NewInt64Builder(mem)
	ib.AppendValues(ids, nil)
	fb := array.NewFloat64Builder(mem)
	fb.AppendValues(prices, priceValid)
	sb := array.NewStringBuilder(mem)
	sb.AppendValues(sectors, nil)
	cols := []arrow.Array{ib.NewArray(), fb.NewArray(), sb.NewArray()}
	ib.Release()
	fb.Release()
	sb.Release()
	rec := array.NewRecord(sch, cols, int64(len(ids)))
	for _, c := range cols {
		c.Release()
	}
	defer rec.Release()
	require.Nil(t, pieceio.WriteFile(path, rec, nil))
}

func loadDataset(t *testing.T) ddf.EngineFrame {
	fr, err := NewEngine(nil).Load(context.Background(), writeDataset(t), nil)
	require.Nil(t, err)
	return fr
}

func TestEngineLoad(t *testing.T) {
	ctx := context.Background()
	fr := loadDataset(t)

	require.Equal(t, []string{"id", "price", "sector", "date"}, fr.Schema().ColumnNames())
	dateType, err := fr.Schema().ColumnType("date")
	require.Nil(t, err)
	require.Equal(t, ddf.String, dateType)

	n, err := fr.Count(ctx)
	require.Nil(t, err)
	require.EqualValues(t, 5, n)

	iFrame := fr.(*frame)
	require.Len(t, iFrame.recs, 2)
}

func TestEngineLoadMissingPath(t *testing.T) {
	_, err := NewEngine(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.NotNil(t, err)
}

func TestEngineLoadEmptyDir(t *testing.T) {
	_, err := NewEngine(nil).Load(context.Background(), t.TempDir(), nil)
	require.IsType(t, ddferrors.NoPiecesFoundError{}, err)
}

func TestEngineLoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alone.parquet")
	writePiece(t, path, []int64{7}, []float64{70}, nil, []string{"tech"})
	fr, err := NewEngine(nil).Load(context.Background(), path, nil)
	require.Nil(t, err)
	n, err := fr.Count(context.Background())
	require.Nil(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, []string{"id", "price", "sector"}, fr.Schema().ColumnNames())
}

func TestExecSQL(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	fr, err := eng.Load(ctx, writeDataset(t), nil)
	require.Nil(t, err)

	out, err := eng.ExecSQL(ctx, "SELECT id, price FROM df WHERE sector = 'tech'", "df", fr)
	require.Nil(t, err)
	require.Equal(t, []string{"id", "price"}, out.Schema().ColumnNames())
	n, err := out.Count(ctx)
	require.Nil(t, err)
	require.EqualValues(t, 3, n)

	rec, err := out.Head(ctx, 10)
	require.Nil(t, err)
	defer rec.Release()
	ids := rec.Column(0).(*array.Int64)
	require.EqualValues(t, 1, ids.Value(0))
	require.EqualValues(t, 3, ids.Value(1))
	require.EqualValues(t, 4, ids.Value(2))
}

func TestExecSQLAliasMismatch(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	fr, err := eng.Load(ctx, writeDataset(t), nil)
	require.Nil(t, err)

	_, err = eng.ExecSQL(ctx, "SELECT * FROM other", "df", fr)
	require.IsType(t, ddferrors.UnsupportedSQLError{}, err)
}

func TestExecSQLRejectsJoins(t *testing.T) {
	ctx := context.Background()
	eng := NewEngine(nil)
	fr, err := eng.Load(ctx, writeDataset(t), nil)
	require.Nil(t, err)

	_, err = eng.ExecSQL(ctx, "SELECT * FROM df JOIN other ON df.id = other.id", "df", fr)
	require.IsType(t, ddferrors.UnsupportedSQLError{}, err)
}
