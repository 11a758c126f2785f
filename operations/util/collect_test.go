package util_test

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf/datasource/s3parquet"
	"github.com/adatao/ddf/dftesting"
	"github.com/adatao/ddf/logging"
	oputil "github.com/adatao/ddf/operations/util"
	"github.com/adatao/ddf/stats"
)

func openFixture(t *testing.T, nDates, rowsPerDate int) *s3parquet.Dataset {
	t.Helper()
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), nDates, rowsPerDate)
	ds, err := s3parquet.Open(context.Background(), dir, &s3parquet.Options{
		Registry: s3parquet.NewRegistry(),
		TempDir:  t.TempDir(),
		Logger:   logging.New("s3parquet", logging.ErrorLevel),
	})
	require.Nil(t, err)
	return ds
}

func TestAccumulateFullData(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10)

	// exact full-data statistics rather than sample estimates
	num := stats.NewNumeric()
	var rows int64
	err := oputil.Accumulate(ctx, ds, func(rec arrow.Record) error {
		rows += rec.NumRows()
		idxs := rec.Schema().FieldIndices("price")
		require.Len(t, idxs, 1)
		num.Update(rec.Column(idxs[0]))
		return nil
	})
	require.Nil(t, err)
	require.EqualValues(t, 30, rows)
	require.EqualValues(t, 24, num.N())
	require.InDelta(t, 7.0, num.Mean(), 1e-9)
	require.Equal(t, 0.0, num.Min())
	require.Equal(t, 14.0, num.Max())
}

func TestCollectCapsPartitions(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 4)

	recs, err := oputil.Collect(ctx, ds, 0)
	require.Nil(t, err)
	require.Len(t, recs, 3)
	for _, rec := range recs {
		require.EqualValues(t, 4, rec.NumRows())
		rec.Release()
	}

	recs, err = oputil.Collect(ctx, ds, 2)
	require.Nil(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		rec.Release()
	}
}

func TestHead(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 2, 5)

	rec, err := oputil.Head(ctx, ds, 7)
	require.Nil(t, err)
	defer rec.Release()
	require.EqualValues(t, 7, rec.NumRows())
	require.EqualValues(t, 4, rec.NumFields())
}
