package s3parquet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf/dftesting"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/logging"
)

func int64Column(t *testing.T, rec arrow.Record, col string) []int64 {
	t.Helper()
	idxs := rec.Schema().FieldIndices(col)
	require.Len(t, idxs, 1)
	arr, ok := rec.Column(idxs[0]).(*array.Int64)
	require.True(t, ok)
	out := make([]int64, arr.Len())
	for i := range out {
		out[i] = arr.Value(i)
	}
	return out
}

func TestSampleReadsSquareRootOfPieces(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	opts := fixtureOptions(t)
	opts.Store = store
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), 9, 10)
	ds, err := Open(ctx, dir, opts)
	require.Nil(t, err)

	// a tenth of 90 rows reads sqrt(1/9) of the 9 pieces, 4 rows each
	rec, err := ds.Sample(ctx, 10, &SampleOptions{MinNPieces: 1, Seed: 7})
	require.Nil(t, err)
	require.EqualValues(t, 12, rec.NumRows())
	require.Equal(t, 3, store.nPathsRead())
	require.Equal(t, 3, store.nGets())
	ids := int64Column(t, rec, "id")
	rec.Release()

	again, err := ds.Sample(ctx, 10, &SampleOptions{MinNPieces: 1, Seed: 7})
	require.Nil(t, err)
	require.Equal(t, ids, int64Column(t, again, "id"))
	again.Release()
	// the repeat draw is served from the piece record cache
	require.Equal(t, 3, store.nGets())
}

func TestSamplePieceBounds(t *testing.T) {
	ctx := context.Background()

	store := newCountingStore()
	opts := fixtureOptions(t)
	opts.Store = store
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), 9, 10)
	ds, err := Open(ctx, dir, opts)
	require.Nil(t, err)
	rec, err := ds.Sample(ctx, 10, &SampleOptions{MinNPieces: 5, Seed: 7})
	require.Nil(t, err)
	require.EqualValues(t, 10, rec.NumRows())
	require.Equal(t, 5, store.nPathsRead())
	rec.Release()

	store = newCountingStore()
	opts = fixtureOptions(t)
	opts.Store = store
	dir = dftesting.WriteDatePartitioned(t, t.TempDir(), 9, 10)
	ds, err = Open(ctx, dir, opts)
	require.Nil(t, err)
	rec, err = ds.Sample(ctx, 10, &SampleOptions{MinNPieces: 1, MaxNPieces: 2, Seed: 7})
	require.Nil(t, err)
	require.EqualValues(t, 10, rec.NumRows())
	require.Equal(t, 2, store.nPathsRead())
	rec.Release()
}

func TestSampleDefaultsToReprPieceFloor(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	opts := fixtureOptions(t)
	opts.Store = store
	opts.SampleSeed = 11
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), 9, 10)
	ds, err := Open(ctx, dir, opts)
	require.Nil(t, err)

	// the floor clamps to the piece count, so every piece is drawn from
	rec, err := ds.Sample(ctx, 10, nil)
	require.Nil(t, err)
	require.EqualValues(t, 18, rec.NumRows())
	require.Equal(t, 9, store.nPathsRead())
	rec.Release()
}

func TestSampleRequiresLocallyReplayableChain(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 2, 3, nil)
	filtered, err := ds.Filter(ctx, "price > 1")
	require.Nil(t, err)
	_, err = filtered.Sample(ctx, 2, nil)
	require.IsType(t, ddferrors.NotLocallyReplayableError{}, err)
}

func TestSampleZeroRows(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 2, 3, nil)
	_, err := ds.Sample(ctx, 0, nil)
	require.IsType(t, ddferrors.EmptySampleError{}, err)
}

func TestSampleSkipsFailedPieces(t *testing.T) {
	ctx := context.Background()
	opts := fixtureOptions(t)
	opts.Logger = logging.New("s3parquet", logging.FatalLevel)
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), 3, 4)
	ds, err := Open(ctx, dir, opts)
	require.Nil(t, err)

	corrupt := filepath.Join(dir, "date=2016-07-02", "part-00000.parquet")
	require.Nil(t, os.WriteFile(corrupt, []byte("not a parquet file"), 0644))

	rec, err := ds.Sample(ctx, 12, &SampleOptions{Seed: 1})
	require.Nil(t, err)
	require.EqualValues(t, 8, rec.NumRows())
	rec.Release()
}

func TestSampleFailsWhenNoPieceLoads(t *testing.T) {
	ctx := context.Background()
	opts := fixtureOptions(t)
	opts.Logger = logging.New("s3parquet", logging.FatalLevel)
	dir := dftesting.WriteDatePartitioned(t, t.TempDir(), 3, 4)
	ds, err := Open(ctx, dir, opts)
	require.Nil(t, err)

	for _, sp := range ds.PieceSubPaths() {
		require.Nil(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(sp)), []byte("junk"), 0644))
	}

	_, err = ds.Sample(ctx, 12, &SampleOptions{Seed: 1})
	require.NotNil(t, err)
	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	require.Len(t, merr.Errors, 3)
}

func TestReprSample(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 4, nil)

	rec, err := ds.ReprSample(ctx)
	require.Nil(t, err)
	// the default target dwarfs the dataset, so every row is sampled
	require.EqualValues(t, 12, rec.NumRows())

	size, err := ds.ReprSampleSize(ctx)
	require.Nil(t, err)
	require.EqualValues(t, 12, size)

	again, err := ds.ReprSample(ctx)
	require.Nil(t, err)
	require.Same(t, rec, again)
	rec.Release()
	again.Release()
}

func TestSetReprSampleSizeRedrawsAndResetsMemos(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 4, nil)

	_, err := ds.NonNullProportion(ctx, "price")
	require.Nil(t, err)
	ds.cache.mu.Lock()
	require.Len(t, ds.cache.nonNullProportion, 1)
	ds.cache.mu.Unlock()

	require.Nil(t, ds.SetReprSampleSize(ctx, 6))
	ds.cache.mu.Lock()
	require.Empty(t, ds.cache.nonNullProportion)
	ds.cache.mu.Unlock()

	size, err := ds.ReprSampleSize(ctx)
	require.Nil(t, err)
	require.EqualValues(t, 6, size)
}

func TestDerivedHandleCacheInheritance(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 4, nil)
	_, err := ds.NonNullProportion(ctx, "price")
	require.Nil(t, err)

	// a pure projection keeps the cached sample and its memos
	projected, err := ds.Project(ctx, "id", "price")
	require.Nil(t, err)
	projected.cache.mu.Lock()
	require.NotNil(t, projected.cache.reprSample)
	_, memoized := projected.cache.nonNullProportion["price"]
	require.EqualValues(t, 12, projected.cache.nRows)
	projected.cache.mu.Unlock()
	require.True(t, memoized)

	// a row filter invalidates both the count and the sample
	filtered, err := ds.Filter(ctx, "price > 1")
	require.Nil(t, err)
	filtered.cache.mu.Lock()
	require.Nil(t, filtered.cache.reprSample)
	require.EqualValues(t, -1, filtered.cache.nRows)
	filtered.cache.mu.Unlock()
}
