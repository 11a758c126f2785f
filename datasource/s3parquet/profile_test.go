package s3parquet

import (
	"context"
	"math"
	"testing"

	"github.com/d4l3k/messagediff"
	"github.com/stretchr/testify/require"

	"github.com/adatao/ddf"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/stats"
)

// The 3x10 fixture holds ids 0..29: price is id/2 with every fifth id null
// (24 non-null values summing to 168), sector cycles A, B, C evenly.

func TestNonNullCounts(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	counts, err := ds.NonNullCount(ctx)
	require.Nil(t, err)
	require.Equal(t, map[string]int64{"price": 24, "sector": 30}, counts)

	p, err := ds.NonNullProportion(ctx, "price")
	require.Nil(t, err)
	require.Equal(t, 0.8, p)
	p, err = ds.NonNullProportion(ctx, "sector")
	require.Nil(t, err)
	require.Equal(t, 1.0, p)

	_, err = ds.NonNullProportion(ctx, "nope")
	require.IsType(t, ddferrors.MissingColumnError{}, err)
}

func TestSuffNonNullTracksThreshold(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	ok, err := ds.SuffNonNull(ctx, "price")
	require.Nil(t, err)
	require.True(t, ok)

	ds.SetMinNonNullProportion(0.9)
	ds.cache.mu.Lock()
	require.Empty(t, ds.cache.suffNonNull)
	ds.cache.mu.Unlock()

	ok, err = ds.SuffNonNull(ctx, "price")
	require.Nil(t, err)
	require.False(t, ok)
	ok, err = ds.SuffNonNull(ctx, "sector")
	require.Nil(t, err)
	require.True(t, ok)
}

func TestDistinctLevels(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	got, err := ds.Distinct(ctx, "sector")
	require.Nil(t, err)
	want := []stats.Level{
		{Value: "A", Count: 10, Proportion: 1.0 / 3},
		{Value: "B", Count: 10, Proportion: 1.0 / 3},
		{Value: "C", Count: 10, Proportion: 1.0 / 3},
	}
	diff, eq := messagediff.PrettyDiff(want, got)
	require.True(t, eq, diff)

	prices, err := ds.Distinct(ctx, "price")
	require.Nil(t, err)
	require.Len(t, prices, 24)
}

func TestQuantiles(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	v, err := ds.Quantile(ctx, "price", 0)
	require.Nil(t, err)
	require.Equal(t, 0.0, v)
	v, err = ds.Quantile(ctx, "price", 1)
	require.Nil(t, err)
	require.Equal(t, 14.0, v)
	v, err = ds.Quantile(ctx, "price", 0.5)
	require.Nil(t, err)
	require.Equal(t, 7.0, v)

	_, err = ds.Quantile(ctx, "sector", 0.5)
	require.IsType(t, ddferrors.IncompatibleTypeError{}, err)
}

func TestSampleStats(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	mean, err := ds.SampleStat(ctx, "price", StatMean)
	require.Nil(t, err)
	require.InDelta(t, 7.0, mean, 1e-9)
	mn, err := ds.SampleStat(ctx, "price", StatMin)
	require.Nil(t, err)
	require.Equal(t, 0.0, mn)
	mx, err := ds.SampleStat(ctx, "price", StatMax)
	require.Nil(t, err)
	require.Equal(t, 14.0, mx)
	std, err := ds.SampleStat(ctx, "price", StatStd)
	require.Nil(t, err)
	require.InDelta(t, math.Sqrt(445.0/23), std, 1e-9)
	med, err := ds.SampleStat(ctx, "price", StatMedian)
	require.Nil(t, err)
	require.Equal(t, 7.0, med)

	_, err = ds.SampleStat(ctx, "price", Stat("mode"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "Unknown statistic")

	_, err = ds.SampleStat(ctx, "sector", StatMean)
	require.IsType(t, ddferrors.IncompatibleTypeError{}, err)
}

func TestOutlierResistantStats(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	lo, hi, err := ds.OutlierBounds(ctx, "price")
	require.Nil(t, err)
	require.InDelta(t, 0.0115, lo, 1e-9)
	require.InDelta(t, 13.9885, hi, 1e-9)

	// the extreme values 0 and 14 fall outside the clipped range
	mn, err := ds.OutlierRstStat(ctx, "price", StatMin)
	require.Nil(t, err)
	require.Equal(t, 0.5, mn)
	mx, err := ds.OutlierRstStat(ctx, "price", StatMax)
	require.Nil(t, err)
	require.Equal(t, 13.5, mx)
	mean, err := ds.OutlierRstStat(ctx, "price", StatMean)
	require.Nil(t, err)
	require.InDelta(t, 7.0, mean, 1e-9)
	med, err := ds.OutlierRstStat(ctx, "price", StatMedian)
	require.Nil(t, err)
	require.Equal(t, 7.0, med)
}

func TestContentColumnGroupings(t *testing.T) {
	ds := openFixture(t, 3, 10, nil)

	require.Equal(t, []string{"price", "sector"}, ds.PossibleFeatureContentCols())
	require.Equal(t, []string{"price", "sector"}, ds.PossibleCatContentCols())
	require.Equal(t, []string{"price"}, ds.PossibleNumContentCols())
}

func TestProfilingThresholds(t *testing.T) {
	ds := openFixture(t, 2, 2, nil)

	require.Equal(t, DefaultMinNonNullProportion, ds.MinNonNullProportion())
	require.Equal(t, DefaultOutlierTailProportion, ds.OutlierTailProportion())
	require.Equal(t, DefaultMaxNCats, ds.MaxNCats())
	require.Equal(t, DefaultMinProportionByMaxNCats, ds.MinProportionByMaxNCats())

	ds.SetMaxNCats(5)
	require.Equal(t, 5, ds.MaxNCats())
	ds.SetMinProportionByMaxNCats(0.5)
	require.Equal(t, 0.5, ds.MinProportionByMaxNCats())
	ds.SetOutlierTailProportion(0.01)
	require.Equal(t, 0.01, ds.OutlierTailProportion())
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	ds := openFixture(t, 3, 10, nil)

	profiles, err := ds.Profile(ctx)
	require.Nil(t, err)
	require.Len(t, profiles, 2)

	sector := profiles["sector"]
	require.Equal(t, ddf.String, sector.Type)
	require.EqualValues(t, 30, sector.NonNullCount)
	require.Equal(t, 1.0, sector.NonNullProportion)
	require.True(t, sector.SuffNonNull)
	require.Equal(t, 3, sector.NDistinct)
	want := []stats.Level{
		{Value: "A", Count: 10, Proportion: 1.0 / 3},
		{Value: "B", Count: 10, Proportion: 1.0 / 3},
		{Value: "C", Count: 10, Proportion: 1.0 / 3},
	}
	diff, eq := messagediff.PrettyDiff(want, sector.TopLevels)
	require.True(t, eq, diff)
	require.True(t, math.IsNaN(sector.Mean))
	require.True(t, math.IsNaN(sector.Std))

	price := profiles["price"]
	require.Equal(t, ddf.Double, price.Type)
	require.EqualValues(t, 24, price.NonNullCount)
	require.Equal(t, 0.8, price.NonNullProportion)
	require.Equal(t, 24, price.NDistinct)
	// level lists cap at MaxNCats
	require.Len(t, price.TopLevels, DefaultMaxNCats)
	require.Equal(t, 0.0, price.Min)
	require.Equal(t, 14.0, price.Max)
	require.InDelta(t, 7.0, price.Mean, 1e-9)
}
