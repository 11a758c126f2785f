package s3parquet

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/columns"
	ddferrors "github.com/adatao/ddf/errors"
	"github.com/adatao/ddf/stats"
)

// MinNonNullProportion returns the proportion of non-null sample cells a
// column needs before it is deemed to hold sufficient data.
func (ds *Dataset) MinNonNullProportion() float64 {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.minNonNullProportion
}

// SetMinNonNullProportion changes the sufficiency threshold. Cached
// sufficiency flags are dropped so they recompute against the new value.
func (ds *Dataset) SetMinNonNullProportion(v float64) {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	if v == ds.cache.minNonNullProportion {
		return
	}
	ds.cache.minNonNullProportion = v
	ds.cache.suffNonNull = make(map[string]bool)
	ds.cache.suffNonNullThreshold = make(map[string]float64)
}

// OutlierTailProportion returns the tail mass clipped off each end by
// outlier-resistant statistics.
func (ds *Dataset) OutlierTailProportion() float64 {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.outlierTailProportion
}

// SetOutlierTailProportion changes the clipped tail mass. Outlier-resistant
// statistics are memoized per tail value, so no caches need dropping.
func (ds *Dataset) SetOutlierTailProportion(v float64) {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	ds.cache.outlierTailProportion = v
}

// MaxNCats returns the level-count cap for categorical columns.
func (ds *Dataset) MaxNCats() int {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.maxNCats
}

// SetMaxNCats changes the level-count cap for categorical columns.
func (ds *Dataset) SetMaxNCats(n int) {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	ds.cache.maxNCats = n
}

// MinProportionByMaxNCats returns the sample proportion the top MaxNCats
// levels must cover for a column to qualify as categorical.
func (ds *Dataset) MinProportionByMaxNCats() float64 {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	return ds.cache.minProportionByMaxNCats
}

// SetMinProportionByMaxNCats changes the categorical coverage threshold.
func (ds *Dataset) SetMinProportionByMaxNCats(v float64) {
	ds.cache.mu.Lock()
	defer ds.cache.mu.Unlock()
	ds.cache.minProportionByMaxNCats = v
}

// sampleColumn plucks one column out of the representative sample. The
// caller releases rec when done with the array.
func sampleColumn(rec arrow.Record, col string) (arrow.Array, error) {
	idxs := rec.Schema().FieldIndices(col)
	if len(idxs) == 0 {
		return nil, ddferrors.MissingColumnError{Name: col}
	}
	return rec.Column(idxs[0]), nil
}

// NonNullCount returns the number of non-null sample cells per column. With
// no columns named, every content column is counted.
func (ds *Dataset) NonNullCount(ctx context.Context, cols ...string) (map[string]int64, error) {
	if len(cols) == 0 {
		cols = ds.ContentCols()
	}
	rec, err := ds.ReprSample(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	out := make(map[string]int64, len(cols))
	for _, col := range cols {
		arr, err := sampleColumn(rec, col)
		if err != nil {
			return nil, err
		}
		c := stats.Counter()
		c.Update(arr)
		out[col] = c.NonNull()
	}
	return out, nil
}

// NonNullProportion returns the proportion of col's sample cells holding
// data, memoized against the current representative sample.
func (ds *Dataset) NonNullProportion(ctx context.Context, col string) (float64, error) {
	ds.cache.mu.Lock()
	p, ok := ds.cache.nonNullProportion[col]
	ds.cache.mu.Unlock()
	if ok {
		return p, nil
	}
	rec, err := ds.ReprSample(ctx)
	if err != nil {
		return 0, err
	}
	defer rec.Release()
	arr, err := sampleColumn(rec, col)
	if err != nil {
		return 0, err
	}
	c := stats.Counter()
	c.Update(arr)
	p = c.NonNullProportion()
	ds.cache.mu.Lock()
	ds.cache.nonNullProportion[col] = p
	ds.cache.mu.Unlock()
	return p, nil
}

// SuffNonNull reports whether col's non-null proportion meets the
// sufficiency threshold. The flag is memoized along with the threshold it
// was computed under, and recomputes when the threshold has moved since.
func (ds *Dataset) SuffNonNull(ctx context.Context, col string) (bool, error) {
	ds.cache.mu.Lock()
	threshold := ds.cache.minNonNullProportion
	flag, ok := ds.cache.suffNonNull[col]
	computedAt, okAt := ds.cache.suffNonNullThreshold[col]
	ds.cache.mu.Unlock()
	if ok && okAt && computedAt == threshold {
		return flag, nil
	}
	p, err := ds.NonNullProportion(ctx, col)
	if err != nil {
		return false, err
	}
	flag = p >= threshold
	ds.cache.mu.Lock()
	ds.cache.suffNonNull[col] = flag
	ds.cache.suffNonNullThreshold[col] = threshold
	ds.cache.mu.Unlock()
	return flag, nil
}

// Distinct returns col's distinct sample values with their observed
// proportions, most frequent first, memoized against the current sample.
func (ds *Dataset) Distinct(ctx context.Context, col string) ([]stats.Level, error) {
	ds.cache.mu.Lock()
	levels, ok := ds.cache.distinct[col]
	ds.cache.mu.Unlock()
	if ok {
		return levels, nil
	}
	rec, err := ds.ReprSample(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	arr, err := sampleColumn(rec, col)
	if err != nil {
		return nil, err
	}
	d := stats.NewDistinct()
	d.Update(arr)
	levels = d.Levels()
	ds.cache.mu.Lock()
	ds.cache.distinct[col] = levels
	ds.cache.mu.Unlock()
	return levels, nil
}

// quantilesFor returns col's collected sample values, memoized.
func (ds *Dataset) quantilesFor(ctx context.Context, col string) (*stats.Quantiles, error) {
	ds.cache.mu.Lock()
	qs, ok := ds.cache.quantiles[col]
	ds.cache.mu.Unlock()
	if ok {
		return qs, nil
	}
	if err := ds.requireNumeric(col); err != nil {
		return nil, err
	}
	rec, err := ds.ReprSample(ctx)
	if err != nil {
		return nil, err
	}
	defer rec.Release()
	arr, err := sampleColumn(rec, col)
	if err != nil {
		return nil, err
	}
	qs = stats.NewQuantiles()
	qs.Update(arr)
	ds.cache.mu.Lock()
	ds.cache.quantiles[col] = qs
	ds.cache.mu.Unlock()
	return qs, nil
}

// Quantile returns the q-quantile of col's sample values.
func (ds *Dataset) Quantile(ctx context.Context, col string, q float64) (float64, error) {
	qs, err := ds.quantilesFor(ctx, col)
	if err != nil {
		return 0, err
	}
	return qs.Quantile(q), nil
}

// OutlierBounds returns the sample quantiles clipping the configured tail
// mass off each end of col.
func (ds *Dataset) OutlierBounds(ctx context.Context, col string) (float64, float64, error) {
	qs, err := ds.quantilesFor(ctx, col)
	if err != nil {
		return 0, 0, err
	}
	lo, hi := qs.OutlierBounds(ds.OutlierTailProportion())
	return lo, hi, nil
}

// Stat names a summary statistic of one column's sample values.
type Stat string

// Summary statistics servable from the representative sample.
const (
	StatMean   Stat = "mean"
	StatMedian Stat = "median"
	StatMin    Stat = "min"
	StatMax    Stat = "max"
	StatStd    Stat = "std"
)

func (ds *Dataset) requireNumeric(col string) error {
	t, err := ds.Type(col)
	if err != nil {
		return err
	}
	if !t.IsNumeric() {
		return ddferrors.IncompatibleTypeError{Col: col, Want: "numeric", Got: string(t)}
	}
	return nil
}

// SampleStat returns a summary statistic of col's sample values, memoized.
func (ds *Dataset) SampleStat(ctx context.Context, col string, stat Stat) (float64, error) {
	key := col + "\x00" + string(stat)
	ds.cache.mu.Lock()
	v, ok := ds.cache.sampleStats[key]
	ds.cache.mu.Unlock()
	if ok {
		return v, nil
	}
	if err := ds.requireNumeric(col); err != nil {
		return 0, err
	}
	switch stat {
	case StatMedian:
		qs, err := ds.quantilesFor(ctx, col)
		if err != nil {
			return 0, err
		}
		v = qs.Median()
	case StatMean, StatMin, StatMax, StatStd:
		rec, err := ds.ReprSample(ctx)
		if err != nil {
			return 0, err
		}
		arr, err := sampleColumn(rec, col)
		if err != nil {
			rec.Release()
			return 0, err
		}
		num := stats.NewNumeric()
		num.Update(arr)
		rec.Release()
		switch stat {
		case StatMean:
			v = num.Mean()
		case StatMin:
			v = num.Min()
		case StatMax:
			v = num.Max()
		case StatStd:
			v = num.Std()
		}
	default:
		return 0, fmt.Errorf("Unknown statistic %q", stat)
	}
	ds.cache.mu.Lock()
	ds.cache.sampleStats[key] = v
	ds.cache.mu.Unlock()
	return v, nil
}

// OutlierRstStat returns a summary statistic of col's sample values with the
// configured tail mass clipped off each end, memoized per tail value. A
// degenerate clip falls back to the plain sample median.
func (ds *Dataset) OutlierRstStat(ctx context.Context, col string, stat Stat) (float64, error) {
	tail := ds.OutlierTailProportion()
	key := fmt.Sprintf("%s\x00%s\x00%g", col, stat, tail)
	ds.cache.mu.Lock()
	v, ok := ds.cache.outlierStats[key]
	ds.cache.mu.Unlock()
	if ok {
		return v, nil
	}
	qs, err := ds.quantilesFor(ctx, col)
	if err != nil {
		return 0, err
	}
	if stat == StatMedian {
		// clipping tails does not move the median
		return ds.SampleStat(ctx, col, StatMedian)
	}
	lo, hi := qs.OutlierBounds(tail)
	clipped := qs.ClippedNumeric(lo, hi)
	if clipped.N() == 0 {
		return qs.Median(), nil
	}
	switch stat {
	case StatMean:
		v = clipped.Mean()
	case StatMin:
		v = clipped.Min()
	case StatMax:
		v = clipped.Max()
	case StatStd:
		v = clipped.Std()
	default:
		return 0, fmt.Errorf("Unknown statistic %q", stat)
	}
	ds.cache.mu.Lock()
	ds.cache.outlierStats[key] = v
	ds.cache.mu.Unlock()
	return v, nil
}

// IndexCols returns the identity, date and time columns present in the
// schema, in that order.
func (ds *Dataset) IndexCols() []string {
	sch := ds.GetSchema()
	var out []string
	for _, col := range []string{ds.iCol, ds.dCol, ds.tCol} {
		if col != "" && sch.HasColumn(col) {
			out = append(out, col)
		}
	}
	return out
}

// ContentCols returns the schema's columns which are neither index columns,
// derived time auxiliaries nor preparation outputs.
func (ds *Dataset) ContentCols() []string {
	var out []string
	for _, col := range ds.GetSchema().ColumnNames() {
		if col == ds.iCol || col == ds.dCol || col == ds.tCol {
			continue
		}
		if columns.IsAuxCol(col) || columns.IsPrepCol(col) {
			continue
		}
		out = append(out, col)
	}
	return out
}

// PossibleFeatureContentCols returns the content columns whose types may
// serve as model features once prepared.
func (ds *Dataset) PossibleFeatureContentCols() []string {
	return ds.contentColsWhere(func(t ddf.ColumnType) bool { return t.IsPossibleFeature() })
}

// PossibleCatContentCols returns the content columns whose types may be
// treated as categorical.
func (ds *Dataset) PossibleCatContentCols() []string {
	return ds.contentColsWhere(func(t ddf.ColumnType) bool { return t.IsPossibleCat() })
}

// PossibleNumContentCols returns the numeric content columns.
func (ds *Dataset) PossibleNumContentCols() []string {
	return ds.contentColsWhere(func(t ddf.ColumnType) bool { return t.IsNumeric() })
}

func (ds *Dataset) contentColsWhere(pred func(ddf.ColumnType) bool) []string {
	sch := ds.GetSchema()
	var out []string
	for _, col := range ds.ContentCols() {
		t, err := sch.ColumnType(col)
		if err == nil && pred(t) {
			out = append(out, col)
		}
	}
	return out
}

// ColumnProfile summarizes one column of the representative sample. The
// numeric summary fields are NaN for non-numeric columns.
type ColumnProfile struct {
	Col               string
	Type              ddf.ColumnType
	NonNullCount      int64
	NonNullProportion float64
	SuffNonNull       bool
	NDistinct         int
	TopLevels         []stats.Level
	Min               float64
	Max               float64
	Mean              float64
	Std               float64
}

// Profile profiles the named columns against the representative sample.
// With no columns named, every content column is profiled.
func (ds *Dataset) Profile(ctx context.Context, cols ...string) (map[string]*ColumnProfile, error) {
	if len(cols) == 0 {
		cols = ds.ContentCols()
	}
	msg := fmt.Sprintf("Profiling %d column(s) of %s...", len(cols), ds.path)
	ds.opts.Logger.Infof(msg)
	start := time.Now()
	sch := ds.GetSchema()
	maxNCats := ds.MaxNCats()
	out := make(map[string]*ColumnProfile, len(cols))
	counts, err := ds.NonNullCount(ctx, cols...)
	if err != nil {
		return nil, err
	}
	for _, col := range cols {
		t, err := sch.ColumnType(col)
		if err != nil {
			return nil, err
		}
		p := &ColumnProfile{
			Col:          col,
			Type:         t,
			NonNullCount: counts[col],
			Min:          math.NaN(),
			Max:          math.NaN(),
			Mean:         math.NaN(),
			Std:          math.NaN(),
		}
		if p.NonNullProportion, err = ds.NonNullProportion(ctx, col); err != nil {
			return nil, err
		}
		if p.SuffNonNull, err = ds.SuffNonNull(ctx, col); err != nil {
			return nil, err
		}
		levels, err := ds.Distinct(ctx, col)
		if err != nil {
			return nil, err
		}
		p.NDistinct = len(levels)
		if len(levels) > maxNCats {
			levels = levels[:maxNCats]
		}
		p.TopLevels = levels
		if t.IsNumeric() {
			if p.Min, err = ds.SampleStat(ctx, col, StatMin); err != nil {
				return nil, err
			}
			if p.Max, err = ds.SampleStat(ctx, col, StatMax); err != nil {
				return nil, err
			}
			if p.Mean, err = ds.SampleStat(ctx, col, StatMean); err != nil {
				return nil, err
			}
			if p.Std, err = ds.SampleStat(ctx, col, StatStd); err != nil {
				return nil, err
			}
		}
		out[col] = p
	}
	ds.opts.Logger.Infof("%s done!  <%s>", msg, time.Since(start).Round(time.Millisecond))
	return out, nil
}
