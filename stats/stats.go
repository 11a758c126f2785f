package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/adatao/ddf/internal/util"
	"github.com/apache/arrow-go/v18/arrow"
)

// Count tallies rows and non-null cells of one column
type Count struct {
	rows    int64
	nonNull int64
}

// Counter returns a new Count accumulator
func Counter() *Count {
	return new(Count)
}

// Update adds a column of cells to this accumulator
func (a *Count) Update(col arrow.Array) {
	a.rows += int64(col.Len())
	a.nonNull += int64(col.Len() - col.NullN())
}

// Merge merges another Count into this one
func (a *Count) Merge(o *Count) {
	a.rows += o.rows
	a.nonNull += o.nonNull
}

// Rows returns the number of cells seen, nulls included
func (a *Count) Rows() int64 {
	return a.rows
}

// NonNull returns the number of non-null cells seen
func (a *Count) NonNull() int64 {
	return a.nonNull
}

// NonNullProportion returns the fraction of cells which are non-null
func (a *Count) NonNullProportion() float64 {
	if a.rows == 0 {
		return 0
	}
	return float64(a.nonNull) / float64(a.rows)
}

// Numeric tracks the moments and extrema of one numeric column using
// Welford's online algorithm
type Numeric struct {
	n    int64
	mean float64
	m2   float64
	min  float64
	max  float64
}

// NewNumeric returns a new Numeric accumulator
func NewNumeric() *Numeric {
	return &Numeric{min: math.Inf(1), max: math.Inf(-1)}
}

// Update adds a column of cells to this accumulator, skipping nulls and NaNs
func (a *Numeric) Update(col arrow.Array) {
	for row := 0; row < col.Len(); row++ {
		v, ok := util.CellFloat(col, row)
		if !ok || math.IsNaN(v) {
			continue
		}
		a.n++
		delta := v - a.mean
		a.mean += delta / float64(a.n)
		a.m2 += delta * (v - a.mean)
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
}

// Merge merges another Numeric into this one
func (a *Numeric) Merge(o *Numeric) {
	if o.n == 0 {
		return
	}
	if a.n == 0 {
		*a = *o
		return
	}
	n := a.n + o.n
	delta := o.mean - a.mean
	mean := a.mean + delta*float64(o.n)/float64(n)
	a.m2 += o.m2 + delta*delta*float64(a.n)*float64(o.n)/float64(n)
	a.mean = mean
	a.n = n
	if o.min < a.min {
		a.min = o.min
	}
	if o.max > a.max {
		a.max = o.max
	}
}

// N returns the number of non-null values seen
func (a *Numeric) N() int64 {
	return a.n
}

// Mean returns the arithmetic mean, or NaN when empty
func (a *Numeric) Mean() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.mean
}

// Std returns the sample standard deviation, or NaN when fewer than two
// values have been seen
func (a *Numeric) Std() float64 {
	if a.n < 2 {
		return math.NaN()
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

// Min returns the smallest value seen, or NaN when empty
func (a *Numeric) Min() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.min
}

// Max returns the largest value seen, or NaN when empty
func (a *Numeric) Max() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.max
}

// MaxAbs returns the largest absolute value seen, or NaN when empty
func (a *Numeric) MaxAbs() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return math.Max(math.Abs(a.min), math.Abs(a.max))
}

// Level is one distinct value of a column with its observed frequency
type Level struct {
	Value      string
	Count      int64
	Proportion float64
}

// Distinct counts the distinct non-null values of one column by canonical
// string rendering
type Distinct struct {
	counts map[string]int64
	total  int64
}

// NewDistinct returns a new Distinct accumulator
func NewDistinct() *Distinct {
	return &Distinct{counts: make(map[string]int64)}
}

// Update adds a column of cells to this accumulator, skipping nulls
func (a *Distinct) Update(col arrow.Array) {
	for row := 0; row < col.Len(); row++ {
		s, ok := util.RenderCell(col, row)
		if !ok {
			continue
		}
		a.counts[s]++
		a.total++
	}
}

// Merge merges another Distinct into this one
func (a *Distinct) Merge(o *Distinct) {
	for v, c := range o.counts {
		a.counts[v] += c
	}
	a.total += o.total
}

// N returns the number of distinct non-null values seen
func (a *Distinct) N() int {
	return len(a.counts)
}

// Count returns the observed frequency of one rendered value
func (a *Distinct) Count(value string) int64 {
	return a.counts[value]
}

// Levels returns every distinct value ordered most-frequent-first, breaking
// frequency ties lexically so orderings are deterministic
func (a *Distinct) Levels() []Level {
	out := make([]Level, 0, len(a.counts))
	for v, c := range a.counts {
		lvl := Level{Value: v, Count: c}
		if a.total > 0 {
			lvl.Proportion = float64(c) / float64(a.total)
		}
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// ProportionCovered returns the fraction of observed cells covered by the k
// most frequent values
func (a *Distinct) ProportionCovered(k int) float64 {
	if a.total == 0 {
		return 0
	}
	levels := a.Levels()
	if k > len(levels) {
		k = len(levels)
	}
	var covered int64
	for i := 0; i < k; i++ {
		covered += levels[i].Count
	}
	return float64(covered) / float64(a.total)
}

// Quantiles collects the non-null values of one numeric column for exact
// quantile queries. Intended for sample-sized inputs.
type Quantiles struct {
	vals   []float64
	sorted bool
}

// NewQuantiles returns a new Quantiles accumulator
func NewQuantiles() *Quantiles {
	return new(Quantiles)
}

// Update adds a column of cells to this accumulator, skipping nulls and NaNs
func (a *Quantiles) Update(col arrow.Array) {
	for row := 0; row < col.Len(); row++ {
		v, ok := util.CellFloat(col, row)
		if !ok || math.IsNaN(v) {
			continue
		}
		a.vals = append(a.vals, v)
	}
	a.sorted = false
}

// Merge merges another Quantiles into this one
func (a *Quantiles) Merge(o *Quantiles) {
	a.vals = append(a.vals, o.vals...)
	a.sorted = false
}

// N returns the number of values seen
func (a *Quantiles) N() int {
	return len(a.vals)
}

func (a *Quantiles) sort() {
	if !a.sorted {
		sort.Float64s(a.vals)
		a.sorted = true
	}
}

// Quantile returns the q-quantile by linear interpolation, or NaN when empty
func (a *Quantiles) Quantile(q float64) float64 {
	if len(a.vals) == 0 {
		return math.NaN()
	}
	a.sort()
	if q <= 0 {
		return a.vals[0]
	}
	if q >= 1 {
		return a.vals[len(a.vals)-1]
	}
	pos := q * float64(len(a.vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return a.vals[lo]
	}
	frac := pos - float64(lo)
	return a.vals[lo]*(1-frac) + a.vals[hi]*frac
}

// OutlierBounds returns the (tail, 1-tail) quantile pair used for
// outlier-resistant statistics
func (a *Quantiles) OutlierBounds(tailProportion float64) (float64, float64) {
	return a.Quantile(tailProportion), a.Quantile(1 - tailProportion)
}

// ClippedNumeric returns a Numeric accumulator over only the values within
// [lo, hi], for outlier-resistant moments
func (a *Quantiles) ClippedNumeric(lo, hi float64) *Numeric {
	out := NewNumeric()
	for _, v := range a.vals {
		if v < lo || v > hi {
			continue
		}
		out.n++
		delta := v - out.mean
		out.mean += delta / float64(out.n)
		out.m2 += delta * (v - out.mean)
		if v < out.min {
			out.min = v
		}
		if v > out.max {
			out.max = v
		}
	}
	return out
}

// Median returns the 0.5-quantile
func (a *Quantiles) Median() float64 {
	return a.Quantile(0.5)
}

// String renders a compact summary for logs
func (a *Numeric) String() string {
	return fmt.Sprintf("n=%d mean=%g std=%g min=%g max=%g", a.n, a.Mean(), a.Std(), a.Min(), a.Max())
}
