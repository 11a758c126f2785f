// Package columns names the reserved columns of a Dataset and derives
// auxiliary time-component columns from its date/time column.
package columns

import (
	"strings"
	"time"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/errors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/araddon/dateparse"
)

// Default reserved column names. A Dataset may override any of them.
const (
	DefaultICol = "id"   // identity of one series
	DefaultDCol = "date" // partition date
	DefaultTCol = "t"    // observation time within a series
)

// Ordering columns derived for time-series datasets.
const (
	TOrdCol   = "__tOrd__"   // ordinal position within one identity's series
	TDeltaCol = "__tDelta__" // gap to the previous observation
)

// Categorical time components, integer-valued.
const (
	THoYCol = "__tHoY__" // half of year, 1..2
	TQoYCol = "__tQoY__" // quarter of year, 1..4
	TMoYCol = "__tMoY__" // month of year, 1..12
	TQoHCol = "__tQoH__" // quarter of half, 1..2
	TMoHCol = "__tMoH__" // month of half, 1..6
	TMoQCol = "__tMoQ__" // month of quarter, 1..3
	TWoMCol = "__tWoM__" // week of month, 1..5
	TDoMCol = "__tDoM__" // day of month, 1..31
	TDoWCol = "__tDoW__" // day of week, 1..7, Monday=1
	THoDCol = "__tHoD__" // hour of day, 0..23
)

// Numerical time components, fractions in [0, 1).
const (
	TPoYCol = "__tPoY__" // proportion of year elapsed
	TPoHCol = "__tPoH__" // proportion of half elapsed
	TPoQCol = "__tPoQ__" // proportion of quarter elapsed
	TPoMCol = "__tPoM__" // proportion of month elapsed
	TPoWCol = "__tPoW__" // proportion of week elapsed
	TPoDCol = "__tPoD__" // proportion of day elapsed
)

// CatAuxCols returns the categorical time-component column names, in
// derivation order.
func CatAuxCols() []string {
	return []string{THoYCol, TQoYCol, TMoYCol, TQoHCol, TMoHCol, TMoQCol, TWoMCol, TDoMCol, TDoWCol, THoDCol}
}

// NumAuxCols returns the numerical time-component column names, in
// derivation order.
func NumAuxCols() []string {
	return []string{TPoYCol, TPoHCol, TPoQCol, TPoMCol, TPoWCol, TPoDCol}
}

// AuxCols returns every auxiliary column name GenAux can produce.
func AuxCols() []string {
	return append(append([]string{TOrdCol, TDeltaCol}, CatAuxCols()...), NumAuxCols()...)
}

// IsAuxCol returns true iff name is a derived time-component column.
func IsAuxCol(name string) bool {
	if name == TOrdCol || name == TDeltaCol {
		return true
	}
	for _, c := range CatAuxCols() {
		if name == c {
			return true
		}
	}
	for _, c := range NumAuxCols() {
		if name == c {
			return true
		}
	}
	return false
}

// IsPrepCol returns true iff name is a derived preparation column.
func IsPrepCol(name string) bool {
	for _, prefix := range []string{
		ddf.NullFillPrefix, ddf.CatIdxPrefix, ddf.OHEPrefix,
		ddf.StdSclPrefix, ddf.MaxAbsSclPrefix, ddf.MinMaxSclPrefix,
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ParseTime interprets one cell of a date/time column. Strings are parsed
// with dateparse; Date32 and Timestamp columns are read natively.
func ParseTime(col arrow.Array, row int) (time.Time, error) {
	switch c := col.(type) {
	case *array.String:
		return dateparse.ParseAny(c.Value(row))
	case *array.Date32:
		return c.Value(row).ToTime(), nil
	case *array.Date64:
		return c.Value(row).ToTime(), nil
	case *array.Timestamp:
		tsType := c.DataType().(*arrow.TimestampType)
		return c.Value(row).ToTime(tsType.Unit), nil
	default:
		return time.Time{}, errors.IncompatibleTypeError{
			Col:  col.DataType().Name(),
			Want: "date/time",
			Got:  col.DataType().Name(),
		}
	}
}

// GenAux appends the categorical and numerical time-component columns derived
// from tCol to rec. Rows whose tCol cell is null or unparseable yield nulls in
// every derived column. Existing aux columns are replaced.
func GenAux(mem memory.Allocator, rec arrow.Record, tCol string) (arrow.Record, error) {
	idx := rec.Schema().FieldIndices(tCol)
	if len(idx) == 0 {
		return nil, errors.MissingColumnError{Name: tCol}
	}
	src := rec.Column(idx[0])
	n := int(rec.NumRows())

	catNames := CatAuxCols()
	numNames := NumAuxCols()
	catBuilders := make([]*array.Int32Builder, len(catNames))
	for i := range catBuilders {
		catBuilders[i] = array.NewInt32Builder(mem)
	}
	numBuilders := make([]*array.Float64Builder, len(numNames))
	for i := range numBuilders {
		numBuilders[i] = array.NewFloat64Builder(mem)
	}

	for row := 0; row < n; row++ {
		if src.IsNull(row) {
			for _, b := range catBuilders {
				b.AppendNull()
			}
			for _, b := range numBuilders {
				b.AppendNull()
			}
			continue
		}
		ts, err := ParseTime(src, row)
		if err != nil {
			if _, incompatible := err.(errors.IncompatibleTypeError); incompatible {
				return nil, err
			}
			for _, b := range catBuilders {
				b.AppendNull()
			}
			for _, b := range numBuilders {
				b.AppendNull()
			}
			continue
		}
		cats, nums := components(ts)
		for i, b := range catBuilders {
			b.Append(cats[i])
		}
		for i, b := range numBuilders {
			b.Append(nums[i])
		}
	}

	fields := make([]arrow.Field, 0, int(rec.NumCols())+len(catNames)+len(numNames))
	cols := make([]arrow.Array, 0, cap(fields))
	for i, f := range rec.Schema().Fields() {
		if IsAuxCol(f.Name) {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, rec.Column(i))
	}
	for i, name := range catNames {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int32, Nullable: true})
		cols = append(cols, catBuilders[i].NewArray())
	}
	for i, name := range numNames {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
		cols = append(cols, numBuilders[i].NewArray())
	}
	out := array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows())
	return out, nil
}

// components computes the categorical and numerical time components of ts,
// in the orders of CatAuxCols and NumAuxCols.
func components(ts time.Time) ([]int32, []float64) {
	year, month, day := ts.Date()
	mo := int32(month)
	qoy := (mo-1)/3 + 1
	hoy := (mo-1)/6 + 1
	qoh := (qoy-1)%2 + 1
	moh := (mo-1)%6 + 1
	moq := (mo-1)%3 + 1
	dom := int32(day)
	wom := (dom-1)/7 + 1
	dow := int32(ts.Weekday())
	if dow == 0 {
		dow = 7 // Sunday
	}
	hod := int32(ts.Hour())

	fracOfDay := (float64(ts.Hour())*3600 + float64(ts.Minute())*60 +
		float64(ts.Second()) + float64(ts.Nanosecond())/1e9) / 86400

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, ts.Location())
	yearEnd := yearStart.AddDate(1, 0, 0)
	poy := elapsedProportion(ts, yearStart, yearEnd)

	hStartMonth := time.Month((hoy-1)*6 + 1)
	hStart := time.Date(year, hStartMonth, 1, 0, 0, 0, 0, ts.Location())
	hEnd := hStart.AddDate(0, 6, 0)
	poh := elapsedProportion(ts, hStart, hEnd)

	qStartMonth := time.Month((qoy-1)*3 + 1)
	qStart := time.Date(year, qStartMonth, 1, 0, 0, 0, 0, ts.Location())
	qEnd := qStart.AddDate(0, 3, 0)
	poq := elapsedProportion(ts, qStart, qEnd)

	mStart := time.Date(year, month, 1, 0, 0, 0, 0, ts.Location())
	mEnd := mStart.AddDate(0, 1, 0)
	pom := elapsedProportion(ts, mStart, mEnd)

	pow := (float64(dow-1) + fracOfDay) / 7

	cats := []int32{hoy, qoy, mo, qoh, moh, moq, wom, dom, dow, hod}
	nums := []float64{poy, poh, poq, pom, pow, fracOfDay}
	return cats, nums
}

func elapsedProportion(ts, start, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 0
	}
	return float64(ts.Sub(start)) / float64(total)
}
