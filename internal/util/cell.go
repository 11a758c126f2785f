package util

import (
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// RenderCell produces the canonical string rendering of one cell. Categorical
// level vocabularies and their encoders both rely on this rendering, so it
// must stay stable across releases.
func RenderCell(col arrow.Array, row int) (string, bool) {
	if col.IsNull(row) {
		return "", false
	}
	switch c := col.(type) {
	case *array.Boolean:
		return strconv.FormatBool(c.Value(row)), true
	case *array.Int8:
		return strconv.FormatInt(int64(c.Value(row)), 10), true
	case *array.Int16:
		return strconv.FormatInt(int64(c.Value(row)), 10), true
	case *array.Int32:
		return strconv.FormatInt(int64(c.Value(row)), 10), true
	case *array.Int64:
		return strconv.FormatInt(c.Value(row), 10), true
	case *array.Float32:
		return strconv.FormatFloat(float64(c.Value(row)), 'g', -1, 64), true
	case *array.Float64:
		return strconv.FormatFloat(c.Value(row), 'g', -1, 64), true
	case *array.String:
		return c.Value(row), true
	case *array.LargeString:
		return c.Value(row), true
	case *array.Binary:
		return string(c.Value(row)), true
	case *array.Date32:
		return c.Value(row).ToTime().Format("2006-01-02"), true
	case *array.Date64:
		return c.Value(row).ToTime().Format("2006-01-02"), true
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(row).ToTime(unit).UTC().Format("2006-01-02 15:04:05"), true
	}
	return "", false
}

// CellFloat reads one cell as a float64, returning false for nulls and
// non-numeric columns.
func CellFloat(col arrow.Array, row int) (float64, bool) {
	if col.IsNull(row) {
		return 0, false
	}
	switch c := col.(type) {
	case *array.Int8:
		return float64(c.Value(row)), true
	case *array.Int16:
		return float64(c.Value(row)), true
	case *array.Int32:
		return float64(c.Value(row)), true
	case *array.Int64:
		return float64(c.Value(row)), true
	case *array.Float32:
		return float64(c.Value(row)), true
	case *array.Float64:
		return c.Value(row), true
	}
	return 0, false
}
