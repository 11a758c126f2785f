package ddf

import "strings"

// ColumnType is the engine-facing type name for a Dataset column. The
// vocabulary matches the type names reported by SQL-style execution engines,
// so values round-trip cleanly through schema caches and prep plans.
type ColumnType string

// Engine type names for flat columns.
const (
	Bool      ColumnType = "boolean"
	Int       ColumnType = "int"
	Long      ColumnType = "bigint"
	Float     ColumnType = "float"
	Double    ColumnType = "double"
	String    ColumnType = "string"
	Binary    ColumnType = "binary"
	Date      ColumnType = "date"
	Timestamp ColumnType = "timestamp"
)

// IsNumeric returns true iff values of this type participate in arithmetic.
func (t ColumnType) IsNumeric() bool {
	switch t {
	case Int, Long, Float, Double:
		return true
	}
	return false
}

// IsBoolean returns true iff this is the boolean type.
func (t ColumnType) IsBoolean() bool {
	return t == Bool
}

// IsTemporal returns true iff values of this type carry date or time content.
func (t ColumnType) IsTemporal() bool {
	return t == Date || t == Timestamp
}

// IsComplex returns true iff this is a nested engine type. Complex columns
// are carried through transformations untouched but are excluded from
// profiling and feature preparation.
func (t ColumnType) IsComplex() bool {
	s := string(t)
	return strings.HasPrefix(s, "array<") ||
		strings.HasPrefix(s, "map<") ||
		strings.HasPrefix(s, "struct<")
}

// IsPossibleFeature returns true iff columns of this type may serve as model
// features once prepared.
func (t ColumnType) IsPossibleFeature() bool {
	return !t.IsComplex() && t != Binary
}

// IsPossibleCat returns true iff columns of this type may be treated as
// categorical variables.
func (t ColumnType) IsPossibleCat() bool {
	return t == Bool || t == String || t.IsNumeric()
}
