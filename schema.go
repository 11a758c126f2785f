package ddf

// Schema is an ordered mapping from column names to engine column types.
// It allows one to look up types by name, derive new schemas with columns
// added, selected or dropped, etc. Implementations live in the schema
// subpackage; Schemas are treated as immutable once attached to a Dataset.
type Schema interface {
	Equals(otherSchema Schema) error
	Clone() Schema
	NumColumns() int
	ColumnNames() []string
	ColumnTypes() []ColumnType
	HasColumn(colName string) bool
	ColumnType(colName string) (ColumnType, error)
	CreateColumn(colName string, columnType ColumnType) (newSchema Schema, err error)
	SetColumn(colName string, columnType ColumnType) (newSchema Schema)
	Select(colNames ...string) (newSchema Schema, err error)
	Drop(colNames ...string) (newSchema Schema, err error)
	ForEachColumn(fn func(name string, columnType ColumnType) error) error
}
