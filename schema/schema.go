package schema

import (
	"fmt"

	"github.com/adatao/ddf"
	"github.com/adatao/ddf/errors"
	"github.com/apache/arrow-go/v18/arrow"
)

// Schema is an ordered mapping from column names to engine column types.
// It allows one to look up types by name, derive new schemas with columns
// added, selected or dropped, etc.
type schema struct {
	names []string
	types map[string]ddf.ColumnType
}

// CreateSchema is a factory for Schemas
func CreateSchema() ddf.Schema {
	return &schema{
		names: []string{},
		types: make(map[string]ddf.ColumnType),
	}
}

// FromColumns builds a Schema from parallel name and type slices
func FromColumns(names []string, types []ddf.ColumnType) (ddf.Schema, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("Schema requires one type per column: %d names, %d types", len(names), len(types))
	}
	s := CreateSchema()
	for i, name := range names {
		var err error
		s, err = s.CreateColumn(name, types[i])
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Equals returns true iff this and another Schema are equivalent
func (s *schema) Equals(otherSchema ddf.Schema) error {
	if s.NumColumns() != otherSchema.NumColumns() {
		return fmt.Errorf("Schemas have unequal numbers of columns")
	}
	otherNames := otherSchema.ColumnNames()
	for i, name := range s.names {
		if otherNames[i] != name {
			return fmt.Errorf("Column %d is %s, not %s", i, otherNames[i], name)
		}
		otherType, err := otherSchema.ColumnType(name)
		if err != nil {
			return err
		}
		if s.types[name] != otherType {
			return fmt.Errorf("Column %s types do not match: %s vs %s", name, s.types[name], otherType)
		}
	}
	return nil
}

// Clone returns a copy of this Schema
func (s *schema) Clone() ddf.Schema {
	names := make([]string, len(s.names))
	copy(names, s.names)
	types := make(map[string]ddf.ColumnType, len(s.types))
	for k, v := range s.types {
		types[k] = v
	}
	return &schema{names: names, types: types}
}

// NumColumns returns the number of columns in this Schema
func (s *schema) NumColumns() int {
	return len(s.names)
}

// ColumnNames returns the names in the schema, in column order
func (s *schema) ColumnNames() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// ColumnTypes returns the types in the schema, in column order
func (s *schema) ColumnTypes() []ddf.ColumnType {
	types := make([]ddf.ColumnType, len(s.names))
	for i, name := range s.names {
		types[i] = s.types[name]
	}
	return types
}

// HasColumn returns true iff this schema contains a column with the given name
func (s *schema) HasColumn(colName string) bool {
	_, ok := s.types[colName]
	return ok
}

// ColumnType returns the type of the named column
func (s *schema) ColumnType(colName string) (ddf.ColumnType, error) {
	t, ok := s.types[colName]
	if !ok {
		return "", errors.MissingColumnError{Name: colName}
	}
	return t, nil
}

// CreateColumn defines a new column within the Schema, erroring if the name
// is already taken
func (s *schema) CreateColumn(colName string, columnType ddf.ColumnType) (ddf.Schema, error) {
	if _, exists := s.types[colName]; exists {
		return nil, fmt.Errorf("Schema already contains column with name %s", colName)
	}
	next := s.Clone().(*schema)
	next.names = append(next.names, colName)
	next.types[colName] = columnType
	return next, nil
}

// SetColumn defines or replaces a column within the Schema. A replaced column
// keeps its position; a new column is appended.
func (s *schema) SetColumn(colName string, columnType ddf.ColumnType) ddf.Schema {
	next := s.Clone().(*schema)
	if _, exists := next.types[colName]; !exists {
		next.names = append(next.names, colName)
	}
	next.types[colName] = columnType
	return next
}

// Select returns a Schema containing only the given columns, in the given order
func (s *schema) Select(colNames ...string) (ddf.Schema, error) {
	next := &schema{
		names: make([]string, 0, len(colNames)),
		types: make(map[string]ddf.ColumnType, len(colNames)),
	}
	for _, name := range colNames {
		t, ok := s.types[name]
		if !ok {
			return nil, errors.MissingColumnError{Name: name}
		}
		if _, dup := next.types[name]; dup {
			continue
		}
		next.names = append(next.names, name)
		next.types[name] = t
	}
	return next, nil
}

// Drop returns a Schema without the given columns. Dropping an absent column
// is not an error.
func (s *schema) Drop(colNames ...string) (ddf.Schema, error) {
	dropped := make(map[string]bool, len(colNames))
	for _, name := range colNames {
		dropped[name] = true
	}
	next := &schema{types: make(map[string]ddf.ColumnType)}
	for _, name := range s.names {
		if dropped[name] {
			continue
		}
		next.names = append(next.names, name)
		next.types[name] = s.types[name]
	}
	return next, nil
}

// ForEachColumn iterates over the columns in this Schema, in column order
func (s *schema) ForEachColumn(fn func(name string, columnType ddf.ColumnType) error) error {
	for _, name := range s.names {
		if err := fn(name, s.types[name]); err != nil {
			return err
		}
	}
	return nil
}

// FromArrow derives a Schema from an Arrow schema
func FromArrow(as *arrow.Schema) ddf.Schema {
	s := &schema{
		names: make([]string, 0, as.NumFields()),
		types: make(map[string]ddf.ColumnType, as.NumFields()),
	}
	for _, f := range as.Fields() {
		s.names = append(s.names, f.Name)
		s.types[f.Name] = ColumnTypeOf(f.Type)
	}
	return s
}

// ToArrow renders a Schema as an Arrow schema with all columns nullable
func ToArrow(s ddf.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, s.NumColumns())
	names := s.ColumnNames()
	types := s.ColumnTypes()
	for i, name := range names {
		fields = append(fields, arrow.Field{Name: name, Type: ArrowType(types[i]), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// ColumnTypeOf maps an Arrow data type to the engine type vocabulary
func ColumnTypeOf(dt arrow.DataType) ddf.ColumnType {
	switch dt.ID() {
	case arrow.BOOL:
		return ddf.Bool
	case arrow.INT8, arrow.INT16, arrow.INT32:
		return ddf.Int
	case arrow.INT64:
		return ddf.Long
	case arrow.FLOAT32:
		return ddf.Float
	case arrow.FLOAT64:
		return ddf.Double
	case arrow.STRING, arrow.LARGE_STRING:
		return ddf.String
	case arrow.BINARY, arrow.LARGE_BINARY:
		return ddf.Binary
	case arrow.DATE32, arrow.DATE64:
		return ddf.Date
	case arrow.TIMESTAMP:
		return ddf.Timestamp
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		if lt, ok := dt.(interface{ Elem() arrow.DataType }); ok {
			return ddf.ColumnType("array<" + string(ColumnTypeOf(lt.Elem())) + ">")
		}
		return ddf.ColumnType("array<>")
	case arrow.STRUCT:
		return ddf.ColumnType("struct<>")
	case arrow.MAP:
		return ddf.ColumnType("map<>")
	default:
		return ddf.ColumnType(dt.Name())
	}
}

// ArrowType maps an engine type name to its Arrow data type
func ArrowType(t ddf.ColumnType) arrow.DataType {
	switch t {
	case ddf.Bool:
		return arrow.FixedWidthTypes.Boolean
	case ddf.Int:
		return arrow.PrimitiveTypes.Int32
	case ddf.Long:
		return arrow.PrimitiveTypes.Int64
	case ddf.Float:
		return arrow.PrimitiveTypes.Float32
	case ddf.Double:
		return arrow.PrimitiveTypes.Float64
	case ddf.String, ddf.Binary:
		return arrow.BinaryTypes.String
	case ddf.Date:
		return arrow.FixedWidthTypes.Date32
	case ddf.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}
