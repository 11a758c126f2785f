package pieceio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/parquet-go/parquet-go"
)

// WriteOptions configures piece writes.
type WriteOptions struct {
	// Compression is one of "snappy", "gzip", "zstd" or "" for uncompressed.
	Compression string
	// BatchSize is the number of rows buffered per WriteRows call.
	BatchSize int
}

func (o *WriteOptions) compression() string {
	if o == nil {
		return "snappy"
	}
	return o.Compression
}

func (o *WriteOptions) batchSize() int {
	if o == nil || o.BatchSize <= 0 {
		return 1000
	}
	return o.BatchSize
}

// WriteFile writes rec as one Parquet piece file, creating parent
// directories as needed.
func WriteFile(path string, rec arrow.Record, opts *WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTo(f, rec, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTo writes rec as a Parquet payload. Columns are stored in the
// alphabetical order Parquet groups impose; all columns are optional.
func WriteTo(w io.Writer, rec arrow.Record, opts *WriteOptions) error {
	group := make(parquet.Group)
	for _, f := range rec.Schema().Fields() {
		node, err := arrowFieldToParquetNode(f)
		if err != nil {
			return err
		}
		group[f.Name] = parquet.Optional(node)
	}
	schema := parquet.NewSchema("dataframe", group)

	writerOpts := []parquet.WriterOption{schema}
	switch opts.compression() {
	case "snappy":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Snappy))
	case "gzip":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Gzip))
	case "zstd":
		writerOpts = append(writerOpts, parquet.Compression(&parquet.Zstd))
	}
	pw := parquet.NewWriter(w, writerOpts...)

	// leaf order follows the schema's sorted fields, not the record's
	leafIdx := make(map[string]int, len(schema.Fields()))
	for i, f := range schema.Fields() {
		leafIdx[f.Name()] = i
	}
	recCols := make([]arrow.Array, rec.NumCols())
	colOrder := make([]int, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		recCols[i] = rec.Column(i)
		colOrder[i] = leafIdx[f.Name]
	}

	batchSize := opts.batchSize()
	width := int(rec.NumCols())
	height := int(rec.NumRows())
	rows := make([]parquet.Row, 0, batchSize)
	for r := 0; r < height; r++ {
		row := make(parquet.Row, width)
		for c := 0; c < width; c++ {
			leaf := colOrder[c]
			row[leaf] = cellToParquetValue(recCols[c], r).Level(0, defLevel(recCols[c], r), leaf)
		}
		rows = append(rows, row)
		if len(rows) >= batchSize {
			if _, err := pw.WriteRows(rows); err != nil {
				return fmt.Errorf("failed to write rows at %d: %w", r-len(rows)+1, err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.WriteRows(rows); err != nil {
			return fmt.Errorf("failed to write final rows: %w", err)
		}
	}
	return pw.Close()
}

func defLevel(col arrow.Array, row int) int {
	if col.IsNull(row) {
		return 0
	}
	return 1
}

func arrowFieldToParquetNode(f arrow.Field) (parquet.Node, error) {
	switch f.Type.ID() {
	case arrow.BOOL:
		return parquet.Leaf(parquet.BooleanType), nil
	case arrow.INT32:
		return parquet.Leaf(parquet.Int32Type), nil
	case arrow.INT64:
		return parquet.Leaf(parquet.Int64Type), nil
	case arrow.FLOAT32:
		return parquet.Leaf(parquet.FloatType), nil
	case arrow.FLOAT64:
		return parquet.Leaf(parquet.DoubleType), nil
	case arrow.STRING, arrow.LARGE_STRING:
		return parquet.String(), nil
	case arrow.BINARY, arrow.LARGE_BINARY:
		return parquet.Leaf(parquet.ByteArrayType), nil
	case arrow.DATE32:
		return parquet.Date(), nil
	case arrow.TIMESTAMP:
		unit := f.Type.(*arrow.TimestampType).Unit
		switch unit {
		case arrow.Millisecond:
			return parquet.Timestamp(parquet.Millisecond), nil
		case arrow.Nanosecond:
			return parquet.Timestamp(parquet.Nanosecond), nil
		default:
			return parquet.Timestamp(parquet.Microsecond), nil
		}
	default:
		return nil, fmt.Errorf("column %s: cannot write Arrow type %s to Parquet", f.Name, f.Type)
	}
}

func cellToParquetValue(col arrow.Array, row int) parquet.Value {
	if col.IsNull(row) {
		return parquet.NullValue()
	}
	switch c := col.(type) {
	case *array.Boolean:
		return parquet.BooleanValue(c.Value(row))
	case *array.Int32:
		return parquet.Int32Value(c.Value(row))
	case *array.Int64:
		return parquet.Int64Value(c.Value(row))
	case *array.Float32:
		return parquet.FloatValue(c.Value(row))
	case *array.Float64:
		return parquet.DoubleValue(c.Value(row))
	case *array.String:
		return parquet.ByteArrayValue([]byte(c.Value(row)))
	case *array.LargeString:
		return parquet.ByteArrayValue([]byte(c.Value(row)))
	case *array.Binary:
		return parquet.ByteArrayValue(c.Value(row))
	case *array.Date32:
		return parquet.Int32Value(int32(c.Value(row)))
	case *array.Timestamp:
		return parquet.Int64Value(int64(c.Value(row)))
	}
	return parquet.NullValue()
}
