// Package pieceio converts dataset piece files between Parquet and Arrow
// records. Flat schemas only; nested Parquet groups are rejected.
package pieceio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/parquet-go/parquet-go"
)

// ReadOptions configures piece reads.
type ReadOptions struct {
	// CoerceBinaryToString reads binary-typed columns as string columns.
	CoerceBinaryToString bool
	// PartitionValues are constant columns appended to the record, parsed
	// from the piece's sub-path.
	PartitionValues []KV
	// Mem is the allocator for output arrays. Nil means the default.
	Mem memory.Allocator
}

func (o *ReadOptions) mem() memory.Allocator {
	if o != nil && o.Mem != nil {
		return o.Mem
	}
	return memory.DefaultAllocator
}

// KV is one partition key/value pair extracted from a piece sub-path.
type KV struct {
	Key   string
	Value string
}

// PartitionKeyValues parses the Hive-style `key=value` directory segments of
// a piece sub-path, in order. Percent-escapes in values are decoded.
func PartitionKeyValues(subPath string) []KV {
	var out []KV
	segs := strings.Split(subPath, "/")
	if len(segs) == 0 {
		return nil
	}
	for _, seg := range segs[:len(segs)-1] {
		eq := strings.IndexByte(seg, '=')
		if eq <= 0 {
			continue
		}
		val := seg[eq+1:]
		if unescaped, err := url.PathUnescape(val); err == nil {
			val = unescaped
		}
		out = append(out, KV{Key: seg[:eq], Value: val})
	}
	return out
}

// ReadFile reads one piece file from the local filesystem.
func ReadFile(ctx context.Context, path string, opts *ReadOptions) (arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return readParquet(ctx, pf, opts)
}

// ReadBytes reads one piece from an in-memory Parquet payload.
func ReadBytes(ctx context.Context, data []byte, opts *ReadOptions) (arrow.Record, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return readParquet(ctx, pf, opts)
}

func readParquet(ctx context.Context, pf *parquet.File, opts *ReadOptions) (arrow.Record, error) {
	mem := opts.mem()
	fields := pf.Schema().Fields()
	builders := make([]colBuilder, len(fields))
	arrowFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("nested Parquet column %s is not supported", f.Name())
		}
		b, af, err := newColBuilder(mem, f, opts != nil && opts.CoerceBinaryToString)
		if err != nil {
			return nil, err
		}
		builders[i] = b
		arrowFields[i] = af
	}

	buf := make([]parquet.Row, 256)
	var nRows int64
	for _, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				for _, v := range row {
					ci := v.Column()
					if ci < 0 || ci >= len(builders) {
						continue
					}
					builders[ci].append(v)
				}
				nRows++
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, err
			}
			if n == 0 {
				break
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.finish()
	}
	rec := array.NewRecord(arrow.NewSchema(arrowFields, nil), cols, nRows)
	if opts != nil && len(opts.PartitionValues) > 0 {
		withParts, err := AttachPartitionColumns(mem, rec, opts.PartitionValues)
		if err != nil {
			return nil, err
		}
		return withParts, nil
	}
	return rec, nil
}

// AttachPartitionColumns appends one constant column per partition key/value
// pair. Values which parse as integers become bigint columns; everything else
// stays string. Keys already present in the record are skipped.
func AttachPartitionColumns(mem memory.Allocator, rec arrow.Record, kvs []KV) (arrow.Record, error) {
	fields := append([]arrow.Field{}, rec.Schema().Fields()...)
	cols := make([]arrow.Array, 0, int(rec.NumCols())+len(kvs))
	for i := 0; i < int(rec.NumCols()); i++ {
		cols = append(cols, rec.Column(i))
	}
	n := int(rec.NumRows())
	for _, kv := range kvs {
		if rec.Schema().HasField(kv.Key) {
			continue
		}
		if iv, err := strconv.ParseInt(kv.Value, 10, 64); err == nil {
			b := array.NewInt64Builder(mem)
			for r := 0; r < n; r++ {
				b.Append(iv)
			}
			fields = append(fields, arrow.Field{Name: kv.Key, Type: arrow.PrimitiveTypes.Int64, Nullable: true})
			cols = append(cols, b.NewArray())
			b.Release()
			continue
		}
		b := array.NewStringBuilder(mem)
		for r := 0; r < n; r++ {
			b.Append(kv.Value)
		}
		fields = append(fields, arrow.Field{Name: kv.Key, Type: arrow.BinaryTypes.String, Nullable: true})
		cols = append(cols, b.NewArray())
		b.Release()
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows()), nil
}

// NumRows reads just the row count from a piece file's footer.
func NumRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, err
	}
	return pf.NumRows(), nil
}

type colBuilder interface {
	append(v parquet.Value)
	finish() arrow.Array
}

func newColBuilder(mem memory.Allocator, f parquet.Field, coerceBinary bool) (colBuilder, arrow.Field, error) {
	name := f.Name()
	lt := f.Type().LogicalType()
	switch f.Type().Kind() {
	case parquet.Boolean:
		return &boolBuilder{b: array.NewBooleanBuilder(mem)},
			arrow.Field{Name: name, Type: arrow.FixedWidthTypes.Boolean, Nullable: true}, nil
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return &dateBuilder{b: array.NewDate32Builder(mem)},
				arrow.Field{Name: name, Type: arrow.FixedWidthTypes.Date32, Nullable: true}, nil
		}
		return &int32Builder{b: array.NewInt32Builder(mem)},
			arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int32, Nullable: true}, nil
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			unit := arrow.Microsecond
			switch {
			case lt.Timestamp.Unit.Millis != nil:
				unit = arrow.Millisecond
			case lt.Timestamp.Unit.Nanos != nil:
				unit = arrow.Nanosecond
			}
			return &timestampBuilder{b: array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: unit, TimeZone: "UTC"})},
				arrow.Field{Name: name, Type: &arrow.TimestampType{Unit: unit, TimeZone: "UTC"}, Nullable: true}, nil
		}
		return &int64Builder{b: array.NewInt64Builder(mem)},
			arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int64, Nullable: true}, nil
	case parquet.Float:
		return &float32Builder{b: array.NewFloat32Builder(mem)},
			arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32, Nullable: true}, nil
	case parquet.Double:
		return &float64Builder{b: array.NewFloat64Builder(mem)},
			arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		isString := lt != nil && lt.UTF8 != nil
		if isString || coerceBinary {
			return &stringBuilder{b: array.NewStringBuilder(mem)},
				arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}, nil
		}
		return &binaryBuilder{b: array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)},
			arrow.Field{Name: name, Type: arrow.BinaryTypes.Binary, Nullable: true}, nil
	default:
		return nil, arrow.Field{}, fmt.Errorf("column %s: unsupported Parquet physical type %s", name, f.Type().Kind())
	}
}

type boolBuilder struct{ b *array.BooleanBuilder }

func (cb *boolBuilder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.Boolean())
}
func (cb *boolBuilder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type int32Builder struct{ b *array.Int32Builder }

func (cb *int32Builder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.Int32())
}
func (cb *int32Builder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type int64Builder struct{ b *array.Int64Builder }

func (cb *int64Builder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.Int64())
}
func (cb *int64Builder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type float32Builder struct{ b *array.Float32Builder }

func (cb *float32Builder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.Float())
}
func (cb *float32Builder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type float64Builder struct{ b *array.Float64Builder }

func (cb *float64Builder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.Double())
}
func (cb *float64Builder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type stringBuilder struct{ b *array.StringBuilder }

func (cb *stringBuilder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(string(v.ByteArray()))
}
func (cb *stringBuilder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type binaryBuilder struct{ b *array.BinaryBuilder }

func (cb *binaryBuilder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(v.ByteArray())
}
func (cb *binaryBuilder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type dateBuilder struct{ b *array.Date32Builder }

func (cb *dateBuilder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(arrow.Date32(v.Int32()))
}
func (cb *dateBuilder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }

type timestampBuilder struct{ b *array.TimestampBuilder }

func (cb *timestampBuilder) append(v parquet.Value) {
	if v.IsNull() {
		cb.b.AppendNull()
		return
	}
	cb.b.Append(arrow.Timestamp(v.Int64()))
}
func (cb *timestampBuilder) finish() arrow.Array { defer cb.b.Release(); return cb.b.NewArray() }
