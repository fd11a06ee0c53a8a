package writers

import (
	"context"
	"errors"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	log "github.com/sirupsen/logrus"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Parquet writes one table as a single-row-group Parquet file. Columns
// map to nullable int64, float64 or utf8 fields.
type Parquet struct {
	opts Options
}

// Name implements Writer.
func (w *Parquet) Name() string { return KindParquet }

// Write implements Writer.
func (w *Parquet) Write(ctx context.Context, a *abstraction.Abstraction) error {
	t, err := selectTable(a, w.opts)
	if err != nil {
		return err
	}

	allocator := memory.NewGoAllocator()
	fields := make([]arrow.Field, t.NumColumns())
	columns := make([]arrow.Array, t.NumColumns())
	defer func() {
		for _, c := range columns {
			if c != nil {
				c.Release()
			}
		}
	}()
	for i, name := range t.Columns() {
		values := t.ColumnAt(i)
		dt := arrowType(values)
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
		columns[i] = buildColumn(allocator, dt, values)
	}
	schema := arrow.NewSchema(fields, nil)
	record := array.NewRecord(schema, columns, int64(t.NumRows()))
	defer record.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	f, commit, abort, err := createAtomic(w.opts.Filename)
	if err != nil {
		return err
	}
	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec(w.opts.Compression)),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024*1024),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, f, writerProps, arrowProps)
	if err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "failed to create parquet writer")
	}
	if err := fw.Write(record); err != nil {
		fw.Close()
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "failed to write parquet record")
	}
	// Closing the parquet writer also closes the file.
	if err := fw.Close(); err != nil {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "failed to close parquet writer")
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		abort()
		return dsierr.Wrap(err, dsierr.KindIO, "failed to close parquet file")
	}
	if err := commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"table":       t.Name,
		"rows":        t.NumRows(),
		"compression": w.opts.Compression.String(),
		"path":        w.opts.Filename,
	}).Debug("parquet written")
	return nil
}

func codec(c CompressionType) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// arrowType picks the narrowest type holding every non-null value.
func arrowType(values []abstraction.Value) arrow.DataType {
	kind := abstraction.KindNull
	for _, v := range values {
		switch {
		case v.IsNull():
		case v.Kind() == abstraction.KindText:
			return arrow.BinaryTypes.String
		case v.Kind() == abstraction.KindFloat:
			kind = abstraction.KindFloat
		case kind == abstraction.KindNull:
			kind = abstraction.KindInteger
		}
	}
	switch kind {
	case abstraction.KindInteger:
		return arrow.PrimitiveTypes.Int64
	case abstraction.KindFloat:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

func buildColumn(mem memory.Allocator, dt arrow.DataType, values []abstraction.Value) arrow.Array {
	switch dt.ID() {
	case arrow.INT64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range values {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.Int64())
			}
		}
		return b.NewArray()
	case arrow.FLOAT64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for _, v := range values {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.Float64())
			}
		}
		return b.NewArray()
	default:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range values {
			if v.IsNull() {
				b.AppendNull()
			} else {
				b.Append(v.String())
			}
		}
		return b.NewArray()
	}
}
