package columnar

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/SomaLogic/Canopy/pkg/errors"
)

// arrowWriter implements Writer for Arrow format
type arrowWriter struct {
	writer        *countingWriter
	config        *WriterConfig
	schema        *Schema
	arrowSchema   *arrow.Schema
	fileWriter    *ipc.FileWriter
	recordBuilder *array.RecordBuilder
	rowsWritten   int64
	currentBatch  int
	mu            sync.Mutex
}

func newArrowWriter(w *countingWriter, schema *Schema, config *WriterConfig) (*arrowWriter, error) {
	arrowSchema := toArrowSchema(schema)
	pool := memory.NewGoAllocator()

	opts := []ipc.Option{ipc.WithSchema(arrowSchema), ipc.WithAllocator(pool)}
	switch config.Compression {
	case "lz4":
		opts = append(opts, ipc.WithLZ4())
	case "zstd":
		opts = append(opts, ipc.WithZstd())
	}

	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Arrow writer")
	}

	return &arrowWriter{
		writer:        w,
		config:        config,
		schema:        schema,
		arrowSchema:   arrowSchema,
		fileWriter:    fw,
		recordBuilder: array.NewRecordBuilder(pool, arrowSchema),
	}, nil
}

func (aw *arrowWriter) WriteRow(row Row) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if err := appendRow(aw.recordBuilder, aw.schema, row); err != nil {
		return err
	}
	aw.currentBatch++

	if aw.currentBatch >= aw.config.BatchSize {
		return aw.flushBatch()
	}
	return nil
}

func (aw *arrowWriter) WriteRows(rows []Row) error {
	for _, row := range rows {
		if err := aw.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (aw *arrowWriter) Flush() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.flushBatch()
}

func (aw *arrowWriter) Close() error {
	if err := aw.Flush(); err != nil {
		return err
	}

	aw.mu.Lock()
	defer aw.mu.Unlock()

	aw.recordBuilder.Release()
	if err := aw.fileWriter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close Arrow writer")
	}
	return nil
}

func (aw *arrowWriter) Format() Format {
	return Arrow
}

func (aw *arrowWriter) BytesWritten() int64 {
	return aw.writer.n
}

func (aw *arrowWriter) RowsWritten() int64 {
	return aw.rowsWritten
}

func (aw *arrowWriter) flushBatch() error {
	if aw.currentBatch == 0 {
		return nil
	}

	record := aw.recordBuilder.NewRecord()
	defer record.Release()

	if err := aw.fileWriter.Write(record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}

	aw.rowsWritten += int64(aw.currentBatch)
	aw.currentBatch = 0
	return nil
}

// arrowReader implements Reader for Arrow format
type arrowReader struct {
	fileReader *ipc.FileReader
	schema     *Schema
	batchIndex int
	mu         sync.Mutex
}

func newArrowReader(r io.Reader) (*arrowReader, error) {
	// The IPC file footer needs random access.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Arrow data")
	}

	reader, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to create Arrow reader")
	}

	return &arrowReader{
		fileReader: reader,
		schema:     fromArrowSchema(reader.Schema()),
	}, nil
}

func (ar *arrowReader) ReadRows() ([]Row, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	var rows []Row
	for ; ar.batchIndex < ar.fileReader.NumRecords(); ar.batchIndex++ {
		record, err := ar.fileReader.Record(ar.batchIndex)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read record batch").
				WithDetail("batch", ar.batchIndex)
		}
		rows = append(rows, recordRows(record)...)
	}
	return rows, nil
}

func (ar *arrowReader) Schema() *Schema {
	return ar.schema
}

func (ar *arrowReader) Format() Format {
	return Arrow
}

func (ar *arrowReader) Close() error {
	return ar.fileReader.Close()
}

// Schema conversion helpers shared by the Arrow and Parquet formats.

func toArrowSchema(schema *Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: toArrowType(f.Type)}
	}

	keys := make([]string, 0, len(schema.Metadata))
	for k := range schema.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = schema.Metadata[k]
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md)
}

func toArrowType(t FieldType) arrow.DataType {
	if t == FieldTypeFloat {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

func fromArrowSchema(as *arrow.Schema) *Schema {
	md := as.Metadata()
	meta := make(map[string]string, md.Len())
	for i, k := range md.Keys() {
		meta[k] = md.Values()[i]
	}

	schema := &Schema{Name: "adat", Metadata: meta}
	if fields, ok := fieldsFromMetadata(meta); ok && len(fields) == as.NumFields() {
		schema.Fields = fields
		return schema
	}
	for _, f := range as.Fields() {
		t := FieldTypeString
		switch f.Type.ID() {
		case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
			t = FieldTypeFloat
		}
		schema.Fields = append(schema.Fields, Field{Name: f.Name, Type: t})
	}
	return schema
}

func appendRow(rb *array.RecordBuilder, schema *Schema, row Row) error {
	for i, f := range schema.Fields {
		value, ok := row[f.Name]
		builder := rb.Field(i)
		if !ok || value == nil {
			builder.AppendNull()
			continue
		}
		if err := appendArrowValue(builder, value); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to append value").WithDetail("field", f.Name)
		}
	}
	return nil
}

// Helper function to append values to Arrow builders
func appendArrowValue(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.Float64Builder:
		switch v := value.(type) {
		case float32:
			b.Append(float64(v))
		case float64:
			b.Append(v)
		case int:
			b.Append(float64(v))
		default:
			return fmt.Errorf("cannot store %T as float64", value)
		}

	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}

	default:
		return fmt.Errorf("unsupported builder type: %T", builder)
	}

	return nil
}

func recordRows(record arrow.Record) []Row {
	rows := make([]Row, record.NumRows())
	for r := range rows {
		rows[r] = make(Row, record.NumCols())
	}
	for c := 0; c < int(record.NumCols()); c++ {
		col := record.Column(c)
		name := record.Schema().Field(c).Name
		for r := range rows {
			rows[r][name] = getArrowColumnValue(col, r)
		}
	}
	return rows
}

// Helper function to get Arrow column values
func getArrowColumnValue(col arrow.Array, rowIdx int) interface{} {
	if col.IsNull(rowIdx) {
		return nil
	}

	switch c := col.(type) {
	case *array.Float64:
		return c.Value(rowIdx)
	case *array.Float32:
		return float64(c.Value(rowIdx))
	case *array.Int64:
		return float64(c.Value(rowIdx))
	case *array.String:
		return strings.Clone(c.Value(rowIdx))
	case *array.LargeString:
		return strings.Clone(c.Value(rowIdx))
	case *array.Binary:
		return string(c.Value(rowIdx))
	default:
		return nil
	}
}
