package columnar

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/linkedin/goavro/v2"

	"github.com/SomaLogic/Canopy/pkg/errors"
	jsonpool "github.com/SomaLogic/Canopy/pkg/json"
)

// avroWriter implements Writer for Avro format
type avroWriter struct {
	writer      *countingWriter
	config      *WriterConfig
	schema      *Schema
	names       []string
	ocfWriter   *goavro.OCFWriter
	buffer      []interface{}
	rowsWritten int64
	mu          sync.Mutex
}

func newAvroWriter(w *countingWriter, schema *Schema, config *WriterConfig) (*avroWriter, error) {
	names := avroNames(schema.Fields)
	avroSchema, err := toAvroSchema(schema, names)
	if err != nil {
		return nil, err
	}

	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create Avro codec")
	}

	meta := make(map[string][]byte, len(schema.Metadata))
	for k, v := range schema.Metadata {
		meta[k] = []byte(v)
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: getAvroCompression(config.Compression),
		MetaData:        meta,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Avro writer")
	}

	return &avroWriter{
		writer:    w,
		config:    config,
		schema:    schema,
		names:     names,
		ocfWriter: ocfWriter,
		buffer:    make([]interface{}, 0, config.BatchSize),
	}, nil
}

func (aw *avroWriter) WriteRow(row Row) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	native, err := aw.toNative(row)
	if err != nil {
		return err
	}
	aw.buffer = append(aw.buffer, native)

	if len(aw.buffer) >= aw.config.BatchSize {
		return aw.flushBatch()
	}
	return nil
}

func (aw *avroWriter) WriteRows(rows []Row) error {
	for _, row := range rows {
		if err := aw.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (aw *avroWriter) Flush() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	return aw.flushBatch()
}

// Close flushes buffered rows. An OCF file is complete after every block.
func (aw *avroWriter) Close() error {
	return aw.Flush()
}

func (aw *avroWriter) Format() Format {
	return Avro
}

func (aw *avroWriter) BytesWritten() int64 {
	return aw.writer.n
}

func (aw *avroWriter) RowsWritten() int64 {
	return aw.rowsWritten
}

func (aw *avroWriter) flushBatch() error {
	if len(aw.buffer) == 0 {
		return nil
	}

	if err := aw.ocfWriter.Append(aw.buffer); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write Avro block")
	}

	aw.rowsWritten += int64(len(aw.buffer))
	aw.buffer = aw.buffer[:0]
	return nil
}

func (aw *avroWriter) toNative(row Row) (map[string]interface{}, error) {
	native := make(map[string]interface{}, len(aw.schema.Fields))
	for i, f := range aw.schema.Fields {
		value := row[f.Name]
		switch f.Type {
		case FieldTypeFloat:
			v, ok := value.(float64)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeData, "cannot store %T as double", value).WithDetail("field", f.Name)
			}
			native[aw.names[i]] = v
		default:
			s, ok := value.(string)
			if !ok && value != nil {
				s = fmt.Sprintf("%v", value)
			}
			native[aw.names[i]] = s
		}
	}
	return native, nil
}

// avroReader implements Reader for Avro format
type avroReader struct {
	ocfReader *goavro.OCFReader
	schema    *Schema
	names     []string
	mu        sync.Mutex
}

func newAvroReader(r io.Reader) (*avroReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Avro data")
	}

	ocfReader, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to create Avro reader")
	}

	schema, err := fromAvroMetadata(ocfReader)
	if err != nil {
		return nil, err
	}

	return &avroReader{
		ocfReader: ocfReader,
		schema:    schema,
		names:     avroNames(schema.Fields),
	}, nil
}

func (ar *avroReader) ReadRows() ([]Row, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	var rows []Row
	for ar.ocfReader.Scan() {
		datum, err := ar.ocfReader.Read()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read Avro record")
		}
		m, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeFormat, "unexpected Avro datum %T", datum)
		}
		row := make(Row, len(ar.schema.Fields))
		for i, f := range ar.schema.Fields {
			row[f.Name] = m[ar.names[i]]
		}
		rows = append(rows, row)
	}
	if err := ar.ocfReader.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read Avro blocks")
	}
	return rows, nil
}

func (ar *avroReader) Schema() *Schema {
	return ar.schema
}

func (ar *avroReader) Format() Format {
	return Avro
}

func (ar *avroReader) Close() error {
	return nil
}

// Schema conversion helpers

// avroNames maps column names to valid, unique Avro field names. SeqIds such
// as 10000-28 become _10000_28.
func avroNames(fields []Field) []string {
	names := make([]string, len(fields))
	used := make(map[string]bool, len(fields))
	for i, f := range fields {
		var b strings.Builder
		for j, r := range f.Name {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
				b.WriteRune(r)
			case r >= '0' && r <= '9':
				if j == 0 {
					b.WriteByte('_')
				}
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		name := b.String()
		if name == "" {
			name = "_"
		}
		base := name
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func toAvroSchema(schema *Schema, names []string) (string, error) {
	fields := make([]map[string]interface{}, 0, len(schema.Fields))
	for i, f := range schema.Fields {
		avroType := "string"
		if f.Type == FieldTypeFloat {
			avroType = "double"
		}
		fields = append(fields, map[string]interface{}{
			"name": names[i],
			"type": avroType,
			"doc":  f.Name,
		})
	}

	schemaMap := map[string]interface{}{
		"type":      "record",
		"name":      schema.Name,
		"namespace": "canopy",
		"fields":    fields,
	}
	schemaBytes, err := jsonpool.Marshal(schemaMap)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode Avro schema")
	}
	return string(schemaBytes), nil
}

func fromAvroMetadata(ocfReader *goavro.OCFReader) (*Schema, error) {
	meta := make(map[string]string)
	for k, v := range ocfReader.MetaData() {
		if strings.HasPrefix(k, "avro.") {
			continue
		}
		meta[k] = string(v)
	}

	fields, ok := fieldsFromMetadata(meta)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeFormat, "Avro file has no %s metadata", MetaFields)
	}
	return &Schema{Name: "adat", Fields: fields, Metadata: meta}, nil
}

func getAvroCompression(compression string) string {
	switch compression {
	case "snappy":
		return goavro.CompressionSnappyLabel
	case "deflate":
		return goavro.CompressionDeflateLabel
	case "none":
		return goavro.CompressionNullLabel
	default:
		return goavro.CompressionSnappyLabel
	}
}
