// Package columnar exports ADAT records to Apache Arrow IPC, Apache Parquet
// and Apache Avro files.
//
// Records are written in the wide layout: one row per sample, the row
// metadata fields first as string columns, then one double column per
// analyte named by its SeqId. The header and the column metadata travel in
// the file's key/value metadata so ReadRecord can rebuild the record.
package columnar

import (
	"fmt"
	"io"
	"strings"

	"github.com/SomaLogic/Canopy/pkg/adat"
	"github.com/SomaLogic/Canopy/pkg/errors"
	jsonpool "github.com/SomaLogic/Canopy/pkg/json"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Avro is Apache Avro object container format
	Avro Format = "avro"
)

// Metadata keys written alongside the rows.
const (
	MetaHeader         = "canopy.header"
	MetaColumnMetadata = "canopy.column_metadata"
	MetaFields         = "canopy.fields"
)

// FieldType is the storage type of a column.
type FieldType string

const (
	// FieldTypeString holds row metadata values verbatim.
	FieldTypeString FieldType = "string"
	// FieldTypeFloat holds measurements.
	FieldTypeFloat FieldType = "float"
)

// Field is one column of the wide layout.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Declared is the ADAT !Type of a row metadata field.
	Declared string `json:"declared,omitempty"`
}

// Schema describes the columns of an export and its file metadata.
type Schema struct {
	Name     string
	Fields   []Field
	Metadata map[string]string
}

// Row maps column names to values: string for row metadata, float64 for
// measurements.
type Row map[string]interface{}

// Writer writes rows in a columnar format
type Writer interface {
	// WriteRows writes rows in order
	WriteRows(rows []Row) error
	// WriteRow writes a single row
	WriteRow(row Row) error
	// Flush writes any buffered rows
	Flush() error
	// Close flushes and finishes the file. It does not close the
	// underlying io.Writer.
	Close() error
	// Format returns the columnar format
	Format() Format
	// BytesWritten returns bytes written to the underlying writer
	BytesWritten() int64
	// RowsWritten returns rows written
	RowsWritten() int64
}

// Reader reads rows back from a columnar file
type Reader interface {
	// ReadRows reads all remaining rows
	ReadRows() ([]Row, error)
	// Schema returns the file schema, including its metadata
	Schema() *Schema
	// Format returns the columnar format
	Format() Format
	// Close releases reader resources
	Close() error
}

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format Format
	// Compression names a codec from GetFormatInfo(Format).Compressions.
	// Empty uses the format default.
	Compression string
	BatchSize   int
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: "snappy",
		BatchSize:   1024,
	}
}

// NewWriter creates a writer for schema.
func NewWriter(w io.Writer, schema *Schema, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	cfg := *config
	config = &cfg
	if schema == nil || len(schema.Fields) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "schema is required for columnar writer")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWriterConfig().BatchSize
	}
	info := GetFormatInfo(config.Format)
	if info == nil {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported columnar format: %s", config.Format)
	}
	if !info.Supports(config.Compression) {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s does not support %q compression", info.Name, config.Compression).
			WithDetail("supported", info.Compressions)
	}

	cw := &countingWriter{w: w}
	switch config.Format {
	case Parquet:
		return newParquetWriter(cw, schema, config)
	case Arrow:
		return newArrowWriter(cw, schema, config)
	default:
		return newAvroWriter(cw, schema, config)
	}
}

// NewReader creates a reader for data in format.
func NewReader(r io.Reader, format Format) (Reader, error) {
	switch format {
	case Parquet:
		return newParquetReader(r)
	case Arrow:
		return newArrowReader(r)
	case Avro:
		return newAvroReader(r)
	default:
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported columnar format: %s", format)
	}
}

// ParseFormat maps a name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "parquet", "pq":
		return Parquet, nil
	case "arrow", "ipc", "feather":
		return Arrow, nil
	case "avro":
		return Avro, nil
	default:
		return "", errors.Newf(errors.ErrorTypeCapability, "unsupported columnar format: %s", s)
	}
}

// FormatInfo provides information about columnar formats
type FormatInfo struct {
	Format        Format
	Name          string
	FileExtension string
	MIMEType      string
	Compressions  []string
}

// Supports reports whether compression is a codec of the format. Empty
// selects the format default.
func (fi *FormatInfo) Supports(compression string) bool {
	if compression == "" {
		return true
	}
	for _, c := range fi.Compressions {
		if c == compression {
			return true
		}
	}
	return false
}

// GetFormatInfo returns information about a columnar format
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case Parquet:
		return &FormatInfo{
			Format:        Parquet,
			Name:          "Apache Parquet",
			FileExtension: ".parquet",
			MIMEType:      "application/x-parquet",
			Compressions:  []string{"none", "snappy", "gzip", "zstd"},
		}
	case Arrow:
		return &FormatInfo{
			Format:        Arrow,
			Name:          "Apache Arrow",
			FileExtension: ".arrow",
			MIMEType:      "application/vnd.apache.arrow.file",
			Compressions:  []string{"none", "lz4", "zstd"},
		}
	case Avro:
		return &FormatInfo{
			Format:        Avro,
			Name:          "Apache Avro",
			FileExtension: ".avro",
			MIMEType:      "application/avro",
			Compressions:  []string{"none", "snappy", "deflate"},
		}
	default:
		return nil
	}
}

// SchemaFor returns the wide layout schema of rec with its header and
// column metadata encoded as file metadata.
func SchemaFor(rec *adat.Record) (*Schema, error) {
	analytes, err := AnalyteNames(rec)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, rec.RowMetadata.Len()+len(analytes))
	seen := make(map[string]bool, cap(fields))
	add := func(f Field) error {
		if seen[f.Name] {
			return errors.Newf(errors.ErrorTypeData, "duplicate export column %q", f.Name).WithDetail("column", f.Name)
		}
		seen[f.Name] = true
		fields = append(fields, f)
		return nil
	}
	for _, f := range rec.RowMetadata.Fields() {
		if err := add(Field{Name: f.Name, Type: FieldTypeString, Declared: f.Type}); err != nil {
			return nil, err
		}
	}
	for _, name := range analytes {
		if err := add(Field{Name: name, Type: FieldTypeFloat}); err != nil {
			return nil, err
		}
	}

	meta, err := encodeMetadata(rec, fields)
	if err != nil {
		return nil, err
	}
	return &Schema{Name: "adat", Fields: fields, Metadata: meta}, nil
}

// AnalyteNames returns the measurement column names: the SeqIds when the
// record has them, otherwise Analyte1..N.
func AnalyteNames(rec *adat.Record) ([]string, error) {
	_, cols := rec.Shape()
	if ids := rec.ColumnMetadata.Values(adat.FieldSeqID); ids != nil {
		return ids, nil
	}
	names := make([]string, cols)
	for j := range names {
		names[j] = fmt.Sprintf("Analyte%d", j+1)
	}
	return names, nil
}

// Rows returns one Row per sample of rec.
func Rows(rec *adat.Record, schema *Schema) []Row {
	nRows, nCols := rec.Shape()
	rowFields := rec.RowMetadata.Fields()
	rows := make([]Row, nRows)
	for i := range rows {
		row := make(Row, len(schema.Fields))
		for _, f := range rowFields {
			row[f.Name] = f.Values[i]
		}
		for j := 0; j < nCols; j++ {
			row[schema.Fields[len(rowFields)+j].Name] = rec.Matrix.At(i, j)
		}
		rows[i] = row
	}
	return rows
}

// Export writes rec to w and returns the number of bytes written.
func Export(w io.Writer, rec *adat.Record, config *WriterConfig) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	schema, err := SchemaFor(rec)
	if err != nil {
		return 0, err
	}
	cw, err := NewWriter(w, schema, config)
	if err != nil {
		return 0, err
	}
	if err := cw.WriteRows(Rows(rec, schema)); err != nil {
		_ = cw.Close()
		return cw.BytesWritten(), err
	}
	if err := cw.Close(); err != nil {
		return cw.BytesWritten(), err
	}
	return cw.BytesWritten(), nil
}

// ReadRecord reads a file written by Export back into a record. Header
// values come back as strings in their canonical form.
func ReadRecord(r io.Reader, format Format) (*adat.Record, error) {
	reader, err := NewReader(r, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	rows, err := reader.ReadRows()
	if err != nil {
		return nil, err
	}
	return decodeRecord(reader.Schema(), rows)
}

type headerEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metadataField struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

func encodeMetadata(rec *adat.Record, fields []Field) (map[string]string, error) {
	header := make([]headerEntry, 0, rec.Header.Len())
	for _, k := range rec.Header.Keys() {
		v, _ := rec.Header.Get(k)
		header = append(header, headerEntry{Key: k, Value: v.Canonical()})
	}
	cols := make([]metadataField, 0, rec.ColumnMetadata.Len())
	for _, f := range rec.ColumnMetadata.Fields() {
		cols = append(cols, metadataField{Name: f.Name, Type: f.Type, Values: f.Values})
	}

	meta := make(map[string]string, 3)
	for key, v := range map[string]interface{}{
		MetaHeader:         header,
		MetaColumnMetadata: cols,
		MetaFields:         fields,
	} {
		b, err := jsonpool.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode export metadata").WithDetail("key", key)
		}
		meta[key] = string(b)
	}
	return meta, nil
}

// fieldsFromMetadata returns the Canopy field list stored in meta, if any.
func fieldsFromMetadata(meta map[string]string) ([]Field, bool) {
	raw, ok := meta[MetaFields]
	if !ok {
		return nil, false
	}
	var fields []Field
	if err := jsonpool.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func decodeRecord(schema *Schema, rows []Row) (*adat.Record, error) {
	var header []headerEntry
	var cols []metadataField
	for key, dst := range map[string]interface{}{MetaHeader: &header, MetaColumnMetadata: &cols} {
		raw, ok := schema.Metadata[key]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeFormat, "file has no %s metadata", key).WithDetail("key", key)
		}
		if err := jsonpool.Unmarshal([]byte(raw), dst); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid export metadata").WithDetail("key", key)
		}
	}

	h := adat.NewHeader()
	for _, e := range header {
		h.SetString(e.Key, e.Value)
	}

	var rowFields []adat.Field
	var analytes []string
	for _, f := range schema.Fields {
		if f.Type == FieldTypeFloat {
			analytes = append(analytes, f.Name)
			continue
		}
		rowFields = append(rowFields, adat.Field{Name: f.Name, Type: f.Declared, Values: make([]string, 0, len(rows))})
	}

	data := make([][]float64, len(rows))
	for i, row := range rows {
		for k := range rowFields {
			s, _ := row[rowFields[k].Name].(string)
			rowFields[k].Values = append(rowFields[k].Values, s)
		}
		data[i] = make([]float64, len(analytes))
		for j, name := range analytes {
			v, ok := row[name].(float64)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeFormat, "row %d: column %q is not a number", i+1, name)
			}
			data[i][j] = v
		}
	}

	rowMeta, err := adat.NewMetadata(rowFields...)
	if err != nil {
		return nil, err
	}
	colFields := make([]adat.Field, len(cols))
	for i, c := range cols {
		colFields[i] = adat.Field{Name: c.Name, Type: c.Type, Values: c.Values}
	}
	colMeta, err := adat.NewMetadata(colFields...)
	if err != nil {
		return nil, err
	}
	return adat.FromFeatures(data, rowMeta, colMeta, h)
}

// countingWriter tracks bytes handed to the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
