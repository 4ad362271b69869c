package columnar

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/SomaLogic/Canopy/pkg/errors"
)

// parquetWriter implements Writer for Parquet format
type parquetWriter struct {
	writer        *countingWriter
	config        *WriterConfig
	schema        *Schema
	fileWriter    *pqarrow.FileWriter
	recordBuilder *array.RecordBuilder
	rowsWritten   int64
	currentBatch  int
	mu            sync.Mutex
}

func newParquetWriter(w *countingWriter, schema *Schema, config *WriterConfig) (*parquetWriter, error) {
	arrowSchema := toArrowSchema(schema)
	pool := memory.NewGoAllocator()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(getParquetCompression(config.Compression)),
		parquet.WithDictionaryDefault(true),
		parquet.WithMaxRowGroupLength(int64(config.BatchSize)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(pool),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(arrowSchema, w, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Parquet writer")
	}

	return &parquetWriter{
		writer:        w,
		config:        config,
		schema:        schema,
		fileWriter:    fw,
		recordBuilder: array.NewRecordBuilder(pool, arrowSchema),
	}, nil
}

func (pw *parquetWriter) WriteRow(row Row) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if err := appendRow(pw.recordBuilder, pw.schema, row); err != nil {
		return err
	}
	pw.currentBatch++

	if pw.currentBatch >= pw.config.BatchSize {
		return pw.flushBatch()
	}
	return nil
}

func (pw *parquetWriter) WriteRows(rows []Row) error {
	for _, row := range rows {
		if err := pw.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (pw *parquetWriter) Flush() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.flushBatch()
}

func (pw *parquetWriter) Close() error {
	if err := pw.Flush(); err != nil {
		return err
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.recordBuilder.Release()
	if err := pw.fileWriter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close Parquet writer")
	}
	return nil
}

func (pw *parquetWriter) Format() Format {
	return Parquet
}

func (pw *parquetWriter) BytesWritten() int64 {
	return pw.writer.n
}

func (pw *parquetWriter) RowsWritten() int64 {
	return pw.rowsWritten
}

func (pw *parquetWriter) flushBatch() error {
	if pw.currentBatch == 0 {
		return nil
	}

	record := pw.recordBuilder.NewRecord()
	defer record.Release()

	if err := pw.fileWriter.WriteBuffered(record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}

	pw.rowsWritten += int64(pw.currentBatch)
	pw.currentBatch = 0
	return nil
}

// parquetReader implements Reader for Parquet format
type parquetReader struct {
	fileReader  *file.Reader
	arrowReader *pqarrow.FileReader
	schema      *Schema
	done        bool
	mu          sync.Mutex
}

func newParquetReader(r io.Reader) (*parquetReader, error) {
	// Parquet metadata lives in the footer, so the reader needs random access.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Parquet data")
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to create Parquet reader")
	}

	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to create Arrow reader")
	}

	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to get Arrow schema")
	}

	return &parquetReader{
		fileReader:  fr,
		arrowReader: arrowReader,
		schema:      fromArrowSchema(arrowSchema),
	}, nil
}

func (pr *parquetReader) ReadRows() ([]Row, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.done {
		return nil, nil
	}
	pr.done = true

	rr, err := pr.arrowReader.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read Parquet row groups")
	}
	defer rr.Release()

	rows := make([]Row, 0, pr.fileReader.NumRows())
	for rr.Next() {
		rows = append(rows, recordRows(rr.Record())...)
	}
	if err := rr.Err(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "failed to read Parquet records")
	}
	return rows, nil
}

func (pr *parquetReader) Schema() *Schema {
	return pr.schema
}

func (pr *parquetReader) Format() Format {
	return Parquet
}

func (pr *parquetReader) Close() error {
	return pr.fileReader.Close()
}

func getParquetCompression(compression string) compress.Compression {
	switch compression {
	case "none":
		return compress.Codecs.Uncompressed
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Snappy
	}
}
