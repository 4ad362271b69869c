package adat

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SomaLogic/Canopy/pkg/compression"
	"github.com/SomaLogic/Canopy/pkg/errors"
)

const lineEnding = "\r\n"

// WriteOptions controls serialization.
type WriteOptions struct {
	// RoundRFU writes measurements with one decimal place, rounding half to
	// even. When false the shortest exact representation is written.
	RoundRFU bool
	// ConvertToV3SeqIDs merges SeqIdVersion back into SeqId as
	// "<SeqId>_<Version>" and drops the SeqIdVersion field.
	ConvertToV3SeqIDs bool
	// Level is the compression level used by WriteFile for compressed
	// suffixes.
	Level compression.Level
}

// DefaultWriteOptions returns the options used by the command line tools.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		RoundRFU:          true,
		ConvertToV3SeqIDs: false,
		Level:             compression.Default,
	}
}

// Write serializes rec to w. The same record and options always produce the
// same bytes. Nothing is written when rec cannot be represented.
func Write(w io.Writer, rec *Record, opts WriteOptions) error {
	body, err := Marshal(rec, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write adat")
	}
	return nil
}

// WriteFile writes rec to path, compressing by file suffix.
func WriteFile(path string, rec *Record, opts WriteOptions) (err error) {
	body, err := Marshal(rec, opts)
	if err != nil {
		return err
	}

	wc, err := compression.CreateFile(path, opts.Level)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create adat file").WithDetail("path", path)
	}
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close adat file").WithDetail("path", path)
		}
	}()

	if _, err := wc.Write(body); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write adat file").WithDetail("path", path)
	}
	return nil
}

// Marshal returns the serialized form of rec.
func Marshal(rec *Record, opts WriteOptions) ([]byte, error) {
	if rec == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "nil record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.RowMetadata.Len() == 0 && (rec.ColumnMetadata.Len() > 0 || rec.Matrix.Rows() > 0) {
		return nil, errors.New(errors.ErrorTypeData, "record has no row metadata fields")
	}

	cols := rec.ColumnMetadata
	if opts.ConvertToV3SeqIDs {
		cols = mergeSeqIDVersions(cols)
	}

	var body bytes.Buffer
	if err := writeHeader(&body, rec.Header); err != nil {
		return nil, err
	}

	body.WriteString(markerColData + lineEnding)
	if err := writeDeclaration(&body, cols, "column"); err != nil {
		return nil, err
	}
	body.WriteString(markerRowData + lineEnding)
	if err := writeDeclaration(&body, rec.RowMetadata, "row"); err != nil {
		return nil, err
	}

	body.WriteString(markerTable + lineEnding)
	width := rec.RowMetadata.Len()
	ncols := rec.Matrix.Cols()
	prefix := strings.Repeat("\t", width)
	for _, f := range cols.Fields() {
		if err := checkCells(f.Values, "column", f.Name); err != nil {
			return nil, err
		}
		body.WriteString(prefix)
		body.WriteString(f.Name)
		for _, v := range f.Values {
			body.WriteByte('\t')
			body.WriteString(v)
		}
		body.WriteString(lineEnding)
	}

	body.WriteString(strings.Join(rec.RowMetadata.Names(), "\t"))
	body.WriteString(strings.Repeat("\t", ncols+1))
	body.WriteString(lineEnding)

	rows := rec.RowMetadata.Fields()
	for _, f := range rows {
		if err := checkCells(f.Values, "row", f.Name); err != nil {
			return nil, err
		}
	}
	for i := 0; i < rec.Matrix.Rows(); i++ {
		for c, f := range rows {
			if c > 0 {
				body.WriteByte('\t')
			}
			body.WriteString(f.Values[i])
		}
		body.WriteByte('\t')
		for j := 0; j < ncols; j++ {
			body.WriteByte('\t')
			body.WriteString(formatMeasurement(rec.Matrix.At(i, j), opts.RoundRFU))
		}
		body.WriteString(lineEnding)
	}

	sum := sha1.Sum(body.Bytes())
	out := make([]byte, 0, body.Len()+64)
	out = append(out, checksumKey+"\t"...)
	out = append(out, hex.EncodeToString(sum[:])...)
	out = append(out, lineEnding...)
	out = append(out, body.Bytes()...)
	return out, nil
}

func writeHeader(buf *bytes.Buffer, h Header) error {
	buf.WriteString(markerHeader + lineEnding)
	for _, key := range h.Keys() {
		if key == "" {
			return errors.New(errors.ErrorTypeData, "header key is empty")
		}
		if strings.HasPrefix(key, "^") || key == checksumKey {
			return errors.Newf(errors.ErrorTypeData, "header key %q is reserved", key).WithDetail("key", key)
		}
		if strings.ContainsAny(key, "\t\r\n") {
			return errors.Newf(errors.ErrorTypeData, "header key %q contains a tab or newline", key).WithDetail("key", key)
		}
		value, _ := h.Lookup(key)
		if strings.ContainsAny(value, "\r\n") {
			return errors.Newf(errors.ErrorTypeData, "header value for %q contains a newline", key).WithDetail("key", key)
		}
		buf.WriteString(key)
		buf.WriteByte('\t')
		buf.WriteString(value)
		buf.WriteString(lineEnding)
	}
	return nil
}

func writeDeclaration(buf *bytes.Buffer, m Metadata, kind string) error {
	names := m.Names()
	types := m.Types()
	for i, name := range names {
		if name == "" {
			return errors.Newf(errors.ErrorTypeData, "%s metadata field name is empty", kind)
		}
		if strings.ContainsAny(name, "\t\r\n") || strings.ContainsAny(types[i], "\t\r\n") {
			return errors.Newf(errors.ErrorTypeData, "%s metadata field %q contains a tab or newline", kind, name).
				WithDetail("field", name)
		}
		if types[i] == "" {
			types[i] = DefaultFieldType
		}
	}
	buf.WriteString(namesKey)
	for _, n := range names {
		buf.WriteByte('\t')
		buf.WriteString(n)
	}
	buf.WriteString(lineEnding)
	buf.WriteString(typesKey)
	for _, t := range types {
		buf.WriteByte('\t')
		buf.WriteString(t)
	}
	buf.WriteString(lineEnding)
	return nil
}

func checkCells(values []string, kind, field string) error {
	for i, v := range values {
		if strings.ContainsAny(v, "\t\r\n") {
			return errors.Newf(errors.ErrorTypeData, "%s metadata field %q value %d contains a tab or newline", kind, field, i).
				WithDetail("field", field).
				WithDetail("index", i)
		}
	}
	return nil
}

// mergeSeqIDVersions returns column metadata in the V3 layout.
func mergeSeqIDVersions(m Metadata) Metadata {
	seq, ok := m.Field(FieldSeqID)
	if !ok {
		return m
	}
	versions, ok := m.Field(FieldSeqIDVersion)
	if !ok {
		return m
	}
	out := m.Clone()
	merged := make([]string, len(seq.Values))
	for i, s := range seq.Values {
		if versions.Values[i] == "" {
			merged[i] = s
			continue
		}
		merged[i] = s + "_" + versions.Values[i]
	}
	_ = out.Set(FieldSeqID, merged)
	out.Delete(FieldSeqIDVersion)
	return out
}

func formatMeasurement(v float64, round bool) string {
	if !round || math.IsNaN(v) || math.IsInf(v, 0) {
		return formatPyFloat(v)
	}
	return decimal.NewFromFloat(v).StringFixedBank(1)
}
