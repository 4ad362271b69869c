package adat

import (
	"github.com/SomaLogic/Canopy/pkg/errors"
)

// Record is the in-memory form of an ADAT file: a header, per-row and
// per-column metadata, and the measurement matrix they describe.
//
// Every row field holds Matrix.Rows() values and every column field holds
// Matrix.Cols() values. Operations that transform a record return a new one.
type Record struct {
	Header         Header
	RowMetadata    Metadata
	ColumnMetadata Metadata
	Matrix         Matrix
}

// FromFeatures builds a validated record from raw rows and metadata.
func FromFeatures(rows [][]float64, rowMeta, colMeta Metadata, header Header) (*Record, error) {
	m, err := MatrixFromRows(rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		m = NewMatrix(0, colMeta.Width())
	}
	rec := &Record{
		Header:         header.Clone(),
		RowMetadata:    rowMeta.Clone(),
		ColumnMetadata: colMeta.Clone(),
		Matrix:         m,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks that metadata widths agree with the matrix shape.
func (r *Record) Validate() error {
	if r.RowMetadata.Len() > 0 && r.RowMetadata.Width() != r.Matrix.Rows() {
		return errors.Newf(errors.ErrorTypeValidation,
			"row metadata has %d values per field, matrix has %d rows", r.RowMetadata.Width(), r.Matrix.Rows())
	}
	if r.ColumnMetadata.Len() > 0 && r.ColumnMetadata.Width() != r.Matrix.Cols() {
		return errors.Newf(errors.ErrorTypeValidation,
			"column metadata has %d values per field, matrix has %d columns", r.ColumnMetadata.Width(), r.Matrix.Cols())
	}
	return nil
}

// Shape returns the matrix dimensions.
func (r *Record) Shape() (rows, cols int) {
	return r.Matrix.Rows(), r.Matrix.Cols()
}

// Clone returns a deep copy sharing nothing with r.
func (r *Record) Clone() *Record {
	return &Record{
		Header:         r.Header.Clone(),
		RowMetadata:    r.RowMetadata.Clone(),
		ColumnMetadata: r.ColumnMetadata.Clone(),
		Matrix:         r.Matrix.Clone(),
	}
}

// Equal reports whether two records hold the same header text, metadata
// and bit-identical matrix.
func (r *Record) Equal(o *Record) bool {
	return r.Header.Equal(o.Header) &&
		r.RowMetadata.Equal(o.RowMetadata) &&
		r.ColumnMetadata.Equal(o.ColumnMetadata) &&
		r.Matrix.Equal(o.Matrix)
}

// PickRows returns a new record holding the rows whose field value is one
// of values, in their original order.
func (r *Record) PickRows(field string, values ...string) (*Record, error) {
	indices, err := pick(r.RowMetadata, field, values)
	if err != nil {
		return nil, err
	}
	return &Record{
		Header:         r.Header.Clone(),
		RowMetadata:    r.RowMetadata.Select(indices),
		ColumnMetadata: r.ColumnMetadata.Clone(),
		Matrix:         r.Matrix.selectRows(indices),
	}, nil
}

// PickColumns returns a new record holding the columns whose field value is
// one of values, in their original order.
func (r *Record) PickColumns(field string, values ...string) (*Record, error) {
	indices, err := pick(r.ColumnMetadata, field, values)
	if err != nil {
		return nil, err
	}
	return &Record{
		Header:         r.Header.Clone(),
		RowMetadata:    r.RowMetadata.Clone(),
		ColumnMetadata: r.ColumnMetadata.Select(indices),
		Matrix:         r.Matrix.selectCols(indices),
	}, nil
}

func pick(m Metadata, field string, values []string) ([]int, error) {
	f, ok := m.Field(field)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "metadata field %q not found", field).
			WithDetail("field", field)
	}
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}
	indices := make([]int, 0)
	for i, v := range f.Values {
		if _, ok := want[v]; ok {
			indices = append(indices, i)
		}
	}
	return indices, nil
}
