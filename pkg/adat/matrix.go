package adat

import (
	"math"

	"github.com/SomaLogic/Canopy/pkg/errors"
)

// Matrix is a dense row-major grid of measurements. Rows are samples and
// columns are analytes.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix returns a zero-filled rows x cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// MatrixFromRows copies rows into a matrix. All rows must have equal length.
func MatrixFromRows(rows [][]float64) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return Matrix{}, errors.Newf(errors.ErrorTypeValidation, "row %d has %d values, expected %d", i, len(row), cols)
		}
		copy(m.data[i*cols:], row)
	}
	return m, nil
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m Matrix) Cols() int { return m.cols }

// At returns the value at row i, column j.
func (m Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Set stores v at row i, column j.
func (m Matrix) Set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

// Row returns a copy of row i.
func (m Matrix) Row(i int) []float64 {
	return append([]float64(nil), m.data[i*m.cols:(i+1)*m.cols]...)
}

// Column returns a copy of column j.
func (m Matrix) Column(j int) []float64 {
	out := make([]float64, m.rows)
	for i := range out {
		out[i] = m.data[i*m.cols+j]
	}
	return out
}

// ScaleColumn multiplies every value of column j by f.
func (m Matrix) ScaleColumn(j int, f float64) {
	for i := 0; i < m.rows; i++ {
		m.data[i*m.cols+j] *= f
	}
}

// ToRows returns the matrix as a slice of row copies.
func (m Matrix) ToRows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	return Matrix{rows: m.rows, cols: m.cols, data: append([]float64(nil), m.data...)}
}

// Equal reports whether both matrices have the same shape and bit-identical
// values.
func (m Matrix) Equal(o Matrix) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for i := range m.data {
		if math.Float64bits(m.data[i]) != math.Float64bits(o.data[i]) {
			return false
		}
	}
	return true
}

// selectRows returns a matrix holding the given rows in order.
func (m Matrix) selectRows(indices []int) Matrix {
	out := NewMatrix(len(indices), m.cols)
	for k, i := range indices {
		copy(out.data[k*m.cols:], m.data[i*m.cols:(i+1)*m.cols])
	}
	return out
}

// selectCols returns a matrix holding the given columns in order.
func (m Matrix) selectCols(indices []int) Matrix {
	out := NewMatrix(m.rows, len(indices))
	for i := 0; i < m.rows; i++ {
		for k, j := range indices {
			out.data[i*len(indices)+k] = m.data[i*m.cols+j]
		}
	}
	return out
}
