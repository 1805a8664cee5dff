package iforest

import (
	"fmt"
	"math"
)

// Matrix is a rectangular table of float64 feature rows stored row-major.
// Every row has exactly Cols() values and every value is finite.
type Matrix struct {
	data []float64
	rows int
	cols int
}

// NewMatrix creates an empty matrix whose rows will have cols values.
func NewMatrix(cols int) (*Matrix, error) {
	if cols <= 0 {
		return nil, fmt.Errorf("%w: %d columns", ErrShapeMismatch, cols)
	}
	return &Matrix{cols: cols}, nil
}

// FromRows copies rows into a new matrix. All rows must share one non-zero length.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	m, err := NewMatrix(len(rows[0]))
	if err != nil {
		return nil, err
	}
	m.data = make([]float64, 0, len(rows)*m.cols)

	for _, row := range rows {
		if err := m.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of values in each row.
func (m *Matrix) Cols() int { return m.cols }

// Row returns row i as a view into the matrix. Callers must not modify it.
func (m *Matrix) Row(i int) []float64 {
	if i < 0 || i >= m.rows {
		panic(fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, i, m.rows))
	}
	return m.data[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	if j < 0 || j >= m.cols {
		panic(fmt.Errorf("%w: column %d of %d", ErrIndexOutOfRange, j, m.cols))
	}
	return m.Row(i)[j]
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	if j < 0 || j >= m.cols {
		panic(fmt.Errorf("%w: column %d of %d", ErrIndexOutOfRange, j, m.cols))
	}
	col := make([]float64, m.rows)
	for i := range col {
		col[i] = m.data[i*m.cols+j]
	}
	return col
}

// AppendRow appends a copy of row.
func (m *Matrix) AppendRow(row []float64) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	m.data = append(m.data, row...)
	m.rows++
	return nil
}

// ToRows returns a deep copy of the matrix as a slice of rows.
func (m *Matrix) ToRows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = append([]float64(nil), m.Row(i)...)
	}
	return out
}

func (m *Matrix) checkRow(row []float64) error {
	if m.cols == 0 || len(row) != m.cols {
		return fmt.Errorf("%w: row has %d values, want %d", ErrShapeMismatch, len(row), m.cols)
	}
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: column %d", ErrNonFinite, j)
		}
	}
	return nil
}

// subset materializes the rows at indices, repeats allowed, in index order.
func (m *Matrix) subset(indices []int) *Matrix {
	out := &Matrix{
		data: make([]float64, 0, len(indices)*m.cols),
		cols: m.cols,
	}
	for _, i := range indices {
		out.data = append(out.data, m.Row(i)...)
	}
	out.rows = len(indices)
	return out
}

// emptyLike returns an empty matrix with m's width and room for n rows.
func (m *Matrix) emptyLike(n int) *Matrix {
	return &Matrix{data: make([]float64, 0, n*m.cols), cols: m.cols}
}

func (m *Matrix) appendTrusted(row []float64) {
	m.data = append(m.data, row...)
	m.rows++
}
