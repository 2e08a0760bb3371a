package markov

import (
	"fmt"
	"sort"
)

// Entry is one nonzero cell of a Matrix row.
type Entry struct {
	Col   int
	Value float64
}

// Matrix is a square, non-negative transition matrix indexed by token ID.
// Only nonzero cells are stored, one map per row, so memory grows with the
// number of observed transitions rather than with N*N. A Matrix holds either
// raw transition counts or row-stochastic probabilities.
type Matrix struct {
	n    int
	rows []map[int]float64
}

// NewMatrix returns an all-zero n x n matrix.
func NewMatrix(n int) *Matrix {
	return &Matrix{n: n, rows: make([]map[int]float64, n)}
}

// Size returns n.
func (m *Matrix) Size() int { return m.n }

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 {
	return m.rows[i][j]
}

// Set stores v at row i, column j. Storing zero removes the cell.
func (m *Matrix) Set(i, j int, v float64) {
	if v == 0 {
		if m.rows[i] != nil {
			delete(m.rows[i], j)
		}
		return
	}
	if m.rows[i] == nil {
		m.rows[i] = make(map[int]float64)
	}
	m.rows[i][j] = v
}

// Add increments the cell at row i, column j by v.
func (m *Matrix) Add(i, j int, v float64) {
	m.Set(i, j, m.rows[i][j]+v)
}

// Row returns the nonzero cells of row i ordered by column.
func (m *Matrix) Row(i int) []Entry {
	row := m.rows[i]
	if len(row) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(row))
	for col, v := range row {
		out = append(out, Entry{Col: col, Value: v})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Col < out[b].Col })
	return out
}

// RowSum returns the sum of row i.
func (m *Matrix) RowSum(i int) float64 {
	var s float64
	for _, v := range m.rows[i] {
		s += v
	}
	return s
}

// RowLen returns the number of nonzero cells in row i.
func (m *Matrix) RowLen(i int) int { return len(m.rows[i]) }

// NonZero returns the number of nonzero cells in the matrix.
func (m *Matrix) NonZero() int {
	var nz int
	for _, row := range m.rows {
		nz += len(row)
	}
	return nz
}

// Total returns the sum of all cells. For a count matrix this is the number
// of observed transitions.
func (m *Matrix) Total() float64 {
	var t float64
	for i := range m.rows {
		t += m.RowSum(i)
	}
	return t
}

// DenseRow writes row i into buf, which must have length n, zeroing the cells
// that are not stored.
func (m *Matrix) DenseRow(i int, buf []float64) {
	clear(buf)
	for col, v := range m.rows[i] {
		buf[col] = v
	}
}

// Merge adds every cell of other into m. Both matrices must have the same
// size. Because addition is commutative, count matrices built from disjoint
// slices of a corpus can be merged in any order.
func (m *Matrix) Merge(other *Matrix) error {
	if other.n != m.n {
		return fmt.Errorf("%w: cannot merge %dx%d into %dx%d", ErrSizeMismatch, other.n, other.n, m.n, m.n)
	}
	for i, row := range other.rows {
		for col, v := range row {
			m.Add(i, col, v)
		}
	}
	return nil
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	c := NewMatrix(m.n)
	for i, row := range m.rows {
		if len(row) == 0 {
			continue
		}
		c.rows[i] = make(map[int]float64, len(row))
		for col, v := range row {
			c.rows[i][col] = v
		}
	}
	return c
}
