// Package sparse provides the incrementally-built sparse matrices used by
// the accumulation pipeline: an append-with-accumulate coordinate builder
// for construction and a compressed sparse row (CSR) matrix for the
// assembled result. CSR keeps column-wise scaling cheap, which is what the
// normalization step needs, and serializes compactly.
package sparse

import (
	"fmt"
)

// CSR is a compressed sparse row matrix. Within each row the stored
// entries are ordered by ascending column index. A CSR is immutable once
// built; operations that change values return a new matrix sharing the
// structural arrays.
type CSR struct {
	// Rows and Cols are the logical matrix dimensions.
	Rows, Cols int

	// RowPtr has length Rows+1; row i's entries occupy the half-open
	// range [RowPtr[i], RowPtr[i+1]) of ColIdx and Values.
	RowPtr []int64

	// ColIdx holds the column index of each stored entry.
	ColIdx []int64

	// Values holds the stored entry values.
	Values []float64
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return len(m.Values)
}

// At returns the value at (i, j), zero when the entry is not stored.
// Linear scan within the row; intended for tests and spot checks, not for
// bulk access.
func (m *CSR) At(i, j int) float64 {
	for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
		if m.ColIdx[k] == int64(j) {
			return m.Values[k]
		}
	}
	return 0
}

// ColumnSums returns the per-column sums of the stored entries as a dense
// vector of length Cols.
func (m *CSR) ColumnSums() []float64 {
	sums := make([]float64, m.Cols)
	for k, j := range m.ColIdx {
		sums[j] += m.Values[k]
	}
	return sums
}

// MapValues returns a new matrix with the same sparsity structure whose
// value at each stored entry (i, j) is f(i, j, v). The structural arrays
// are shared with the receiver; only the values are reallocated. The
// callback is applied in storage order.
func (m *CSR) MapValues(f func(i, j int, v float64) float64) *CSR {
	out := &CSR{
		Rows:   m.Rows,
		Cols:   m.Cols,
		RowPtr: m.RowPtr,
		ColIdx: m.ColIdx,
		Values: make([]float64, len(m.Values)),
	}
	for i := 0; i < m.Rows; i++ {
		for k := m.RowPtr[i]; k < m.RowPtr[i+1]; k++ {
			out.Values[k] = f(i, int(m.ColIdx[k]), m.Values[k])
		}
	}
	return out
}

// Validate checks the structural invariants of the matrix: monotone row
// pointers, in-range column indices and consistent array lengths. A
// failure indicates a construction or deserialization defect.
func (m *CSR) Validate() error {
	if len(m.RowPtr) != m.Rows+1 {
		return fmt.Errorf("row pointer length %d does not match %d rows", len(m.RowPtr), m.Rows)
	}
	if m.RowPtr[0] != 0 {
		return fmt.Errorf("row pointers must start at 0, got %d", m.RowPtr[0])
	}
	if int(m.RowPtr[m.Rows]) != len(m.Values) || len(m.ColIdx) != len(m.Values) {
		return fmt.Errorf("entry count mismatch: rowPtr end %d, %d column indices, %d values",
			m.RowPtr[m.Rows], len(m.ColIdx), len(m.Values))
	}
	for i := 0; i < m.Rows; i++ {
		if m.RowPtr[i+1] < m.RowPtr[i] {
			return fmt.Errorf("row pointers decrease at row %d", i)
		}
		for k := m.RowPtr[i] + 1; k < m.RowPtr[i+1]; k++ {
			if m.ColIdx[k] <= m.ColIdx[k-1] {
				return fmt.Errorf("row %d column indices not strictly increasing", i)
			}
		}
	}
	for _, j := range m.ColIdx {
		if j < 0 || j >= int64(m.Cols) {
			return fmt.Errorf("column index %d outside [0, %d)", j, m.Cols)
		}
	}
	return nil
}

// Stack vertically concatenates the given matrices in order into a single
// CSR. All inputs must share the same column count; the output has the
// sum of the input row counts. Block order is preserved exactly, so when
// the inputs are per-angle accumulator matrices the output row id is
// thetaIdx*nS + sIdx.
func Stack(blocks []*CSR) (*CSR, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no blocks to stack")
	}
	cols := blocks[0].Cols
	rows := 0
	nnz := 0
	for i, b := range blocks {
		if b.Cols != cols {
			return nil, fmt.Errorf("block %d has %d columns, want %d", i, b.Cols, cols)
		}
		rows += b.Rows
		nnz += b.NNZ()
	}

	out := &CSR{
		Rows:   rows,
		Cols:   cols,
		RowPtr: make([]int64, rows+1),
		ColIdx: make([]int64, 0, nnz),
		Values: make([]float64, 0, nnz),
	}
	row := 0
	for _, b := range blocks {
		for i := 0; i < b.Rows; i++ {
			out.ColIdx = append(out.ColIdx, b.ColIdx[b.RowPtr[i]:b.RowPtr[i+1]]...)
			out.Values = append(out.Values, b.Values[b.RowPtr[i]:b.RowPtr[i+1]]...)
			row++
			out.RowPtr[row] = int64(len(out.Values))
		}
	}
	return out, nil
}
