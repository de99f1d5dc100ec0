package matrixio

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"petsysmat/pkg/sparse"
)

// Summary describes a system matrix for run reports: shape, population
// and value statistics over the stored entries.
type Summary struct {
	// Rows and Cols are the matrix dimensions (sinogram bins x voxels).
	Rows, Cols int

	// NNZ is the number of stored entries.
	NNZ int

	// Sparsity is the fraction of the dense shape that is NOT stored,
	// in [0, 1].
	Sparsity float64

	// MemoryBytes estimates the in-memory footprint of the CSR arrays.
	MemoryBytes int64

	// MaxValue and MeanValue summarize the stored entry values.
	// Both are zero for an empty matrix.
	MaxValue  float64
	MeanValue float64
}

// Summarize computes the summary report of a matrix.
func Summarize(m *sparse.CSR) Summary {
	s := Summary{
		Rows: m.Rows,
		Cols: m.Cols,
		NNZ:  m.NNZ(),
		// rowPtr + colIdx as int64, values as float64.
		MemoryBytes: int64(len(m.RowPtr))*8 + int64(len(m.ColIdx))*8 + int64(len(m.Values))*8,
	}
	dense := float64(m.Rows) * float64(m.Cols)
	if dense > 0 {
		s.Sparsity = 1 - float64(s.NNZ)/dense
	}
	if s.NNZ > 0 {
		s.MaxValue = floats.Max(m.Values)
		s.MeanValue = stat.Mean(m.Values, nil)
	}
	return s
}

// String formats the summary as the multi-line report printed after a
// run.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shape:              %d x %d\n", s.Rows, s.Cols)
	fmt.Fprintf(&b, "Stored entries:     %d\n", s.NNZ)
	fmt.Fprintf(&b, "Sparsity:           %.6f\n", s.Sparsity)
	fmt.Fprintf(&b, "Memory footprint:   %.2f MiB\n", float64(s.MemoryBytes)/(1024*1024))
	fmt.Fprintf(&b, "Max stored value:   %.6g\n", s.MaxValue)
	fmt.Fprintf(&b, "Mean stored value:  %.6g", s.MeanValue)
	return b.String()
}
