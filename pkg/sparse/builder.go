package sparse

import (
	"fmt"
	"sort"
)

// Builder is an incrementally-updatable sparse accumulator. Add records
// coordinate contributions that are summed on duplicate coordinates, and
// Finalize compresses the accumulated entries into an immutable CSR. The
// accumulation pipeline keeps one Builder per sinogram angle so the
// working set stays bounded by the densest angle rather than the full
// matrix.
type Builder struct {
	rows, cols int
	entries    map[int64]int64
	finalized  bool
}

// NewBuilder creates an empty builder for a matrix of the given shape.
func NewBuilder(rows, cols int) *Builder {
	return &Builder{
		rows:    rows,
		cols:    cols,
		entries: make(map[int64]int64),
	}
}

// Add accumulates count at coordinate (i, j). Contributions to the same
// coordinate are summed, not overwritten. Coordinates outside the builder
// shape indicate an indexing defect upstream and are reported as errors
// rather than clamped or dropped.
func (b *Builder) Add(i, j int, count int64) error {
	if b.finalized {
		return fmt.Errorf("builder already finalized")
	}
	if i < 0 || i >= b.rows {
		return fmt.Errorf("row index %d outside [0, %d)", i, b.rows)
	}
	if j < 0 || j >= b.cols {
		return fmt.Errorf("column index %d outside [0, %d)", j, b.cols)
	}
	b.entries[int64(i)*int64(b.cols)+int64(j)] += count
	return nil
}

// NNZ returns the number of distinct coordinates accumulated so far.
func (b *Builder) NNZ() int {
	return len(b.entries)
}

// Finalize compresses the accumulated entries into a CSR matrix. Entry
// order is made deterministic by sorting coordinates, so the result does
// not depend on map iteration order or on how contributions were
// interleaved. The builder cannot be added to afterwards.
func (b *Builder) Finalize() *CSR {
	b.finalized = true

	keys := make([]int64, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, c int) bool { return keys[a] < keys[c] })

	m := &CSR{
		Rows:   b.rows,
		Cols:   b.cols,
		RowPtr: make([]int64, b.rows+1),
		ColIdx: make([]int64, len(keys)),
		Values: make([]float64, len(keys)),
	}
	for n, k := range keys {
		i := k / int64(b.cols)
		m.ColIdx[n] = k % int64(b.cols)
		m.Values[n] = float64(b.entries[k])
		m.RowPtr[i+1]++
	}
	for i := 0; i < b.rows; i++ {
		m.RowPtr[i+1] += m.RowPtr[i]
	}
	return m
}
