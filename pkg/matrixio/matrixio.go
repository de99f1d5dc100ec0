// Package matrixio persists sparse system matrices as a compact binary
// artifact and rebuilds them exactly, plus a human-readable summary
// report of a matrix. The on-disk layout is little-endian:
//
//	magic "PSMX" | uint32 version
//	int64 rows | int64 cols | int64 nnz
//	rowPtr  (rows+1 x int64)
//	colIdx  (nnz x int64)
//	values  (nnz x float64)
package matrixio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"petsysmat/pkg/sparse"
)

// formatVersion is bumped on any incompatible layout change.
const formatVersion uint32 = 1

// magic identifies a system matrix artifact.
var magic = [4]byte{'P', 'S', 'M', 'X'}

// Write serializes the matrix to path. The written artifact carries the
// full CSR structure, so Read reproduces shape, non-zero positions and
// values exactly.
func Write(path string, m *sparse.CSR) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid matrix: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	header := []interface{}{
		formatVersion,
		int64(m.Rows),
		int64(m.Cols),
		int64(m.NNZ()),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for _, section := range []interface{}{m.RowPtr, m.ColIdx, m.Values} {
		if err := binary.Write(w, binary.LittleEndian, section); err != nil {
			return fmt.Errorf("failed to write matrix data: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

// Read loads a matrix artifact written by Write and validates its
// structure before returning it.
func Read(path string) (*sparse.CSR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%s is not a system matrix artifact (bad magic %q)", path, gotMagic)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported artifact version %d (expected %d)", version, formatVersion)
	}

	var rows, cols, nnz int64
	for _, v := range []*int64{&rows, &cols, &nnz} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("failed to read shape: %w", err)
		}
	}
	if rows < 0 || cols < 0 || nnz < 0 {
		return nil, fmt.Errorf("corrupt artifact: negative shape (%d, %d, nnz %d)", rows, cols, nnz)
	}

	m := &sparse.CSR{
		Rows:   int(rows),
		Cols:   int(cols),
		RowPtr: make([]int64, rows+1),
		ColIdx: make([]int64, nnz),
		Values: make([]float64, nnz),
	}
	for _, section := range []interface{}{m.RowPtr, m.ColIdx, m.Values} {
		if err := binary.Read(r, binary.LittleEndian, section); err != nil {
			return nil, fmt.Errorf("failed to read matrix data: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt artifact %s: %w", path, err)
	}
	return m, nil
}
