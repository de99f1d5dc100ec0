package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"petsysmat/pkg/sparse"
)

// DefaultTolerance is the numerical slack applied to the probability
// bounds during verification.
const DefaultTolerance = 1e-9

// ViolationKind identifies which physical invariant a violation breaks.
type ViolationKind int

const (
	// EntryOutOfRange marks a stored probability outside [0, 1].
	EntryOutOfRange ViolationKind = iota

	// ColumnSumExceedsOne marks a voxel whose detection probabilities
	// sum to more than 1.
	ColumnSumExceedsOne
)

// String returns a short name for the violation kind.
func (k ViolationKind) String() string {
	switch k {
	case EntryOutOfRange:
		return "entry out of range"
	case ColumnSumExceedsOne:
		return "column sum exceeds one"
	default:
		return "unknown"
	}
}

// Violation describes one detected invariant breach. Violations are
// reported, never auto-corrected; the caller decides whether to treat
// them as fatal.
type Violation struct {
	// Kind is the invariant that was broken.
	Kind ViolationKind

	// Row and Col locate the offending entry for EntryOutOfRange; for
	// ColumnSumExceedsOne only Col is meaningful and Row is -1.
	Row, Col int

	// Value is the offending probability or column sum.
	Value float64
}

// String formats the violation for reports and logs.
func (v Violation) String() string {
	if v.Kind == ColumnSumExceedsOne {
		return fmt.Sprintf("%s: voxel %d sums to %.12g", v.Kind, v.Col, v.Value)
	}
	return fmt.Sprintf("%s: entry (%d, %d) = %.12g", v.Kind, v.Row, v.Col, v.Value)
}

// Verifier checks a normalized system matrix against its probability
// invariants.
type Verifier struct {
	tolerance float64
}

// NewVerifier creates a verifier with the given numerical tolerance.
// A non-positive tolerance uses DefaultTolerance.
func NewVerifier(tolerance float64) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{tolerance: tolerance}
}

// Verify checks that every stored entry of the system matrix lies in
// [0, 1] and that every voxel's detection probabilities sum to at most 1,
// both within the tolerance. All violations are collected; an empty
// result means the matrix is physically sane.
func (vf *Verifier) Verify(system *sparse.CSR) []Violation {
	var violations []Violation

	for i := 0; i < system.Rows; i++ {
		for k := system.RowPtr[i]; k < system.RowPtr[i+1]; k++ {
			v := system.Values[k]
			if v < -vf.tolerance || v > 1+vf.tolerance {
				violations = append(violations, Violation{
					Kind:  EntryOutOfRange,
					Row:   i,
					Col:   int(system.ColIdx[k]),
					Value: v,
				})
			}
		}
	}

	colSums := system.ColumnSums()
	if len(colSums) > 0 && floats.Max(colSums) > 1+vf.tolerance {
		for j, sum := range colSums {
			if sum > 1+vf.tolerance {
				violations = append(violations, Violation{
					Kind:  ColumnSumExceedsOne,
					Row:   -1,
					Col:   j,
					Value: sum,
				})
			}
		}
	}

	return violations
}
