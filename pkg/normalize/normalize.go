// Package normalize turns the assembled counts matrix into the system
// matrix of detection probabilities and verifies its physical sanity.
package normalize

import (
	"errors"
	"fmt"

	"petsysmat/pkg/sparse"
)

// ErrDataInconsistency marks states that are impossible under a correct
// accumulation run, such as a stored count in a voxel column whose total
// is zero. These indicate a logic defect upstream and are fatal; the
// normalizer never papers over them by dividing anyway.
var ErrDataInconsistency = errors.New("data inconsistency")

// Normalize divides the counts matrix column-wise by the per-voxel totals,
// producing the probability system matrix: entry (i, j) becomes the
// fraction of voxel j's true events that were detected in sinogram bin i.
//
// The division is a pure map over the existing non-zero structure; the
// dense matrix is never materialized and columns with a zero total stay
// empty (a zero total with a stored count is an ErrDataInconsistency).
func Normalize(counts *sparse.CSR, totals []int64) (*sparse.CSR, error) {
	if counts.Cols != len(totals) {
		return nil, fmt.Errorf("%w: counts matrix has %d columns but %d voxel totals",
			ErrDataInconsistency, counts.Cols, len(totals))
	}

	var bad error
	system := counts.MapValues(func(i, j int, v float64) float64 {
		if totals[j] == 0 {
			if bad == nil {
				bad = fmt.Errorf("%w: count %g stored at (%d, %d) but voxel %d has zero total",
					ErrDataInconsistency, v, i, j, j)
			}
			return 0
		}
		return v / float64(totals[j])
	})
	if bad != nil {
		return nil, bad
	}
	return system, nil
}
