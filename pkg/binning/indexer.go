// Package binning maps continuous event coordinates to discrete voxel and
// sinogram indices. Both indexers use the same clamp-floor-scale rule:
// the coordinate is clamped into the declared bounds, scaled to the bin
// count, and floored, with the exact upper boundary folded into the last
// bin. Out-of-range inputs are therefore never rejected; they land in the
// nearest edge bin. This is a deliberate policy and it biases edge bins,
// so the grids should be chosen wide enough to cover the phantom.
package binning

import (
	"math"

	"petsysmat/internal/models"
)

// ThetaPeriod is the angular period of the sinogram parameterization.
// Lines of response are undirected, so theta lives on a half rotation.
const ThetaPeriod = math.Pi

// VoxelIndexer maps a continuous 3D source position to a flat voxel id.
type VoxelIndexer struct {
	grid models.VoxelGrid
}

// NewVoxelIndexer creates an indexer for the given voxel grid.
// The grid must already be validated.
func NewVoxelIndexer(grid models.VoxelGrid) *VoxelIndexer {
	return &VoxelIndexer{grid: grid}
}

// Assign returns the flat voxel id for the position (x, y, z).
// The flattening order is x-fastest: id = ix + nx*(iy + ny*iz), matching
// the order consumers use when reshaping the voxel axis back to 3D.
// The result is always in [0, NumVoxels()).
func (v *VoxelIndexer) Assign(x, y, z float64) int {
	ix := binIndex(x, v.grid.XMin, v.grid.XMax, v.grid.NX)
	iy := binIndex(y, v.grid.YMin, v.grid.YMax, v.grid.NY)
	iz := binIndex(z, v.grid.ZMin, v.grid.ZMax, v.grid.NZ)
	return ix + v.grid.NX*(iy+v.grid.NY*iz)
}

// NumVoxels returns the total number of voxels addressable by Assign.
func (v *VoxelIndexer) NumVoxels() int {
	return v.grid.NumVoxels()
}

// SinogramIndexer maps a continuous (theta, s) detection parameter pair to
// discrete sinogram indices.
type SinogramIndexer struct {
	grid models.SinogramGrid
}

// NewSinogramIndexer creates an indexer for the given sinogram grid.
// The grid must already be validated.
func NewSinogramIndexer(grid models.SinogramGrid) *SinogramIndexer {
	return &SinogramIndexer{grid: grid}
}

// Assign returns the angular and radial bin indices for a detection with
// angle theta and offset s. Theta is wrapped modulo the angular period
// into [0, period) before scaling, so the exact boundary value (and any
// pre-wrapped or negative input) maps into range. S is clamped into
// [SMin, SMax]. Both results are always within their declared ranges.
func (si *SinogramIndexer) Assign(theta, s float64) (thetaIdx, sIdx int) {
	wrapped := math.Mod(theta, ThetaPeriod)
	if wrapped < 0 {
		wrapped += ThetaPeriod
	}
	thetaIdx = binIndex(wrapped, 0, ThetaPeriod, si.grid.NTheta)
	sIdx = binIndex(s, si.grid.SMin, si.grid.SMax, si.grid.NS)
	return thetaIdx, sIdx
}

// Row combines an angular and radial index into the global sinogram row
// id: row = thetaIdx*nS + sIdx. This matches the block layout produced
// when per-angle accumulators are stacked, so the global row id does not
// depend on how accumulation is parallelized.
func (si *SinogramIndexer) Row(thetaIdx, sIdx int) int {
	return thetaIdx*si.grid.NS + sIdx
}

// NumRows returns the total number of sinogram rows nTheta*nS.
func (si *SinogramIndexer) NumRows() int {
	return si.grid.NumRows()
}

// binIndex applies the clamp-floor-scale rule shared by all axes:
// clamp v into [min, max], scale to count bins, floor, and clamp the
// result into [0, count-1] so the upper boundary value is inclusive.
func binIndex(v, min, max float64, count int) int {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	idx := int(math.Floor((v - min) / (max - min) * float64(count)))
	if idx < 0 {
		idx = 0
	}
	if idx > count-1 {
		idx = count - 1
	}
	return idx
}
