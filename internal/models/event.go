package models

import (
	"fmt"
)

// EventRecord represents a single simulated coincidence event as produced
// by the Monte Carlo simulation output store. Records are immutable and
// consumed exactly once by the accumulation pipeline.
type EventRecord struct {
	// SourcePosX1, SourcePosY1, SourcePosZ1 are the continuous emission
	// source coordinates, in the same units as the voxel grid bounds.
	SourcePosX1 float64
	SourcePosY1 float64
	SourcePosZ1 float64

	// ComptonPhantom1 and ComptonPhantom2 count Compton scatter
	// interactions inside the phantom for each of the two photons.
	ComptonPhantom1 int
	ComptonPhantom2 int

	// RayleighPhantom1 and RayleighPhantom2 count Rayleigh scatter
	// interactions inside the phantom for each of the two photons.
	RayleighPhantom1 int
	RayleighPhantom2 int

	// SinogramTheta is the detection angle of the line of response,
	// expected in radians within the half-rotation period.
	SinogramTheta float64

	// SinogramS is the radial detection offset of the line of response.
	SinogramS float64
}

// VoxelGrid describes the discretization of the emission-source volume.
// The grid is fixed configuration for a run and is passed to components
// at construction time.
type VoxelGrid struct {
	// NX, NY, NZ are the number of voxels along each axis.
	NX, NY, NZ int

	// XMin, XMax bound the grid along the x axis; likewise for y and z.
	// Coordinates outside the bounds are clamped to the edge voxels.
	XMin, XMax float64
	YMin, YMax float64
	ZMin, ZMax float64
}

// NumVoxels returns the total voxel count nx*ny*nz.
func (g VoxelGrid) NumVoxels() int {
	return g.NX * g.NY * g.NZ
}

// Validate checks the grid invariants: all axis counts must be at least 1
// and every axis must have min strictly below max.
func (g VoxelGrid) Validate() error {
	if g.NX < 1 || g.NY < 1 || g.NZ < 1 {
		return fmt.Errorf("voxel grid: axis counts must be >= 1, got (%d, %d, %d)", g.NX, g.NY, g.NZ)
	}
	if g.XMin >= g.XMax {
		return fmt.Errorf("voxel grid: xMin (%g) must be < xMax (%g)", g.XMin, g.XMax)
	}
	if g.YMin >= g.YMax {
		return fmt.Errorf("voxel grid: yMin (%g) must be < yMax (%g)", g.YMin, g.YMax)
	}
	if g.ZMin >= g.ZMax {
		return fmt.Errorf("voxel grid: zMin (%g) must be < zMax (%g)", g.ZMin, g.ZMax)
	}
	return nil
}

// SinogramGrid describes the discretization of the detection space.
// Theta spans the half-rotation period [0, pi); S spans [SMin, SMax].
type SinogramGrid struct {
	// NTheta is the number of angular bins over [0, pi).
	NTheta int

	// NS is the number of radial offset bins over [SMin, SMax].
	NS int

	// SMin, SMax bound the radial offset. Offsets outside the bounds
	// are clamped to the edge bins.
	SMin, SMax float64
}

// NumRows returns the total sinogram row count nTheta*nS, which is the
// row dimension of the system matrix.
func (g SinogramGrid) NumRows() int {
	return g.NTheta * g.NS
}

// Validate checks the grid invariants: both bin counts must be at least 1
// and SMin must be strictly below SMax.
func (g SinogramGrid) Validate() error {
	if g.NTheta < 1 || g.NS < 1 {
		return fmt.Errorf("sinogram grid: bin counts must be >= 1, got (nTheta=%d, nS=%d)", g.NTheta, g.NS)
	}
	if g.SMin >= g.SMax {
		return fmt.Errorf("sinogram grid: sMin (%g) must be < sMax (%g)", g.SMin, g.SMax)
	}
	return nil
}
