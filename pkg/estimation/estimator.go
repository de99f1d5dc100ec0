// Package estimation orchestrates the full system-matrix estimation
// pipeline: chunked accumulation over the event source, assembly of the
// counts matrix, normalization into detection probabilities, and
// verification of the probability invariants.
package estimation

import (
	"fmt"
	"time"

	"petsysmat/internal/models"
	"petsysmat/pkg/accumulation"
	"petsysmat/pkg/events"
	"petsysmat/pkg/normalize"
	"petsysmat/pkg/sparse"
)

// Params holds the estimation parameters.
type Params struct {
	// VoxelGrid and SinogramGrid define the matrix shape: rows are
	// sinogram bins, columns are voxels.
	VoxelGrid    models.VoxelGrid
	SinogramGrid models.SinogramGrid

	// ChunkSize is the maximum number of records pulled per chunk.
	ChunkSize int

	// MaxEvents caps the number of records read; 0 means the full
	// stream.
	MaxEvents int64

	// NumWorkers bounds the per-angle worker pool within a chunk.
	NumWorkers int

	// MaxWorkingSetBytes bounds the estimated in-flight chunk
	// footprint; 0 disables the check.
	MaxWorkingSetBytes int64

	// Tolerance is the numerical slack for the probability checks.
	Tolerance float64

	// Verbose enables step-by-step progress output.
	Verbose bool
}

// RunStats reports what a completed estimation did and how long each
// stage took.
type RunStats struct {
	// EventsRead, TrueEvents and Chunks are the accumulation counters.
	EventsRead int64
	TrueEvents int64
	Chunks     int

	// AccumulateTime, AssembleTime, NormalizeTime and VerifyTime are
	// the per-stage wall-clock durations.
	AccumulateTime time.Duration
	AssembleTime   time.Duration
	NormalizeTime  time.Duration
	VerifyTime     time.Duration
}

// Estimator runs the estimation pipeline and holds its results. The
// pipeline consists of four steps:
//  1. Accumulating true-coincidence counts over the chunked event stream
//  2. Assembling the per-angle accumulators into one counts matrix
//  3. Normalizing the counts into detection probabilities
//  4. Verifying non-negativity and probability conservation
//
// An Estimator is single-use: create one per run.
type Estimator struct {
	params Params

	counts     *sparse.CSR
	totals     []int64
	system     *sparse.CSR
	violations []normalize.Violation
	stats      RunStats
	done       bool
}

// NewEstimator creates a new estimator instance with the provided
// parameters. Parameter validation happens in Process, before any event
// is read.
func NewEstimator(params Params) *Estimator {
	return &Estimator{params: params}
}

// Process runs the complete estimation pipeline over the given event
// source. On success the results are available through the accessors;
// verification violations do not fail the run and are returned by
// Violations.
func (e *Estimator) Process(source events.Source) error {
	if e.done {
		return fmt.Errorf("estimator already ran; create a new one per run")
	}
	e.done = true

	// Step 1: accumulate counts and voxel totals over the stream.
	e.logf("Step 1: Accumulating true coincidences (chunk size %d)...", e.params.ChunkSize)
	engine, err := accumulation.NewEngine(accumulation.Params{
		VoxelGrid:          e.params.VoxelGrid,
		SinogramGrid:       e.params.SinogramGrid,
		ChunkSize:          e.params.ChunkSize,
		MaxEvents:          e.params.MaxEvents,
		NumWorkers:         e.params.NumWorkers,
		MaxWorkingSetBytes: e.params.MaxWorkingSetBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to configure accumulation: %w", err)
	}
	start := time.Now()
	if err := engine.Run(source); err != nil {
		return fmt.Errorf("accumulation failed: %w", err)
	}
	e.stats.AccumulateTime = time.Since(start)
	accStats := engine.Stats()
	e.stats.EventsRead = accStats.EventsRead
	e.stats.TrueEvents = accStats.TrueEvents
	e.stats.Chunks = accStats.Chunks
	e.totals = engine.VoxelTotals()
	e.logf("  %d events read, %d true, %d chunks", accStats.EventsRead, accStats.TrueEvents, accStats.Chunks)

	// Step 2: assemble the per-angle accumulators.
	e.logf("Step 2: Assembling counts matrix...")
	start = time.Now()
	e.counts, err = engine.Assemble()
	if err != nil {
		return err
	}
	e.stats.AssembleTime = time.Since(start)
	e.logf("  shape %d x %d, %d stored entries", e.counts.Rows, e.counts.Cols, e.counts.NNZ())

	// Step 3: normalize into detection probabilities.
	e.logf("Step 3: Normalizing counts by voxel totals...")
	start = time.Now()
	e.system, err = normalize.Normalize(e.counts, e.totals)
	if err != nil {
		return fmt.Errorf("normalization failed: %w", err)
	}
	e.stats.NormalizeTime = time.Since(start)

	// Step 4: verify physical sanity. Violations are surfaced, not
	// fatal.
	e.logf("Step 4: Verifying probability invariants...")
	start = time.Now()
	e.violations = normalize.NewVerifier(e.params.Tolerance).Verify(e.system)
	e.stats.VerifyTime = time.Since(start)
	if len(e.violations) > 0 {
		e.logf("  %d violations detected", len(e.violations))
	} else {
		e.logf("  no violations")
	}

	return nil
}

// CountsMatrix returns the assembled raw counts matrix.
func (e *Estimator) CountsMatrix() *sparse.CSR {
	return e.counts
}

// VoxelTotals returns the per-voxel true-event totals used as the
// normalization denominator.
func (e *Estimator) VoxelTotals() []int64 {
	return e.totals
}

// SystemMatrix returns the normalized probability matrix.
func (e *Estimator) SystemMatrix() *sparse.CSR {
	return e.system
}

// Violations returns the verification findings; empty means the matrix
// passed every check.
func (e *Estimator) Violations() []normalize.Violation {
	return e.violations
}

// Stats returns the run counters and per-stage timings.
func (e *Estimator) Stats() RunStats {
	return e.stats
}

func (e *Estimator) logf(format string, args ...interface{}) {
	if e.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}
