// Package accumulation implements the chunked binning-and-accumulation
// engine at the core of the system-matrix estimation: it pulls bounded
// chunks from an event source, filters them to true coincidences, maps
// each event to its voxel and sinogram indices, and accumulates per-angle
// sparse counts plus per-voxel emission totals.
package accumulation

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"petsysmat/internal/models"
	"petsysmat/pkg/binning"
	"petsysmat/pkg/events"
	"petsysmat/pkg/sparse"
)

// ErrChunkTooLarge marks a chunk size whose in-flight working set exceeds
// the configured memory budget. The engine does not retry with a smaller
// chunk; picking a new size is left to the caller.
var ErrChunkTooLarge = errors.New("chunk working set exceeds memory budget")

// bytesPerEvent is the rough in-flight footprint of one event in a chunk:
// the raw record plus its computed index triple.
const bytesPerEvent = 112

// Params configures an accumulation engine.
type Params struct {
	// VoxelGrid and SinogramGrid define the discretization. Both must be
	// valid (see their Validate methods).
	VoxelGrid    models.VoxelGrid
	SinogramGrid models.SinogramGrid

	// ChunkSize is the maximum number of records pulled from the source
	// at a time. It is a resource knob only: results are identical for
	// any valid chunk size.
	ChunkSize int

	// MaxEvents caps the total number of records read from the source.
	// Zero means unlimited.
	MaxEvents int64

	// NumWorkers bounds the per-angle worker pool used within a chunk.
	// Zero or negative uses all available cores.
	NumWorkers int

	// MaxWorkingSetBytes bounds the estimated in-flight chunk footprint.
	// Zero disables the check.
	MaxWorkingSetBytes int64
}

// Stats reports the progress counters of an engine.
type Stats struct {
	// EventsRead is the total number of records pulled from the source.
	EventsRead int64

	// TrueEvents is the number of records that passed the coincidence
	// filter and were accumulated.
	TrueEvents int64

	// Chunks is the number of chunks processed.
	Chunks int
}

// binned holds the discretized indices of one true event.
type binned struct {
	thetaIdx, sIdx, voxelID int
}

// Engine accumulates true-coincidence counts over a chunked event stream.
// Chunks are processed strictly sequentially; the accumulated state is
// consistent at every chunk boundary, so a caller may stop after any chunk
// and still assemble a valid partial counts/totals pair. An Engine is not
// safe for concurrent use.
type Engine struct {
	params   Params
	voxelIdx *binning.VoxelIndexer
	sinoIdx  *binning.SinogramIndexer
	filter   *events.TrueCoincidenceFilter

	// accums holds one sparse accumulator per angular bin, each shaped
	// (nS, nVox). Keeping them separate bounds the construction working
	// set and gives each worker goroutine a single-writer structure.
	accums []*sparse.Builder

	// totals counts every true event per source voxel, independent of
	// its sinogram bin. This is the normalization denominator.
	totals []int64

	stats     Stats
	assembled bool
}

// NewEngine creates an engine for the given parameters. Grid invariants
// and the chunk-size budget are checked here, before any processing.
func NewEngine(params Params) (*Engine, error) {
	if err := params.VoxelGrid.Validate(); err != nil {
		return nil, err
	}
	if err := params.SinogramGrid.Validate(); err != nil {
		return nil, err
	}
	if params.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", params.ChunkSize)
	}
	if params.MaxEvents < 0 {
		return nil, fmt.Errorf("max events must be >= 0, got %d", params.MaxEvents)
	}
	if params.MaxWorkingSetBytes > 0 {
		need := int64(params.ChunkSize) * bytesPerEvent
		if need > params.MaxWorkingSetBytes {
			return nil, fmt.Errorf("%w: chunk size %d needs ~%d bytes, budget is %d; reduce the chunk size",
				ErrChunkTooLarge, params.ChunkSize, need, params.MaxWorkingSetBytes)
		}
	}
	if params.NumWorkers < 1 {
		params.NumWorkers = runtime.NumCPU()
	}

	nVox := params.VoxelGrid.NumVoxels()
	accums := make([]*sparse.Builder, params.SinogramGrid.NTheta)
	for i := range accums {
		accums[i] = sparse.NewBuilder(params.SinogramGrid.NS, nVox)
	}

	return &Engine{
		params:   params,
		voxelIdx: binning.NewVoxelIndexer(params.VoxelGrid),
		sinoIdx:  binning.NewSinogramIndexer(params.SinogramGrid),
		filter:   events.NewTrueCoincidenceFilter(),
		accums:   accums,
		totals:   make([]int64, nVox),
	}, nil
}

// Run pulls chunks from the source until it is exhausted or the event
// budget is reached, accumulating each chunk in turn. The only blocking
// I/O in the loop is the NextChunk call itself.
func (e *Engine) Run(src events.Source) error {
	for {
		request := e.params.ChunkSize
		if e.params.MaxEvents > 0 {
			remaining := e.params.MaxEvents - e.stats.EventsRead
			if remaining <= 0 {
				return nil
			}
			if int64(request) > remaining {
				request = int(remaining)
			}
		}

		chunk, err := src.NextChunk(request)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pull chunk %d: %w", e.stats.Chunks, err)
		}

		if err := e.ProcessChunk(chunk); err != nil {
			return err
		}
	}
}

// ProcessChunk accumulates one chunk of raw records: filters to true
// coincidences, discretizes, and applies all increments. The chunk is
// fully applied before ProcessChunk returns, keeping the engine state
// consistent at chunk boundaries.
//
// Within the chunk, per-angle accumulation fans out to a bounded worker
// pool. Each angle's accumulator is written by exactly one goroutine and
// increments are additive, so the result is identical to serial execution.
func (e *Engine) ProcessChunk(records []models.EventRecord) error {
	if e.assembled {
		return fmt.Errorf("engine already assembled; cannot accumulate further chunks")
	}

	e.stats.EventsRead += int64(len(records))
	e.stats.Chunks++

	// Discretize every true event. Indexing has no shared state and the
	// clamping policy guarantees every true event yields valid indices,
	// so no event is lost between the filter and the accumulators.
	perAngle := make([][]binned, e.params.SinogramGrid.NTheta)
	for _, rec := range records {
		if !e.filter.IsTrue(rec) {
			continue
		}
		thetaIdx, sIdx := e.sinoIdx.Assign(rec.SinogramTheta, rec.SinogramS)
		b := binned{
			thetaIdx: thetaIdx,
			sIdx:     sIdx,
			voxelID:  e.voxelIdx.Assign(rec.SourcePosX1, rec.SourcePosY1, rec.SourcePosZ1),
		}
		perAngle[thetaIdx] = append(perAngle[thetaIdx], b)
		e.stats.TrueEvents++
		e.totals[b.voxelID]++
	}

	// Fan the per-angle buckets out to the worker pool.
	angleCh := make(chan int, len(perAngle))
	for theta, bucket := range perAngle {
		if len(bucket) > 0 {
			angleCh <- theta
		}
	}
	close(angleCh)

	workers := e.params.NumWorkers
	if workers > len(perAngle) {
		workers = len(perAngle)
	}
	errs := make([]error, e.params.SinogramGrid.NTheta)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for theta := range angleCh {
				for _, b := range perAngle[theta] {
					if err := e.accums[theta].Add(b.sIdx, b.voxelID, 1); err != nil {
						errs[theta] = fmt.Errorf("data inconsistency in angle %d: %v", theta, err)
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Assemble concatenates the per-angle accumulators in angle order into a
// single counts matrix of shape (nTheta*nS, nVox). The block order matches
// the sinogram Row formula exactly. Assembly finalizes the accumulators;
// the engine cannot accumulate further chunks afterwards.
func (e *Engine) Assemble() (*sparse.CSR, error) {
	e.assembled = true

	blocks := make([]*sparse.CSR, len(e.accums))
	for i, acc := range e.accums {
		blocks[i] = acc.Finalize()
	}
	counts, err := sparse.Stack(blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble counts matrix: %w", err)
	}
	return counts, nil
}

// VoxelTotals returns a copy of the per-voxel true-event totals.
func (e *Engine) VoxelTotals() []int64 {
	totals := make([]int64, len(e.totals))
	copy(totals, e.totals)
	return totals
}

// Stats returns the engine's progress counters.
func (e *Engine) Stats() Stats {
	return e.stats
}
