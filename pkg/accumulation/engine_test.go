package accumulation

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"petsysmat/internal/models"
	"petsysmat/pkg/events"
	"petsysmat/pkg/sparse"
)

func testParams(chunkSize int) Params {
	return Params{
		VoxelGrid: models.VoxelGrid{
			NX: 3, NY: 3, NZ: 2,
			XMin: -10, XMax: 10,
			YMin: -10, YMax: 10,
			ZMin: -5, ZMax: 5,
		},
		SinogramGrid: models.SinogramGrid{NTheta: 4, NS: 5, SMin: -12, SMax: 12},
		ChunkSize:    chunkSize,
		NumWorkers:   2,
	}
}

// randomEvents generates a reproducible mixed stream of true and
// scattered events, including out-of-bounds positions and offsets.
func randomEvents(n int, seed int64) []models.EventRecord {
	rng := rand.New(rand.NewSource(seed))
	recs := make([]models.EventRecord, n)
	for i := range recs {
		recs[i] = models.EventRecord{
			SourcePosX1:   rng.Float64()*30 - 15,
			SourcePosY1:   rng.Float64()*30 - 15,
			SourcePosZ1:   rng.Float64()*14 - 7,
			SinogramTheta: rng.Float64()*4*math.Pi - 2*math.Pi,
			SinogramS:     rng.Float64()*40 - 20,
		}
		// Roughly a third of events scatter.
		if rng.Intn(3) == 0 {
			recs[i].ComptonPhantom1 = 1 + rng.Intn(2)
		}
	}
	return recs
}

func runEngine(t *testing.T, params Params, recs []models.EventRecord) (*sparse.CSR, []int64, Stats) {
	t.Helper()
	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.Run(events.NewSliceSource(recs)); err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	counts, err := engine.Assemble()
	if err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	return counts, engine.VoxelTotals(), engine.Stats()
}

// TestEngineConservation verifies that per-voxel column sums of the
// counts matrix equal the voxel totals: under the clamping policy every
// true event lands in a valid sinogram row.
func TestEngineConservation(t *testing.T) {
	recs := randomEvents(5000, 1)
	counts, totals, stats := runEngine(t, testParams(128), recs)

	if stats.EventsRead != 5000 {
		t.Errorf("events read = %d, want 5000", stats.EventsRead)
	}
	if stats.TrueEvents <= 0 || stats.TrueEvents >= 5000 {
		t.Fatalf("implausible true-event count %d", stats.TrueEvents)
	}

	colSums := counts.ColumnSums()
	var totalTrue int64
	for j, total := range totals {
		if int64(colSums[j]) != total {
			t.Errorf("voxel %d: column sum %g != total %d", j, colSums[j], total)
		}
		totalTrue += total
	}
	if totalTrue != stats.TrueEvents {
		t.Errorf("sum of totals %d != true events %d", totalTrue, stats.TrueEvents)
	}
}

// TestEngineChunkInvariance verifies that the final counts and totals do
// not depend on the chunk size: size 1, a mid-size, and the full stream
// must agree entry for entry.
func TestEngineChunkInvariance(t *testing.T) {
	recs := randomEvents(2000, 7)

	ref, refTotals, _ := runEngine(t, testParams(len(recs)), recs)
	for _, chunkSize := range []int{1, 3, 97, 1024} {
		counts, totals, _ := runEngine(t, testParams(chunkSize), recs)

		if counts.Rows != ref.Rows || counts.Cols != ref.Cols || counts.NNZ() != ref.NNZ() {
			t.Fatalf("chunk size %d: shape/nnz (%d, %d, %d) differs from reference (%d, %d, %d)",
				chunkSize, counts.Rows, counts.Cols, counts.NNZ(), ref.Rows, ref.Cols, ref.NNZ())
		}
		for k := range ref.Values {
			if counts.ColIdx[k] != ref.ColIdx[k] || counts.Values[k] != ref.Values[k] {
				t.Fatalf("chunk size %d: entry %d differs from reference", chunkSize, k)
			}
		}
		for j := range refTotals {
			if totals[j] != refTotals[j] {
				t.Fatalf("chunk size %d: totals[%d] = %d, reference %d", chunkSize, j, totals[j], refTotals[j])
			}
		}
	}
}

// TestEngineWorkerInvariance verifies that the worker-pool width does not
// affect the result.
func TestEngineWorkerInvariance(t *testing.T) {
	recs := randomEvents(1500, 11)

	serial := testParams(64)
	serial.NumWorkers = 1
	ref, refTotals, _ := runEngine(t, serial, recs)

	wide := testParams(64)
	wide.NumWorkers = 8
	counts, totals, _ := runEngine(t, wide, recs)

	if counts.NNZ() != ref.NNZ() {
		t.Fatalf("nnz %d differs from serial reference %d", counts.NNZ(), ref.NNZ())
	}
	for k := range ref.Values {
		if counts.Values[k] != ref.Values[k] {
			t.Fatalf("entry %d differs from serial reference", k)
		}
	}
	for j := range refTotals {
		if totals[j] != refTotals[j] {
			t.Fatalf("totals[%d] differs from serial reference", j)
		}
	}
}

// TestEngineFiltersScatter verifies that scattered events contribute to
// neither counts nor totals.
func TestEngineFiltersScatter(t *testing.T) {
	recs := []models.EventRecord{
		{SinogramTheta: 0.2, SinogramS: 1},
		{SinogramTheta: 0.2, SinogramS: 1, ComptonPhantom2: 1},
		{SinogramTheta: 0.2, SinogramS: 1, RayleighPhantom1: 2},
	}
	counts, totals, stats := runEngine(t, testParams(10), recs)

	if stats.TrueEvents != 1 {
		t.Errorf("true events = %d, want 1", stats.TrueEvents)
	}
	var sum int64
	for _, total := range totals {
		sum += total
	}
	if sum != 1 {
		t.Errorf("sum of totals = %d, want 1", sum)
	}
	if counts.NNZ() != 1 {
		t.Errorf("nnz = %d, want 1", counts.NNZ())
	}
}

// TestEngineMaxEvents verifies the event budget cap.
func TestEngineMaxEvents(t *testing.T) {
	params := testParams(64)
	params.MaxEvents = 300

	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.Run(events.NewSliceSource(randomEvents(1000, 3))); err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	if got := engine.Stats().EventsRead; got != 300 {
		t.Errorf("events read = %d, want 300", got)
	}
}

// TestEngineChunkBudget verifies the working-set guard rejects oversized
// chunks up front with the dedicated sentinel.
func TestEngineChunkBudget(t *testing.T) {
	params := testParams(1 << 20)
	params.MaxWorkingSetBytes = 1 << 10

	_, err := NewEngine(params)
	if err == nil {
		t.Fatal("expected error for oversized chunk")
	}
	if !errors.Is(err, ErrChunkTooLarge) {
		t.Errorf("error %v is not ErrChunkTooLarge", err)
	}
}

// TestEngineInvalidParams verifies configuration errors surface before
// processing.
func TestEngineInvalidParams(t *testing.T) {
	bad := testParams(0)
	if _, err := NewEngine(bad); err == nil {
		t.Error("expected error for zero chunk size")
	}

	bad = testParams(10)
	bad.VoxelGrid.NX = 0
	if _, err := NewEngine(bad); err == nil {
		t.Error("expected error for zero voxel count")
	}

	bad = testParams(10)
	bad.SinogramGrid.SMin = 5
	bad.SinogramGrid.SMax = 5
	if _, err := NewEngine(bad); err == nil {
		t.Error("expected error for empty offset range")
	}
}

// TestEngineAccumulateAfterAssemble verifies the one-shot assembly
// contract.
func TestEngineAccumulateAfterAssemble(t *testing.T) {
	engine, err := NewEngine(testParams(10))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if _, err := engine.Assemble(); err != nil {
		t.Fatalf("assembly failed: %v", err)
	}
	if err := engine.ProcessChunk(randomEvents(5, 2)); err == nil {
		t.Error("expected error when accumulating after assembly")
	}
}
