// Package events provides access to simulated coincidence events: the
// Source abstraction over simulation output stores, concrete CSV and
// SQLite backed sources, and the true-coincidence filter that selects the
// unscattered events the system matrix is estimated from.
package events

import (
	"errors"
	"fmt"
	"io"

	"petsysmat/internal/models"
)

// ErrSourceFailure marks errors caused by the event source being unable
// to supply the requested records: missing fields, malformed values, or
// unexpected termination mid-chunk. Such failures are fatal for the run;
// the pipeline never silently continues past them.
var ErrSourceFailure = errors.New("event source failure")

// Source is an ordered, batchable stream of simulated event records.
// Implementations are read-once: records are consumed in order and each
// record is delivered exactly once.
type Source interface {
	// NextChunk returns up to max records. A short (even empty) read
	// does not signal the end of the stream; only io.EOF does.
	NextChunk(max int) ([]models.EventRecord, error)

	// Close releases any resources held by the source.
	Close() error
}

// SliceSource serves records from an in-memory slice. It is used by tests
// and by library callers that already hold their events in memory.
type SliceSource struct {
	records []models.EventRecord
	pos     int
}

// NewSliceSource creates a source over the given records. The slice is
// not copied; the caller must not mutate it while reading.
func NewSliceSource(records []models.EventRecord) *SliceSource {
	return &SliceSource{records: records}
}

// NextChunk returns the next max records, or io.EOF once exhausted.
func (s *SliceSource) NextChunk(max int) ([]models.EventRecord, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	if max <= 0 {
		return nil, fmt.Errorf("%w: non-positive chunk request %d", ErrSourceFailure, max)
	}
	end := s.pos + max
	if end > len(s.records) {
		end = len(s.records)
	}
	chunk := s.records[s.pos:end]
	s.pos = end
	return chunk, nil
}

// Close is a no-op for the in-memory source.
func (s *SliceSource) Close() error {
	return nil
}
