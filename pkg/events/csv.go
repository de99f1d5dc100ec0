package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"petsysmat/internal/models"
)

// Column names expected in the CSV header. These follow the flat record
// naming of the simulation export (one row per coincidence, photon index
// suffixed).
const (
	colSourceX          = "sourcePosX1"
	colSourceY          = "sourcePosY1"
	colSourceZ          = "sourcePosZ1"
	colComptonPhantom1  = "comptonPhantom1"
	colComptonPhantom2  = "comptonPhantom2"
	colRayleighPhantom1 = "rayleighPhantom1"
	colRayleighPhantom2 = "rayleighPhantom2"
	colSinogramTheta    = "sinogramTheta"
	colSinogramS        = "sinogramS"
)

// requiredColumns lists every column a usable export must carry.
var requiredColumns = []string{
	colSourceX, colSourceY, colSourceZ,
	colComptonPhantom1, colComptonPhantom2,
	colRayleighPhantom1, colRayleighPhantom2,
	colSinogramTheta, colSinogramS,
}

// CSVSource reads event records from a headered CSV export of the
// simulation output. Columns are addressed by header name, so column
// order in the file does not matter; extra columns are ignored.
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	columns map[string]int
	line    int
}

// NewCSVSource opens a CSV event file and validates that its header
// carries every required column.
func NewCSVSource(path string) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrSourceFailure, path, err)
	}

	reader := csv.NewReader(file)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: failed to read header of %s: %v", ErrSourceFailure, path, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			file.Close()
			return nil, fmt.Errorf("%w: %s is missing required column %q", ErrSourceFailure, path, name)
		}
	}

	return &CSVSource{file: file, reader: reader, columns: columns, line: 1}, nil
}

// NextChunk reads up to max records. Malformed rows are source failures;
// the run must not silently continue past them.
func (s *CSVSource) NextChunk(max int) ([]models.EventRecord, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: non-positive chunk request %d", ErrSourceFailure, max)
	}

	chunk := make([]models.EventRecord, 0, max)
	for len(chunk) < max {
		row, err := s.reader.Read()
		if err == io.EOF {
			if len(chunk) == 0 {
				return nil, io.EOF
			}
			return chunk, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read error near line %d: %v", ErrSourceFailure, s.line, err)
		}
		s.line++

		rec, err := s.parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSourceFailure, s.line, err)
		}
		chunk = append(chunk, rec)
	}
	return chunk, nil
}

// Close closes the underlying file.
func (s *CSVSource) Close() error {
	return s.file.Close()
}

func (s *CSVSource) parseRow(row []string) (models.EventRecord, error) {
	var rec models.EventRecord
	var err error

	if rec.SourcePosX1, err = s.floatField(row, colSourceX); err != nil {
		return rec, err
	}
	if rec.SourcePosY1, err = s.floatField(row, colSourceY); err != nil {
		return rec, err
	}
	if rec.SourcePosZ1, err = s.floatField(row, colSourceZ); err != nil {
		return rec, err
	}
	if rec.ComptonPhantom1, err = s.intField(row, colComptonPhantom1); err != nil {
		return rec, err
	}
	if rec.ComptonPhantom2, err = s.intField(row, colComptonPhantom2); err != nil {
		return rec, err
	}
	if rec.RayleighPhantom1, err = s.intField(row, colRayleighPhantom1); err != nil {
		return rec, err
	}
	if rec.RayleighPhantom2, err = s.intField(row, colRayleighPhantom2); err != nil {
		return rec, err
	}
	if rec.SinogramTheta, err = s.floatField(row, colSinogramTheta); err != nil {
		return rec, err
	}
	if rec.SinogramS, err = s.floatField(row, colSinogramS); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *CSVSource) floatField(row []string, name string) (float64, error) {
	idx := s.columns[name]
	if idx >= len(row) {
		return 0, fmt.Errorf("row too short for column %q", name)
	}
	v, err := strconv.ParseFloat(row[idx], 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: invalid value %q", name, row[idx])
	}
	return v, nil
}

func (s *CSVSource) intField(row []string, name string) (int, error) {
	idx := s.columns[name]
	if idx >= len(row) {
		return 0, fmt.Errorf("row too short for column %q", name)
	}
	v, err := strconv.Atoi(row[idx])
	if err != nil {
		return 0, fmt.Errorf("column %q: invalid value %q", name, row[idx])
	}
	return v, nil
}
