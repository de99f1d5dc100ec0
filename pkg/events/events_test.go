package events

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"petsysmat/internal/models"
)

// testRecords returns a small fixed event set: two true coincidences and
// one Compton-scattered event.
func testRecords() []models.EventRecord {
	return []models.EventRecord{
		{SourcePosX1: 1.5, SourcePosY1: -2.0, SourcePosZ1: 0.25, SinogramTheta: 0.1, SinogramS: 3.0},
		{SourcePosX1: -0.5, SourcePosY1: 0.0, SourcePosZ1: 1.0, ComptonPhantom1: 1, SinogramTheta: 1.2, SinogramS: -7.5},
		{SourcePosX1: 0.0, SourcePosY1: 4.0, SourcePosZ1: -1.0, SinogramTheta: 2.9, SinogramS: 0.0},
	}
}

// TestTrueCoincidenceFilter verifies that any non-zero scatter count
// rejects the event.
func TestTrueCoincidenceFilter(t *testing.T) {
	filter := NewTrueCoincidenceFilter()

	if !filter.IsTrue(models.EventRecord{}) {
		t.Error("unscattered event rejected")
	}
	scattered := []models.EventRecord{
		{ComptonPhantom1: 1},
		{ComptonPhantom2: 2},
		{RayleighPhantom1: 1},
		{RayleighPhantom2: 3},
		{ComptonPhantom1: 1, RayleighPhantom2: 1},
	}
	for i, rec := range scattered {
		if filter.IsTrue(rec) {
			t.Errorf("scattered event %d accepted", i)
		}
	}
}

// TestSliceSourceChunking verifies chunk limits and EOF behavior.
func TestSliceSourceChunking(t *testing.T) {
	src := NewSliceSource(testRecords())
	defer src.Close()

	chunk, err := src.NextChunk(2)
	if err != nil {
		t.Fatalf("first chunk failed: %v", err)
	}
	if len(chunk) != 2 {
		t.Fatalf("first chunk has %d records, want 2", len(chunk))
	}

	chunk, err = src.NextChunk(2)
	if err != nil {
		t.Fatalf("second chunk failed: %v", err)
	}
	if len(chunk) != 1 {
		t.Fatalf("second chunk has %d records, want 1", len(chunk))
	}

	if _, err = src.NextChunk(2); err != io.EOF {
		t.Fatalf("expected io.EOF after exhaustion, got %v", err)
	}
}

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test CSV: %v", err)
	}
	return path
}

const csvHeader = "sourcePosX1,sourcePosY1,sourcePosZ1,comptonPhantom1,comptonPhantom2,rayleighPhantom1,rayleighPhantom2,sinogramTheta,sinogramS\n"

// TestCSVSourceReads verifies header-addressed parsing and chunked reads.
func TestCSVSourceReads(t *testing.T) {
	path := writeTestCSV(t, csvHeader+
		"1.5,-2.0,0.25,0,0,0,0,0.1,3.0\n"+
		"-0.5,0.0,1.0,1,0,0,0,1.2,-7.5\n"+
		"0.0,4.0,-1.0,0,0,0,0,2.9,0.0\n")

	src, err := NewCSVSource(path)
	if err != nil {
		t.Fatalf("failed to open CSV source: %v", err)
	}
	defer src.Close()

	var all []models.EventRecord
	for {
		chunk, err := src.NextChunk(2)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("chunk read failed: %v", err)
		}
		all = append(all, chunk...)
	}

	want := testRecords()
	if len(all) != len(want) {
		t.Fatalf("read %d records, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, all[i], want[i])
		}
	}
}

// TestCSVSourceColumnOrder verifies that the header, not column position,
// addresses the fields.
func TestCSVSourceColumnOrder(t *testing.T) {
	path := writeTestCSV(t, "sinogramS,sinogramTheta,sourcePosZ1,sourcePosY1,sourcePosX1,rayleighPhantom2,rayleighPhantom1,comptonPhantom2,comptonPhantom1\n"+
		"3.0,0.1,0.25,-2.0,1.5,0,0,0,0\n")

	src, err := NewCSVSource(path)
	if err != nil {
		t.Fatalf("failed to open CSV source: %v", err)
	}
	defer src.Close()

	chunk, err := src.NextChunk(10)
	if err != nil {
		t.Fatalf("chunk read failed: %v", err)
	}
	if chunk[0] != testRecords()[0] {
		t.Errorf("record = %+v, want %+v", chunk[0], testRecords()[0])
	}
}

// TestCSVSourceMissingColumn verifies that a header without a required
// column is rejected at open time as a source failure.
func TestCSVSourceMissingColumn(t *testing.T) {
	path := writeTestCSV(t, "sourcePosX1,sourcePosY1,sourcePosZ1\n1,2,3\n")

	_, err := NewCSVSource(path)
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !errors.Is(err, ErrSourceFailure) {
		t.Errorf("error %v is not an ErrSourceFailure", err)
	}
}

// TestCSVSourceMalformedValue verifies that bad numerics fail the run
// instead of being skipped.
func TestCSVSourceMalformedValue(t *testing.T) {
	path := writeTestCSV(t, csvHeader+"1.5,-2.0,oops,0,0,0,0,0.1,3.0\n")

	src, err := NewCSVSource(path)
	if err != nil {
		t.Fatalf("failed to open CSV source: %v", err)
	}
	defer src.Close()

	_, err = src.NextChunk(10)
	if err == nil {
		t.Fatal("expected error for malformed value")
	}
	if !errors.Is(err, ErrSourceFailure) {
		t.Errorf("error %v is not an ErrSourceFailure", err)
	}
}

// TestSQLiteSourceRoundTrip writes records into a fixture database and
// reads them back through the chunked source.
func TestSQLiteSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	want := testRecords()
	if err := WriteSQLite(path, "", want); err != nil {
		t.Fatalf("failed to write fixture database: %v", err)
	}

	src, err := NewSQLiteSource(path, "")
	if err != nil {
		t.Fatalf("failed to open SQLite source: %v", err)
	}
	defer src.Close()

	var all []models.EventRecord
	for {
		chunk, err := src.NextChunk(2)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("chunk read failed: %v", err)
		}
		if len(chunk) > 2 {
			t.Fatalf("chunk has %d records, limit was 2", len(chunk))
		}
		all = append(all, chunk...)
	}

	if len(all) != len(want) {
		t.Fatalf("read %d records, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, all[i], want[i])
		}
	}
}

// TestSQLiteSourceMissingTable verifies that an unusable table is
// rejected at open time.
func TestSQLiteSourceMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	if err := WriteSQLite(path, "other", nil); err != nil {
		t.Fatalf("failed to write fixture database: %v", err)
	}

	_, err := NewSQLiteSource(path, "coincidences")
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !errors.Is(err, ErrSourceFailure) {
		t.Errorf("error %v is not an ErrSourceFailure", err)
	}
}
