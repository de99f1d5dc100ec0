package events

import (
	"database/sql"
	"fmt"
	"io"

	_ "modernc.org/sqlite" // SQLite driver

	"petsysmat/internal/models"
)

// DefaultEventTable is the table name used when the caller does not
// configure one.
const DefaultEventTable = "coincidences"

// SQLiteSource reads event records from a SQLite database, the other
// common export target of the simulation chain. Records are read in
// rowid order in LIMIT/OFFSET chunks, so the stream order is stable
// across runs.
type SQLiteSource struct {
	db     *sql.DB
	table  string
	offset int64
	done   bool
}

// NewSQLiteSource opens a SQLite event database. table selects the event
// table; an empty string uses DefaultEventTable.
func NewSQLiteSource(path, table string) (*SQLiteSource, error) {
	if table == "" {
		table = DefaultEventTable
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrSourceFailure, path, err)
	}
	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)

	// Fail now, not on the first chunk, if the table or its columns are
	// unusable.
	probe := fmt.Sprintf(`SELECT sourcePosX1, sourcePosY1, sourcePosZ1,
		comptonPhantom1, comptonPhantom2, rayleighPhantom1, rayleighPhantom2,
		sinogramTheta, sinogramS FROM %q LIMIT 1`, table)
	rows, err := db.Query(probe)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: table %q is missing or lacks required columns: %v", ErrSourceFailure, table, err)
	}
	rows.Close()

	return &SQLiteSource{db: db, table: table}, nil
}

// NextChunk reads up to max records starting at the current offset.
func (s *SQLiteSource) NextChunk(max int) ([]models.EventRecord, error) {
	if s.done {
		return nil, io.EOF
	}
	if max <= 0 {
		return nil, fmt.Errorf("%w: non-positive chunk request %d", ErrSourceFailure, max)
	}

	query := fmt.Sprintf(`SELECT sourcePosX1, sourcePosY1, sourcePosZ1,
		comptonPhantom1, comptonPhantom2, rayleighPhantom1, rayleighPhantom2,
		sinogramTheta, sinogramS FROM %q ORDER BY rowid LIMIT ? OFFSET ?`, s.table)
	rows, err := s.db.Query(query, max, s.offset)
	if err != nil {
		return nil, fmt.Errorf("%w: query at offset %d: %v", ErrSourceFailure, s.offset, err)
	}
	defer rows.Close()

	chunk := make([]models.EventRecord, 0, max)
	for rows.Next() {
		var rec models.EventRecord
		if err := rows.Scan(
			&rec.SourcePosX1, &rec.SourcePosY1, &rec.SourcePosZ1,
			&rec.ComptonPhantom1, &rec.ComptonPhantom2,
			&rec.RayleighPhantom1, &rec.RayleighPhantom2,
			&rec.SinogramTheta, &rec.SinogramS,
		); err != nil {
			return nil, fmt.Errorf("%w: scan at offset %d: %v", ErrSourceFailure, s.offset+int64(len(chunk)), err)
		}
		chunk = append(chunk, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: terminated mid-chunk at offset %d: %v", ErrSourceFailure, s.offset, err)
	}

	s.offset += int64(len(chunk))
	if len(chunk) == 0 {
		s.done = true
		return nil, io.EOF
	}
	return chunk, nil
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// WriteSQLite creates the event table in a SQLite database at path and
// inserts the given records in order. Used by tests and fixture tooling.
func WriteSQLite(path, table string, records []models.EventRecord) error {
	if table == "" {
		table = DefaultEventTable
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		sourcePosX1 REAL NOT NULL,
		sourcePosY1 REAL NOT NULL,
		sourcePosZ1 REAL NOT NULL,
		comptonPhantom1 INTEGER NOT NULL,
		comptonPhantom2 INTEGER NOT NULL,
		rayleighPhantom1 INTEGER NOT NULL,
		rayleighPhantom2 INTEGER NOT NULL,
		sinogramTheta REAL NOT NULL,
		sinogramS REAL NOT NULL
	)`, table)
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table %q: %w", table, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	insert := fmt.Sprintf(`INSERT INTO %q (sourcePosX1, sourcePosY1, sourcePosZ1,
		comptonPhantom1, comptonPhantom2, rayleighPhantom1, rayleighPhantom2,
		sinogramTheta, sinogramS) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)
	stmt, err := tx.Prepare(insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(
			rec.SourcePosX1, rec.SourcePosY1, rec.SourcePosZ1,
			rec.ComptonPhantom1, rec.ComptonPhantom2,
			rec.RayleighPhantom1, rec.RayleighPhantom2,
			rec.SinogramTheta, rec.SinogramS,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
