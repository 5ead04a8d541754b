// Package history persists scan metadata: one scan_history row per check run
// and one scan_errors row per recorded CheckError. Digests and duplicate
// groups are deliberately never written to disk; they live only in memory for
// the lifetime of the accumulator that found them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dupcheck/dupcheck/internal/dupe"
)

// ErrNotFound is returned by Get for an unknown scan ID.
var ErrNotFound = errors.New("scan not found")

// Scan is one scan_history row.
type Scan struct {
	ID              int64      `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	Status          string     `json:"status"`
	TriggeredBy     string     `json:"triggered_by"`
	FilesDiscovered int64      `json:"files_discovered"`
	FilesHashed     int64      `json:"files_hashed"`
	DuplicateGroups int64      `json:"duplicate_groups"`
	DuplicateFiles  int64      `json:"duplicate_files"`
	Errors          int64      `json:"errors"`
}

// ScanError is one scan_errors row, rendered the same way the CLI renders a
// CheckError: the path plus the underlying reason.
type ScanError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary carries the final counters written when a scan finishes.
type Summary struct {
	FilesDiscovered int64
	FilesHashed     int64
	DuplicateGroups int64
	DuplicateFiles  int64
	Errors          int64
}

// Store reads and writes scan metadata.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert creates a scan_history row in 'running' state and returns its ID.
func (s *Store) Insert(startedAt time.Time, triggeredBy string) (int64, error) {
	now := startedAt.Unix()
	res, err := s.db.Exec(`
		INSERT INTO scan_history (started_at, status, triggered_by, created_at)
		VALUES (?, 'running', ?, ?)`,
		now, triggeredBy, now)
	if err != nil {
		return 0, fmt.Errorf("insert scan record: %w", err)
	}
	return res.LastInsertId()
}

// Finalize writes the terminal status and counters for a scan.
func (s *Store) Finalize(scanID int64, status string, startedAt, finishedAt time.Time, sum Summary) error {
	duration := int64(finishedAt.Sub(startedAt).Seconds())
	_, err := s.db.Exec(`
		UPDATE scan_history
		SET status           = ?,
		    finished_at      = ?,
		    duration_seconds = ?,
		    files_discovered = ?,
		    files_hashed     = ?,
		    duplicate_groups = ?,
		    duplicate_files  = ?,
		    errors           = ?
		WHERE id = ?`,
		status, finishedAt.Unix(), duration,
		sum.FilesDiscovered, sum.FilesHashed,
		sum.DuplicateGroups, sum.DuplicateFiles, sum.Errors,
		scanID)
	if err != nil {
		return fmt.Errorf("finalize scan %d: %w", scanID, err)
	}
	return nil
}

// RecordErrors stores the CheckErrors a scan accumulated, one row each,
// within a single transaction.
func (s *Store) RecordErrors(scanID int64, cerrs []dupe.CheckError) error {
	if len(cerrs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scan_errors (scan_id, path, reason, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert scan_errors: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, ce := range cerrs {
		if _, err := stmt.Exec(scanID, ce.Path, ce.Err.Error(), now); err != nil {
			return fmt.Errorf("insert scan error for %q: %w", ce.Path, err)
		}
	}
	return tx.Commit()
}

// List returns scan rows newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, duration_seconds, status, triggered_by,
		       files_discovered, files_hashed, duplicate_groups, duplicate_files, errors
		FROM scan_history
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			slog.Error("history: scan row", "error", err)
			continue
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Get returns one scan and its recorded errors.
func (s *Store) Get(ctx context.Context, id int64) (*Scan, []ScanError, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, duration_seconds, status, triggered_by,
		       files_discovered, files_hashed, duplicate_groups, duplicate_files, errors
		FROM scan_history
		WHERE id = ?`, id)

	sc, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get scan %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, reason FROM scan_errors WHERE scan_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get scan %d errors: %w", id, err)
	}
	defer rows.Close()

	var cerrs []ScanError
	for rows.Next() {
		var se ScanError
		if err := rows.Scan(&se.Path, &se.Reason); err != nil {
			return nil, nil, err
		}
		cerrs = append(cerrs, se)
	}
	return &sc, cerrs, rows.Err()
}

// MarkStaleFailed marks rows still in 'running' state as 'failed'. Called
// once at startup in case a previous process crashed mid-scan.
func (s *Store) MarkStaleFailed() error {
	res, err := s.db.Exec(`
		UPDATE scan_history
		SET status = 'failed', finished_at = ?
		WHERE status = 'running'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark stale scans failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scans as failed", "count", n)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (Scan, error) {
	var (
		sc         Scan
		startedAt  int64
		finishedAt sql.NullInt64
		duration   sql.NullInt64
	)
	err := r.Scan(
		&sc.ID, &startedAt, &finishedAt, &duration, &sc.Status, &sc.TriggeredBy,
		&sc.FilesDiscovered, &sc.FilesHashed, &sc.DuplicateGroups, &sc.DuplicateFiles, &sc.Errors,
	)
	if err != nil {
		return Scan{}, err
	}
	sc.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		sc.FinishedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		sc.DurationSeconds = &d
	}
	return sc, nil
}
