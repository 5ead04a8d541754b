// Package scan runs duplicate checks as managed background scans: one scan at
// a time over the configured roots, with live progress, cancellation, scan
// history, and an in-memory snapshot of the latest completed results.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dupcheck/dupcheck/internal/dupe"
	"github.com/dupcheck/dupcheck/internal/history"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	ID          int64
	StartedAt   time.Time
	TriggeredBy string
	Progress    *dupe.Progress
}

// Snapshot is the outcome of the most recent completed scan. Groups live only
// here, in memory; they are never persisted.
type Snapshot struct {
	ScanID     int64
	FinishedAt time.Time
	Groups     []dupe.Group
	Errors     []dupe.CheckError
	FileCount  int
}

// Manager enforces a single-active-scan invariant and exposes start/cancel.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	store    *history.Store
	roots    []string
	excludes []string
	workers  int

	active   *ActiveScan
	cancelFn context.CancelFunc
	latest   *Snapshot
}

// NewManager creates a Manager scanning the given roots.
func NewManager(store *history.Store, roots, excludes []string, hashWorkers int) *Manager {
	return &Manager{
		store:    store,
		roots:    roots,
		excludes: excludes,
		workers:  hashWorkers,
	}
}

// Start launches an asynchronous scan over the configured roots. Returns an
// ActiveScan snapshot or ErrAlreadyRunning if a scan is already in progress.
// Every scan uses a fresh accumulator, so results never leak between runs.
func (m *Manager) Start(parentCtx context.Context, triggeredBy string) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	// Create the scan_history record now so the ID is available in the HTTP
	// response before the goroutine begins executing.
	startedAt := time.Now()
	scanID, err := m.store.Insert(startedAt, triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	progress := &dupe.Progress{}
	scanCtx, cancel := context.WithCancel(parentCtx)

	active := &ActiveScan{
		ID:          scanID,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
		Progress:    progress,
	}
	m.active = active
	m.cancelFn = cancel

	results := dupe.New(dupe.Config{
		HashWorkers:  m.workers,
		ExcludePaths: m.excludes,
		Progress:     progress,
	})
	roots := m.roots

	go func() {
		defer cancel()
		m.run(scanCtx, scanID, triggeredBy, startedAt, roots, results)

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
	}()

	return active, nil
}

// run executes one scan and records its outcome.
func (m *Manager) run(ctx context.Context, scanID int64, triggeredBy string, startedAt time.Time, roots []string, results *dupe.Results) {
	slog.Info("scan started", "id", scanID, "triggered_by", triggeredBy, "roots", roots)

	runErr := results.Within(ctx, roots)

	status := "completed"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case runErr != nil:
		status = "failed"
	}

	finishedAt := time.Now()
	groups := results.Duplicates()
	cerrs := results.Errors()
	progress := results.Progress()

	if err := m.store.RecordErrors(scanID, cerrs); err != nil {
		slog.Error("record scan errors", "id", scanID, "error", err)
	}
	sum := history.Summary{
		FilesDiscovered: progress.FilesDiscovered.Load(),
		FilesHashed:     progress.FullHashed.Load(),
		DuplicateGroups: int64(len(groups)),
		DuplicateFiles:  int64(results.FileCount()),
		Errors:          int64(len(cerrs)),
	}
	if err := m.store.Finalize(scanID, status, startedAt, finishedAt, sum); err != nil {
		slog.Error("finalize scan record", "id", scanID, "error", err)
	}

	if status == "completed" {
		m.mu.Lock()
		m.latest = &Snapshot{
			ScanID:     scanID,
			FinishedAt: finishedAt,
			Groups:     groups,
			Errors:     cerrs,
			FileCount:  results.FileCount(),
		}
		m.mu.Unlock()
	}

	slog.Info("scan finished", "id", scanID, "status", status,
		"files_discovered", sum.FilesDiscovered,
		"duplicate_groups", sum.DuplicateGroups,
		"errors", sum.Errors)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("scan run error", "id", scanID, "error", runErr)
	}
}

// Cancel stops the currently running scan. Returns ErrNoActiveScan if idle.
func (m *Manager) Cancel() (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveScan
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// Active returns a snapshot of the running scan, or nil when idle.
func (m *Manager) Active() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// Latest returns the most recent completed scan's results, or nil if no scan
// has completed since the process started.
func (m *Manager) Latest() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Wait blocks until no scan is active, polling briefly. Intended for tests
// and orderly shutdown.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		if m.Active() == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
