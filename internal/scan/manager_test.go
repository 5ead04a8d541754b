package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dupcheck/dupcheck/internal/db"
	"github.com/dupcheck/dupcheck/internal/history"
)

func mustStore(tb testing.TB) *history.Store {
	tb.Helper()
	d, err := db.Open(filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := db.RunMigrations(d); err != nil {
		d.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { d.Close() })
	return history.NewStore(d)
}

func writeFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		tb.Fatal(err)
	}
	return p
}

// TestManagerRunsScanAndRecordsHistory starts a scan over a small tree with
// one duplicate pair and verifies the history row and the in-memory snapshot.
func TestManagerRunsScanAndRecordsHistory(t *testing.T) {
	store := mustStore(t)
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "b.txt", "hello")
	writeFile(t, root, "c.txt", "world")

	mgr := NewManager(store, []string{root}, nil, 2)

	active, err := mgr.Start(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if active.ID == 0 {
		t.Error("expected a scan ID before the goroutine runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("scan did not finish: %v", err)
	}

	sc, cerrs, err := store.Get(context.Background(), active.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sc.Status != "completed" {
		t.Errorf("status: got %q, want completed", sc.Status)
	}
	if sc.DuplicateGroups != 1 || sc.DuplicateFiles != 2 {
		t.Errorf("counts: groups=%d files=%d, want 1 and 2", sc.DuplicateGroups, sc.DuplicateFiles)
	}
	if sc.FilesDiscovered != 3 {
		t.Errorf("files_discovered: got %d, want 3", sc.FilesDiscovered)
	}
	if len(cerrs) != 0 {
		t.Errorf("unexpected persisted errors: %v", cerrs)
	}

	snap := mgr.Latest()
	if snap == nil {
		t.Fatal("expected a completed snapshot")
	}
	if snap.ScanID != active.ID || len(snap.Groups) != 1 || snap.FileCount != 2 {
		t.Errorf("snapshot: %+v", snap)
	}
}

// TestManagerSingleActiveScan verifies a second Start while running returns
// ErrAlreadyRunning.
func TestManagerSingleActiveScan(t *testing.T) {
	store := mustStore(t)
	root := t.TempDir()
	// Enough duplicate files to keep the first scan busy for a moment.
	for i := 0; i < 500; i++ {
		writeFile(t, root, fmt.Sprintf("f%04d.txt", i), "identical content")
	}

	mgr := NewManager(store, []string{root}, nil, 1)
	if _, err := mgr.Start(context.Background(), "manual"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := mgr.Start(context.Background(), "manual")
	if err != nil && !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start: got %v, want ErrAlreadyRunning or nil (already finished)", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = mgr.Wait(ctx)
}

// TestManagerCancel starts a scan, cancels it, and verifies the history row
// ends in 'cancelled' (or 'completed' if the scan won the race) and Cancel on
// an idle manager reports ErrNoActiveScan.
func TestManagerCancel(t *testing.T) {
	store := mustStore(t)
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hello")
	writeFile(t, root, "b.txt", "hello")

	mgr := NewManager(store, []string{root}, nil, 1)
	active, err := mgr.Start(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := mgr.Cancel(); err != nil && !errors.Is(err, ErrNoActiveScan) {
		t.Fatalf("Cancel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("scan did not stop: %v", err)
	}

	sc, _, err := store.Get(context.Background(), active.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sc.Status != "cancelled" && sc.Status != "completed" {
		t.Errorf("status: got %q, want cancelled or completed", sc.Status)
	}

	if _, err := mgr.Cancel(); !errors.Is(err, ErrNoActiveScan) {
		t.Errorf("Cancel when idle: got %v, want ErrNoActiveScan", err)
	}
}
