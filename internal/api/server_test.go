package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dupcheck/dupcheck/internal/db"
	"github.com/dupcheck/dupcheck/internal/history"
	"github.com/dupcheck/dupcheck/internal/scan"
	"github.com/dupcheck/dupcheck/internal/scheduler"
)

// newTestServer builds a Server around a temp database and a manager scanning
// root.
func newTestServer(t *testing.T, root string) (*Server, *scan.Manager, *history.Store) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := db.RunMigrations(d); err != nil {
		d.Close()
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	store := history.NewStore(d)
	mgr := scan.NewManager(store, []string{root}, nil, 2)
	srv := New(":0", store, mgr, scheduler.New(), "test")
	return srv, mgr, store
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// TestScanLifecycleOverHTTP triggers a scan via POST, waits for completion,
// and verifies the duplicates and scan-detail endpoints.
func TestScanLifecycleOverHTTP(t *testing.T) {
	root := t.TempDir()
	for _, f := range []struct{ name, content string }{
		{"a.txt", "hello"}, {"b.txt", "hello"}, {"c.txt", "world"},
	} {
		if err := os.WriteFile(filepath.Join(root, f.name), []byte(f.content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	srv, mgr, _ := newTestServer(t, root)

	rec := doRequest(t, srv, http.MethodPost, "/api/scans")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/scans: status %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Wait(ctx); err != nil {
		t.Fatalf("scan did not finish: %v", err)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/duplicates")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/duplicates: status %d, body %s", rec.Code, rec.Body)
	}
	var dups struct {
		ScanID     int64 `json:"scan_id"`
		GroupCount int   `json:"group_count"`
		FileCount  int   `json:"file_count"`
		Groups     []struct {
			Hash  string   `json:"hash"`
			Paths []string `json:"paths"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &dups); err != nil {
		t.Fatalf("decode duplicates: %v", err)
	}
	if dups.ScanID != created.ID {
		t.Errorf("scan_id: got %d, want %d", dups.ScanID, created.ID)
	}
	if dups.GroupCount != 1 || dups.FileCount != 2 || len(dups.Groups) != 1 {
		t.Errorf("duplicates: %+v", dups)
	}
	if len(dups.Groups) == 1 && len(dups.Groups[0].Hash) != 64 {
		t.Errorf("digest length: got %d, want 64 hex chars", len(dups.Groups[0].Hash))
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/scans/"+strconv.FormatInt(created.ID, 10))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/scans/{id}: status %d, body %s", rec.Code, rec.Body)
	}
	var detail struct {
		Scan struct {
			Status          string `json:"status"`
			DuplicateGroups int64  `json:"duplicate_groups"`
		} `json:"scan"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode scan detail: %v", err)
	}
	if detail.Scan.Status != "completed" || detail.Scan.DuplicateGroups != 1 {
		t.Errorf("scan detail: %+v", detail.Scan)
	}
}

// TestDuplicatesBeforeAnyScan returns 404 with a NO_RESULTS code.
func TestDuplicatesBeforeAnyScan(t *testing.T) {
	srv, _, _ := newTestServer(t, t.TempDir())

	rec := doRequest(t, srv, http.MethodGet, "/api/duplicates")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != "NO_RESULTS" {
		t.Errorf("code: got %q, want NO_RESULTS", body.Error.Code)
	}
}

// TestCancelWithoutActiveScan returns 404 NO_ACTIVE_SCAN.
func TestCancelWithoutActiveScan(t *testing.T) {
	srv, _, _ := newTestServer(t, t.TempDir())

	rec := doRequest(t, srv, http.MethodDelete, "/api/scans/current")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

// TestStatusIdle verifies the idle shape of GET /api/status.
func TestStatusIdle(t *testing.T) {
	srv, _, _ := newTestServer(t, t.TempDir())

	rec := doRequest(t, srv, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body struct {
		Version string `json:"version"`
		State   string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Version != "test" || body.State != "idle" {
		t.Errorf("status body: %+v", body)
	}
}

