package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dupcheck/dupcheck/internal/history"
	"github.com/dupcheck/dupcheck/internal/scan"
	"github.com/dupcheck/dupcheck/internal/scheduler"
)

type handlers struct {
	store   *history.Store
	mgr     *scan.Manager
	sched   *scheduler.Scheduler
	version string
}

// status handles GET /api/status.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"version": h.version,
		"state":   "idle",
	}

	if next := h.sched.NextRunAt(); next != nil {
		resp["next_run_at"] = next.UTC().Format(time.RFC3339)
		resp["schedule"] = h.sched.CronExpr()
	}

	if active := h.mgr.Active(); active != nil {
		resp["state"] = "scanning"
		resp["scan"] = map[string]any{
			"id":               active.ID,
			"started_at":       active.StartedAt.UTC().Format(time.RFC3339),
			"triggered_by":     active.TriggeredBy,
			"files_discovered": active.Progress.FilesDiscovered.Load(),
			"candidates":       active.Progress.Candidates.Load(),
			"partial_hashed":   active.Progress.PartialHashed.Load(),
			"full_hashed":      active.Progress.FullHashed.Load(),
			"bytes_read":       active.Progress.BytesRead.Load(),
			"errors":           active.Progress.Errors.Load(),
		}
	}

	if snap := h.mgr.Latest(); snap != nil {
		resp["latest_scan_id"] = snap.ScanID
	}

	writeJSON(w, http.StatusOK, resp)
}

// scanCreate handles POST /api/scans — triggers a manual scan.
func (h *handlers) scanCreate(w http.ResponseWriter, r *http.Request) {
	active, err := h.mgr.Start(context.Background(), "manual")
	if err != nil {
		if errors.Is(err, scan.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "SCAN_ALREADY_RUNNING", "A scan is already in progress")
			return
		}
		slog.Error("scans: start", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start scan")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":           active.ID,
		"status":       "running",
		"started_at":   active.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by": active.TriggeredBy,
	})
}

// scanCancel handles DELETE /api/scans/current.
func (h *handlers) scanCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mgr.Cancel()
	if err != nil {
		if errors.Is(err, scan.ErrNoActiveScan) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SCAN", "No scan is currently running")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         snap.ID,
		"status":     "cancelling",
		"started_at": snap.StartedAt.UTC().Format(time.RFC3339),
	})
}

// scanList handles GET /api/scans — scan history newest first.
func (h *handlers) scanList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	scans, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("scans list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if scans == nil {
		scans = []history.Scan{}
	}
	writeJSON(w, http.StatusOK, ListResponse[history.Scan]{
		Items:  scans,
		Total:  len(scans),
		Limit:  limit,
		Offset: offset,
	})
}

// scanGet handles GET /api/scans/{id}, including the scan's recorded errors.
func (h *handlers) scanGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_ID", "Scan ID must be an integer")
		return
	}

	sc, cerrs, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "SCAN_NOT_FOUND", "No such scan")
			return
		}
		slog.Error("scans get", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if cerrs == nil {
		cerrs = []history.ScanError{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scan":   sc,
		"errors": cerrs,
	})
}

// duplicates handles GET /api/duplicates — the latest completed scan's
// groups, straight from memory.
func (h *handlers) duplicates(w http.ResponseWriter, r *http.Request) {
	snap := h.mgr.Latest()
	if snap == nil {
		writeError(w, http.StatusNotFound, "NO_RESULTS", "No scan has completed yet")
		return
	}

	type group struct {
		Hash  string   `json:"hash"`
		Paths []string `json:"paths"`
	}
	groups := make([]group, len(snap.Groups))
	for i, g := range snap.Groups {
		groups[i] = group{Hash: g.Hash, Paths: g.Paths}
	}

	cerrs := make([]history.ScanError, len(snap.Errors))
	for i, ce := range snap.Errors {
		cerrs[i] = history.ScanError{Path: ce.Path, Reason: ce.Err.Error()}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":     snap.ScanID,
		"finished_at": snap.FinishedAt.UTC().Format(time.RFC3339),
		"group_count": len(groups),
		"file_count":  snap.FileCount,
		"groups":      groups,
		"errors":      cerrs,
	})
}
