// Package api exposes the scan service over HTTP as a JSON API.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dupcheck/dupcheck/internal/history"
	"github.com/dupcheck/dupcheck/internal/scan"
	"github.com/dupcheck/dupcheck/internal/scheduler"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
func New(addr string, store *history.Store, mgr *scan.Manager, sched *scheduler.Scheduler, version string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	h := &handlers{store: store, mgr: mgr, sched: sched, version: version}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)

		r.Post("/scans", h.scanCreate)
		r.Get("/scans", h.scanList)
		r.Get("/scans/{id}", h.scanGet)
		r.Delete("/scans/current", h.scanCancel)

		r.Get("/duplicates", h.duplicates)
	})

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
