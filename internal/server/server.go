package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pfrederiksen/course-scraper/internal/course"
	"github.com/pfrederiksen/course-scraper/internal/logger"
	"github.com/pfrederiksen/course-scraper/internal/runner"
)

// Store is the read and delete side of the course store
type Store interface {
	ReadAll() ([]*course.Record, error)
	DeleteByKey(courseCode string) bool
}

// Runs queues scrapes and reports on them
type Runs interface {
	Submit(query string) (runner.Run, error)
	Status(id string) (runner.Run, bool)
	Runs() []runner.Run
}

// Deps are the collaborators the handlers need
type Deps struct {
	Store     Store
	Runs      Runs
	StartTime time.Time
}

// Server wraps the HTTP server and its router
type Server struct {
	http *http.Server
}

// New builds the router and HTTP server listening on addr
func New(addr string, d Deps) *Server {
	if d.StartTime.IsZero() {
		d.StartTime = time.Now()
	}

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           Router(d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Router registers every route on a fresh chi router
func Router(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)

	r.Post("/scrape", scrape(d))
	r.Get("/results", results(d))
	r.Post("/delete-entry", deleteEntry(d))
	r.Get("/runs", listRuns(d))
	r.Get("/runs/{id}", getRun(d))
	r.Get("/healthz", healthz(d))
	r.Get("/metrics", metrics)

	return r
}

// Start listens on the configured address and serves until the server is stopped
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is stopped.
// A graceful stop is not an error.
func (s *Server) Serve(ln net.Listener) error {
	logger.Info("HTTP server listening", logger.Fields{"addr": ln.Addr().String()})
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server within the ctx deadline
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("HTTP server shutting down", nil)
	return s.http.Shutdown(ctx)
}
