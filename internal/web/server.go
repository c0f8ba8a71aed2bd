// Package web provides an HTTP status server for the fridge-sensor daemon.
package web

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sweeney/fridge-sensor/internal/status"
)

// staleRounds is how many intervals may pass without a batch before
// /healthz reports the sampler as stale.
const staleRounds = 3

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker. metrics, if
// non-nil, is mounted at /metrics.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(log.Writer(), s.router(metrics)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router(metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	return r
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleHealth reports 200 while batches keep arriving. Sensor failures do
// not make the daemon unhealthy; a stalled scheduler does.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok, msg := health(s.tracker.Snapshot())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintln(w, msg)
}

func health(snap status.Snapshot) (bool, string) {
	if !snap.HasReading {
		return false, "starting"
	}
	interval := time.Duration(snap.Config.IntervalMs) * time.Millisecond
	age := snap.Now.Sub(snap.Last.Timestamp)
	if interval > 0 && age > staleRounds*interval {
		return false, fmt.Sprintf("stale: last sample %v ago", age.Truncate(time.Second))
	}
	return true, "ok"
}
