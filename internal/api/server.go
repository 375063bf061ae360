// Package api serves the graph listing, graph dumps, the live event stream
// and Prometheus metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/provenance/internal/graph"
	"github.com/roach88/provenance/internal/manager"
	"github.com/roach88/provenance/internal/stream"
)

const shutdownTimeout = 5 * time.Second

var errNoEvents = errors.New("event stream not configured")

// Server routes:
//
//	GET /api/graphs        descriptors, optionally filtered by ?match=<glob>
//	GET /api/graphs/{id}   full JSON dump of one graph
//	GET /ws/events         live event stream
//	GET /metrics           Prometheus metrics
type Server struct {
	manager  manager.Manager
	events   *stream.Broadcaster
	gatherer prometheus.Gatherer
	recent   int
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithRecent sets how many past events a new websocket client receives.
func WithRecent(n int) Option {
	return func(s *Server) { s.recent = n }
}

// NewServer creates a server over mgr and the event broadcaster.
func NewServer(mgr manager.Manager, events *stream.Broadcaster, opts ...Option) *Server {
	s := &Server{
		manager:  mgr,
		events:   events,
		gatherer: prometheus.DefaultGatherer,
		recent:   recentEventsCount,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /api/graphs", s.listHandler)
	s.mux.HandleFunc("GET /api/graphs/{id}", s.dumpHandler)
	s.mux.HandleFunc("GET /ws/events", s.wsEventsHandler)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if s.events != nil {
			s.events.Close()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	descs, err := s.manager.List(r.Context())
	if err != nil {
		slog.Error("list graphs failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	descs, err = manager.Filter(descs, r.URL.Query().Get("match"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if descs == nil {
		descs = []graph.Descriptor{}
	}
	writeJSON(w, http.StatusOK, descs)
}

func (s *Server) dumpHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	desc, err := manager.FindByID(ctx, s.manager, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manager.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	b, err := s.manager.Get(ctx, desc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	d, err := b.Persist(ctx)
	if err != nil {
		slog.Error("persist graph failed", "graph", id, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := graph.EncodeDump(d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
