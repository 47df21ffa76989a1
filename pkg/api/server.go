// Package api exposes the maintenance core's operational surface: a
// chi-routed health/ready endpoint and the Prometheus scrape endpoint,
// generalizing the example media server's SetupChi from its large
// data-plane route table down to the three routes an embedded daemon
// needs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nodefailer/corectl/pkg/domain"
	"github.com/nodefailer/corectl/pkg/log"
	"github.com/nodefailer/corectl/pkg/metrics"
)

var logger = log.WithComponent("api")

// Version is set at build time via -ldflags.
var Version = "dev"

// Readyer reports whether the embedded manager is ready to serve, and
// carries the storage/Raft checks the readiness endpoint surfaces. Its
// GetNodes signature matches *manager.Manager's directly, so the daemon
// binary can pass the manager in without an adapter.
type Readyer interface {
	IsLeader() bool
	LeaderAddr() string
	Stats() map[string]interface{}
	GetNodes(ctx context.Context, state domain.State) ([]*domain.Node, error)
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ReadyResponse is the /ready response body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// Server is the chi-routed HTTP surface for health, readiness, and
// Prometheus metrics.
type Server struct {
	ready  Readyer
	router chi.Router
}

// NewServer creates a Server. ready may be nil, in which case /ready
// always reports not-ready: the daemon exposes the port before the
// manager has finished bootstrapping.
func NewServer(ready Readyer) *Server {
	s := &Server{ready: ready}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// GetHandler returns the server's HTTP handler.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start runs the server on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api server shutdown error")
		}
	}()

	logger.Info().Str("addr", addr).Msg("api server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true

	if s.ready == nil {
		checks["raft"] = "not initialized"
		checks["storage"] = "not initialized"
		ready = false
	} else {
		if s.ready.IsLeader() || s.ready.LeaderAddr() != "" {
			checks["raft"] = "ok"
		} else {
			checks["raft"] = "no known leader"
			ready = false
		}

		if _, err := s.ready.GetNodes(r.Context(), ""); err != nil {
			checks["storage"] = "error: " + err.Error()
			ready = false
		} else {
			checks["storage"] = "ok"
		}
	}

	status := http.StatusOK
	resp := ReadyResponse{Timestamp: time.Now(), Checks: checks, Status: "ready"}
	if !ready {
		status = http.StatusServiceUnavailable
		resp.Status = "not ready"
		resp.Message = "one or more readiness checks failed"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestMetrics records every request's route and status into the
// Prometheus counters/histograms the core's metrics package exposes.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, http.StatusText(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
