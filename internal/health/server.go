// Package health serves liveness, readiness and Prometheus metrics over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Readiness status values.
const (
	StatusHealthy  = "healthy"
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Checker reports an error when a component is not ready.
type Checker func(ctx context.Context) error

// DegradedChecker reports whether a component works but needs attention,
// for example when the last publish left some hosts behind.
type DegradedChecker func(ctx context.Context) (degraded bool, message string)

// ComponentStatus is the readiness of one component.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// DegradedStatus describes a degraded component.
type DegradedStatus struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Response is the JSON body of /health and /ready.
type Response struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
	Degraded   []DegradedStatus  `json:"degraded,omitempty"`
}

// Server provides /health, /ready and /metrics.
type Server struct {
	addr    string
	mux     *http.ServeMux
	logger  *slog.Logger
	timeout time.Duration

	mu               sync.RWMutex
	checkers         map[string]Checker
	degradedCheckers map[string]DegradedChecker
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds how long readiness checks may take.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.timeout = timeout
	}
}

// New creates a server listening on port once Run is called.
func New(port int, opts ...Option) *Server {
	s := &Server{
		addr:             fmt.Sprintf(":%d", port),
		mux:              http.NewServeMux(),
		logger:           slog.Default(),
		timeout:          5 * time.Second,
		checkers:         make(map[string]Checker),
		degradedCheckers: make(map[string]DegradedChecker),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// RegisterChecker adds a readiness check.
func (s *Server) RegisterChecker(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.logger.Debug("registered readiness check", slog.String("name", name))
}

// RegisterDegradedChecker adds a degraded-state check.
func (s *Server) RegisterDegradedChecker(name string, checker DegradedChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degradedCheckers[name] = checker
	s.logger.Debug("registered degraded check", slog.String("name", name))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: StatusHealthy})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checkers))
	for name := range s.checkers {
		names = append(names, name)
	}
	degradedNames := make([]string, 0, len(s.degradedCheckers))
	for name := range s.degradedCheckers {
		degradedNames = append(degradedNames, name)
	}
	checkers := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checkers[name] = c
	}
	degradedCheckers := make(map[string]DegradedChecker, len(s.degradedCheckers))
	for name, c := range s.degradedCheckers {
		degradedCheckers[name] = c
	}
	s.mu.RUnlock()

	sort.Strings(names)
	sort.Strings(degradedNames)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp := Response{Status: StatusReady}
	ready := true

	for _, name := range names {
		status := ComponentStatus{Name: name, Healthy: true}
		if err := checkers[name](ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			ready = false
			s.logger.Warn("readiness check failed",
				slog.String("component", name),
				slog.String("error", err.Error()),
			)
		}
		resp.Components = append(resp.Components, status)
	}

	for _, name := range degradedNames {
		if degraded, message := degradedCheckers[name](ctx); degraded {
			resp.Degraded = append(resp.Degraded, DegradedStatus{Name: name, Message: message})
		}
	}

	code := http.StatusOK
	switch {
	case !ready:
		resp.Status = StatusNotReady
		code = http.StatusServiceUnavailable
	case len(resp.Degraded) > 0:
		// Still serving.
		resp.Status = StatusDegraded
	}
	writeJSON(w, code, resp)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health server listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("health server listening", slog.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
