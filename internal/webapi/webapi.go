package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// Status is the body of GET /status.
type Status struct {
	World    int     `json:"world"`
	Tick     uint64  `json:"tick"`
	Players  int     `json:"players"`
	Sessions int     `json:"sessions"`
	Lobby    bool    `json:"lobby"`
	Uptime   float64 `json:"uptime_seconds"`
}

type StatusSource interface {
	Status() Status
}

// Server exposes world status and metrics over HTTP.
type Server struct {
	addr   string
	status StatusSource
	mux    *http.ServeMux

	ln    net.Listener
	ready chan struct{}
}

// New builds the API. metrics may be nil to leave /metrics unrouted.
func New(addr string, status StatusSource, metrics http.Handler) *Server {
	s := &Server{
		addr:   addr,
		status: status,
		mux:    http.NewServeMux(),
		ready:  make(chan struct{}),
	}

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address. It is only valid after Ready is closed.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.ln = ln
	close(s.ready)

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.InfoContext(ctx, "web api listening", "addr", ln.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("serving web api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down web api: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, s.status.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.DebugContext(ctx, "writing response", "error", err)
	}
}
