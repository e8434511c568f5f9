// Package server exposes triage runs to browsers: an event-stream endpoint,
// a websocket endpoint carrying the same events, and the static frontend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"photo-triage/internal/domain"
	"photo-triage/internal/jobs"
)

// SettingsSource returns the settings a new run should use.
type SettingsSource func() (domain.Settings, error)

// Server serves progress feeds backed by a shared run coordinator.
type Server struct {
	coord    *jobs.Coordinator
	settings SettingsSource
	static   fs.FS
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a server. static may be nil, in which case / answers 404.
func New(coord *jobs.Coordinator, settings SettingsSource, static fs.FS, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		coord:    coord,
		settings: settings,
		static:   static,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/process", s.handleProcess)
	mux.HandleFunc("GET /ws/process", s.handleProcessWebSocket)
	mux.HandleFunc("GET /api/run", s.handleCurrentRun)
	if s.static != nil {
		mux.Handle("GET /", http.FileServer(http.FS(s.static)))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down with
// a short grace period for in-flight streams.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web interface listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down web interface")
	_ = s.coord.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

// handleProcess streams one run as text/event-stream frames. Closing the
// connection cancels the run.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	write := func(ev domain.ProgressEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode progress event", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("event stream write failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	s.runFromQuery(r.Context(), r, write)
}

// handleProcessWebSocket carries the same events as websocket text messages.
func (s *Server) handleProcessWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends anything meaningful; reading detects a close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
		}
	}()

	write := func(ev domain.ProgressEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode progress event", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			cancel()
		}
	}

	s.runFromQuery(ctx, r, write)

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

// handleCurrentRun reports the latest run snapshot as JSON.
func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.coord.Manager.Current()); err != nil {
		s.logger.Debug("encode run snapshot", "error", err)
	}
}

func (s *Server) runFromQuery(ctx context.Context, r *http.Request, write func(domain.ProgressEvent)) {
	settings, err := s.settings()
	if err != nil {
		s.logger.Error("load settings", "error", err)
		write(domain.ErrorEvent("cannot load settings"))
		return
	}

	target := r.URL.Query().Get("path")
	threshold := ParseThreshold(r.URL.Query().Get("blur"))

	_, err = s.coord.Run(ctx, jobs.RunOptions{
		TargetPath: target,
		Threshold:  threshold,
		Settings:   settings,
		OnEvent:    func(ev jobs.Event) { write(ev.Event) },
	})
	if err != nil {
		s.logger.Info("run ended with error", "target", target, "error", err)
	}
}

// ParseThreshold reads the blur query parameter, falling back to the default
// for missing, malformed or non-positive values.
func ParseThreshold(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return domain.DefaultThreshold
	}
	return value
}
