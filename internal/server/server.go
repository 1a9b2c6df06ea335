// Package server exposes the loopback control API: session monitors,
// scheduled wakes, live decision events, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agent-pilot/responderd/internal/audit"
	"github.com/agent-pilot/responderd/internal/metrics"
	"github.com/agent-pilot/responderd/internal/monitor"
	"github.com/agent-pilot/responderd/internal/policy"
	"github.com/agent-pilot/responderd/internal/ratelimit"
	"github.com/agent-pilot/responderd/internal/schedule"
	"github.com/agent-pilot/responderd/internal/tmux"
)

// apiError is the JSON error envelope for every non-2xx response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in the envelope.
const (
	CodeUnknownPreset  = "unknown_preset"
	CodeInvalidPreset  = "invalid_preset"
	CodePaneNotFound   = "pane_not_found"
	CodeAlreadyRunning = "already_running"
	CodeNotRunning     = "not_running"
	CodeNoWake         = "no_wake"
	CodeBadRequest     = "bad_request"
	CodeInternal       = "internal"
)

type startRequest struct {
	Session string `json:"session"`
	Preset  string `json:"preset"`
}

type wakeRequest struct {
	Session string `json:"session"`
	FireAt  string `json:"fire_at"`
	// In is an alternative to FireAt, a Go duration like "25m".
	In   string `json:"in,omitempty"`
	Note string `json:"note,omitempty"`
}

// sessionDetail is the per-session status view: the monitor state plus the
// tail of its audit trail and any pending wake.
type sessionDetail struct {
	monitor.Status
	Recent []audit.Entry  `json:"recent,omitempty"`
	Wake   *schedule.Wake `json:"wake,omitempty"`
}

type statusResponse struct {
	Version   string            `json:"version"`
	Sessions  []monitor.Status  `json:"sessions"`
	Wakes     []schedule.Wake   `json:"wakes"`
	RateLimit *ratelimit.Status `json:"rate_limit,omitempty"`
}

type presetInfo struct {
	Name          string            `json:"name"`
	Tier          string            `json:"tier"`
	CheckInterval string            `json:"check_interval"`
	ResponseDelay string            `json:"response_delay"`
	Table         map[string]string `json:"table"`
}

// Server is the daemon's HTTP front end.
type Server struct {
	registry  *monitor.Registry
	store     *policy.Store
	scheduler *schedule.Scheduler
	limits    *ratelimit.Watcher
	audits    *audit.Manager
	hub       *Hub
	version   string
	log       zerolog.Logger
	httpSrv   *http.Server
}

type Options struct {
	Registry  *monitor.Registry
	Store     *policy.Store
	Scheduler *schedule.Scheduler
	Limits    *ratelimit.Watcher
	Audits    *audit.Manager
	Hub       *Hub
	Version   string
	Log       zerolog.Logger
}

func New(opts Options) *Server {
	return &Server{
		registry:  opts.Registry,
		store:     opts.Store,
		scheduler: opts.Scheduler,
		limits:    opts.Limits,
		audits:    opts.Audits,
		hub:       opts.Hub,
		version:   opts.Version,
		log:       opts.Log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleStart)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{name}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{name}", s.handleStopSession)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/presets", s.handlePresets)
	mux.HandleFunc("POST /v1/wakes", s.handleArmWake)
	mux.HandleFunc("GET /v1/wakes", s.handleListWakes)
	mux.HandleFunc("DELETE /v1/wakes/{session}", s.handleCancelWake)
	mux.Handle("GET /v1/events", s.hub)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control api listening")

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		return s.httpSrv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Session == "" || req.Preset == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "session and preset are required")
		return
	}

	st, err := s.registry.Start(req.Session, req.Preset)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrUnknownPreset):
			writeError(w, http.StatusBadRequest, CodeUnknownPreset, err.Error())
		case errors.Is(err, monitor.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, CodeAlreadyRunning, err.Error())
		case errors.Is(err, tmux.ErrPaneNotFound):
			writeError(w, http.StatusBadGateway, CodePaneNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	st, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, CodeNotRunning, err.Error())
		return
	}

	detail := sessionDetail{Status: st}
	if s.audits != nil {
		logger, err := s.audits.Logger(name)
		if err == nil {
			if recent, err := logger.Tail(20); err == nil {
				detail.Recent = recent
			}
		}
	}
	for _, wake := range s.scheduler.Pending() {
		if wake.Session == name {
			w2 := wake
			detail.Wake = &w2
			break
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Stop(r.PathValue("name")); err != nil {
		writeError(w, http.StatusNotFound, CodeNotRunning, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  s.version,
		Sessions: s.registry.List(),
		Wakes:    s.scheduler.Pending(),
	}
	if s.limits != nil {
		st := s.limits.Status()
		resp.RateLimit = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := s.store.Presets()
	out := make([]presetInfo, 0, len(presets))
	for _, p := range presets {
		table := make(map[string]string, len(policy.Categories()))
		for _, cat := range policy.Categories() {
			table[string(cat)] = string(p.Action(cat))
		}
		out = append(out, presetInfo{
			Name:          p.Name(),
			Tier:          p.Tier().String(),
			CheckInterval: p.CheckInterval().String(),
			ResponseDelay: p.ResponseDelay().String(),
			Table:         table,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArmWake(w http.ResponseWriter, r *http.Request) {
	var req wakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Session == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "session is required")
		return
	}

	var fireAt time.Time
	switch {
	case req.In != "":
		d, err := time.ParseDuration(req.In)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid duration")
			return
		}
		fireAt = time.Now().Add(d)
	case req.FireAt != "":
		t, err := time.Parse(time.RFC3339, req.FireAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "fire_at must be RFC3339")
			return
		}
		fireAt = t
	default:
		writeError(w, http.StatusBadRequest, CodeBadRequest, "fire_at or in is required")
		return
	}

	wake, err := s.scheduler.Arm(req.Session, fireAt, req.Note)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, wake)
}

func (s *Server) handleListWakes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Pending())
}

func (s *Server) handleCancelWake(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Cancel(r.PathValue("session")); err != nil {
		writeError(w, http.StatusNotFound, CodeNoWake, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiError{Code: code, Message: msg})
}
