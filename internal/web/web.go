package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"freeslotd/internal/config"
	"freeslotd/internal/freeslot"
	appLog "freeslotd/internal/log"
	"freeslotd/internal/metrics"
)

// Server exposes the engine's output over HTTP: the latest free-slot map
// as JSON, the formatted text block the tray/paste integrations consume,
// a manual refresh trigger, and Prometheus metrics.
type Server struct {
	cfg     *config.Config
	updater *freeslot.Updater
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, updater *freeslot.Updater) *Server {
	s := &Server{
		cfg:     cfg,
		updater: updater,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="freeslotd", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer starts an HTTP server bound to cfg.Listen.
func StartServer(_ context.Context, cfg *config.Config, updater *freeslot.Updater) error {
	s := NewServer(cfg, updater)
	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	return http.ListenAndServe(cfg.Listen, s.Handler())
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/freeslots", s.handleFreeSlots)
	s.mux.HandleFunc("/api/freeslots.txt", s.handleFreeSlotsText)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// freeSlotsResponse is the JSON response shape for /api/freeslots.
type freeSlotsResponse struct {
	Header   string         `json:"header"`
	Timezone string         `json:"timezone"`
	Dates    []dateSlotsDTO `json:"dates"`
}

// dateSlotsDTO carries one date's common free slots, ascending.
type dateSlotsDTO struct {
	Date  string      `json:"date"`
	Slots []time.Time `json:"slots"`
}

// handleFreeSlots returns the latest common free-slot map. The value is
// whatever the last successful pass produced (or the persisted cache at
// startup); a pass in flight never blocks this read.
func (s *Server) handleFreeSlots(w http.ResponseWriter, _ *http.Request) {
	m := s.updater.Current()

	dates := make([]dateSlotsDTO, 0, len(m))
	for _, d := range m.Dates() {
		dates = append(dates, dateSlotsDTO{
			Date:  d.String(),
			Slots: m[d],
		})
	}

	writeJSON(w, http.StatusOK, freeSlotsResponse{
		Header:   s.cfg.CustomText,
		Timezone: s.cfg.Timezone,
		Dates:    dates,
	})
}

// handleFreeSlotsText returns the formatted text block, exactly what the
// paste integration inserts.
func (s *Server) handleFreeSlotsText(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.updater.FormattedText()))
}

// handleRefresh triggers a refresh pass ("Update Now"). The pass runs in
// the background; 202 means it started, 409 means one was already in
// flight and the trigger was dropped.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	if s.updater.Running() {
		writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}

	go func() {
		if _, err := s.updater.TryRefresh(context.Background(), time.Now()); err != nil {
			appLog.Error("manual refresh failed", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
