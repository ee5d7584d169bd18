// Package httpapi is a local-development/test transport for the Client API
// Surface (C10): one HTTP route per client operation, JSON request and
// response bodies. Grounded on the teacher's internal/signaling/api.Server
// (net/http.ServeMux, one handler per operation, writeJSON helper) — the
// production transport is D-Bus, out of this core's scope per spec.md §1,
// so this adapter exists purely to exercise Core over a transport the pack
// actually supports.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sebas/icd/internal/clientapi"
)

// Server exposes a clientapi.Core over HTTP.
type Server struct {
	addr       string
	core       *clientapi.Core
	httpServer *http.Server
}

// NewServer builds a Server bound to core, registering one route per
// client operation.
func NewServer(addr string, core *clientapi.Core) *Server {
	s := &Server{addr: addr, core: core}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/activate", s.handleActivate)
	mux.HandleFunc("/api/v1/connect", s.handleConnect)
	mux.HandleFunc("/api/v1/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/v1/ipinfo", s.handleIPInfo)
	mux.HandleFunc("/api/v1/statistics", s.handleStatistics)
	mux.HandleFunc("/api/v1/state", s.handleState)
	mux.HandleFunc("/api/v1/background-killing", s.handleBackgroundKilling)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins listening for HTTP requests in the background.
func (s *Server) Start() error {
	slog.Info("httpapi: starting client API HTTP server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("httpapi: server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Handler exposes the registered route mux directly, for tests that want
// to drive it through httptest.NewServer without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type activateRequest struct {
	Origin string `json:"origin"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	reqID, err := s.core.Activate(req.Origin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]any{"request_id": reqID})
}

type connectRequest struct {
	Name  string `json:"name"`
	Attrs uint32 `json:"attrs"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	reqID, err := s.core.Connect(req.Name, req.Attrs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, map[string]any{"request_id": reqID})
}

type disconnectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.core.Disconnect(req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{"message": "disconnected"})
}

func (s *Server) handleIPInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info, err := s.core.GetIPInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, info)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.core.GetStatistics(r.URL.Query().Get("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{
		"iap":        stats.IAP,
		"active_for": stats.ActiveFor.Seconds(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, err := s.core.GetState()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"state": state})
}

type backgroundKillingRequest struct {
	Application string `json:"application"`
	Reason      string `json:"reason"`
}

func (s *Server) handleBackgroundKilling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req backgroundKillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.core.BackgroundKilling(req.Application, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]any{"message": "acknowledged"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode JSON", "error", err)
	}
}
