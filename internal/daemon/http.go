package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/pkg/agent"
	"github.com/aldan/opschat/pkg/rescache"
	"github.com/aldan/opschat/pkg/session"
)

// maxMessageChars bounds inbound chat messages. Validation happens
// here, before a request reaches the orchestrator.
const maxMessageChars = 2000

type httpServer struct {
	daemon *Daemon
	server *http.Server
}

type chatRequest struct {
	SessionID string                 `json:"session_id,omitempty"`
	Message   string                 `json:"message"`
	AgentType string                 `json:"agent_type,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newHTTPServer(d *Daemon) *httpServer {
	s := &httpServer{daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())
	if d.cache != nil {
		mux.Handle("/admin/", http.StripPrefix("/admin", rescache.AdminHandler(d.cache, d.logger.GetZerolog())))
	}

	addr := fmt.Sprintf("%s:%d", d.config.Admin.Host, d.config.Admin.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *httpServer) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	zl := s.daemon.logger.GetZerolog()
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	zl.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	return nil
}

func (s *httpServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *httpServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" || utf8.RuneCountInString(req.Message) > maxMessageChars {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("message must be between 1 and %d characters", maxMessageChars),
		})
		return
	}

	resp, err := s.daemon.Orchestrator().HandleTurn(r.Context(), agent.TurnRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		AgentType: req.AgentType,
		Context:   req.Context,
		Principal: r.Header.Get("X-Principal"),
	})
	if err != nil {
		zl := s.daemon.logger.GetZerolog()
		zl.Error().Err(err).Msg("Turn failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "turn failed"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *httpServer) handleSession(w http.ResponseWriter, r *http.Request) {
	history, err := s.daemon.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load session"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": r.PathValue("id"),
		"messages":   history,
	})
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":       status.Running,
		"pid":           status.PID,
		"uptime":        status.Uptime.String(),
		"sessions":      status.Sessions,
		"cache_entries": status.CacheEntries,
		"tools":         status.Tools,
		"provider":      status.Provider,
	})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
