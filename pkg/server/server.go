package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docsage/docsage/pkg/chat"
	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/document"
	"github.com/docsage/docsage/pkg/metrics"
)

var _ chat.EventWriter = (*SSEWriter)(nil)

// Server is the HTTP front of the chat service.
type Server struct {
	chat *chat.Service
	srv  *http.Server
}

// New builds the server with all routes mounted.
func New(cfg config.ServerConfig, chatSvc *chat.Service) *Server {
	s := &Server{chat: chatSvc}
	s.srv = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router mounts all endpoints. Exposed separately so tests can drive
// the handlers through httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/chat/stream", s.handleStream)
	r.Get("/api/chat/citations", s.handleCitations)
	r.Post("/api/chat/clear", s.handleClear)
	r.Get("/api/chat/session/validate", s.handleValidate)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": s.chat.Sessions().SessionCount(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}

// Start blocks serving until shutdown.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type streamRequest struct {
	SessionID string `json:"sessionId"`
	Latest    string `json:"latest"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Latest == "" {
		writeJSONError(w, http.StatusBadRequest, "latest is required")
		return
	}

	setSSEHeaders(w)
	writer, err := NewSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Failures surface as error events on the stream; the HTTP status
	// is already committed.
	if err := s.chat.Ask(r.Context(), req.SessionID, req.Latest, writer); err != nil {
		slog.Debug("chat stream ended with error", "session", req.SessionID, "error", err)
	}
}

func (s *Server) handleCitations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSONError(w, http.StatusBadRequest, "q is required")
		return
	}

	citations, err := s.chat.Citations(r.Context(), query)
	if err != nil {
		slog.Error("citation lookup failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "citation lookup failed")
		return
	}
	if citations == nil {
		citations = []document.Citation{}
	}
	writeJSON(w, http.StatusOK, citations)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	s.chat.Sessions().Clear(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type validateResponse struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// handleValidate reports whether a session has history. It never
// creates the session.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	resp := validateResponse{Exists: s.chat.Sessions().Exists(sessionID)}
	if resp.Exists {
		resp.Message = "session found"
	} else {
		resp.Message = "session not found"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
