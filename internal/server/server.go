// Package server exposes pipeline sessions over a local HTTP API.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rentguard/rentguard-cli/internal/ingest"
	"github.com/rentguard/rentguard-cli/internal/model"
	"github.com/rentguard/rentguard-cli/internal/pipeline"
	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes int64 = 10 << 20

// SessionFactory starts a new, empty pipeline session.
type SessionFactory func() *pipeline.Session

// Options configures the API server.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	Overrides      []model.OverrideRequest
}

// Server routes API requests to per-session pipelines. Sessions live until
// deleted or the process exits.
type Server struct {
	newSession SessionFactory
	opts       Options

	mu       sync.RWMutex
	sessions map[string]*pipeline.Session

	router chi.Router
}

// New creates a Server.
func New(factory SessionFactory, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		newSession: factory,
		opts:       opts,
		sessions:   make(map[string]*pipeline.Session),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/overrides", s.handleListOverrides)

	r.Post("/sessions", s.handleCreateSession)
	r.Route("/sessions/{session_id}", func(sr chi.Router) {
		sr.Delete("/", s.handleDeleteSession)

		sr.Post("/evaluate", s.handleEvaluateJSON)
		sr.Post("/evaluate/upload", s.handleEvaluateUpload)
		sr.Post("/evaluate/batch", s.handleEvaluateBatch)
		sr.Post("/evaluate/sample", s.handleEvaluateSample)

		sr.Get("/artifacts", s.handleListArtifacts)
		sr.Get("/artifacts/{artifact_id}/export", s.handleExportArtifact)
		sr.Post("/artifacts/{artifact_id}/toggle", s.handleToggle)
		sr.Get("/expansion", s.handleExpansion)
		sr.Delete("/expansion", s.handleResetExpansion)

		sr.Get("/trends", s.handleTrends)

		sr.Post("/packet", s.handlePacket)
		sr.Post("/overrides/{override_id}/packet", s.handleOverridePacket)
	})
	return r
}

// session resolves the {session_id} URL parameter, writing a 404 when absent.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	id := chi.URLParam(r, "session_id")
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "session "+id+" not found")
		return nil, false
	}
	return sess, true
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.newSession()
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	zap.L().Info("server: session created", zap.String("session_id", sess.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "session "+id+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	queue := s.opts.Overrides
	if queue == nil {
		queue = model.DefaultOverrides
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": queue})
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, resilience.NewInputError(ingest.StageRead, eris.Wrap(err, "read request body"))
	}
	return data, nil
}

// writeError maps a pipeline failure to a status code and a {"detail"} body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch resilience.KindOf(err) {
	case resilience.KindInput:
		status = http.StatusBadRequest
	case resilience.KindPrecondition:
		status = http.StatusConflict
	case resilience.KindEngine:
		status = http.StatusBadGateway
	case resilience.KindTransport:
		status = http.StatusServiceUnavailable
	}
	writeDetail(w, status, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
