package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// DefaultPort is the proxy's default listen port (spec.md §4.10).
const DefaultPort = 3456

// Server is the model-routing proxy's HTTP front end: two endpoints,
// handler dispatch by model prefix, pure request/response translation.
type Server struct {
	router       chi.Router
	registry     *Registry
	logger       *slog.Logger
	defaultModel string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithDefaultModel sets the model string GET /health probes when the
// caller does not supply one.
func WithDefaultModel(model string) ServerOption {
	return func(s *Server) { s.defaultModel = model }
}

// NewServer constructs a Server over registry.
func NewServer(registry *Registry, opts ...ServerOption) *Server {
	s := &Server{registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Post("/*", s.handleComplete)
	return r
}

type healthResponse struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		model = s.defaultModel
	}

	handler, prefix, err := s.registry.Lookup(model)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Model: model, OK: false, Reason: "no handler configured"})
		return
	}

	if !handler.Healthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Provider: prefix, Model: model, OK: false, Reason: "downstream unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Provider: prefix, Model: model, OK: true})
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req core.ProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	handler, _, err := s.registry.Lookup(req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := handler.Complete(r.Context(), req)
	if err != nil {
		status, message := classifyError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// classifyError maps a handler error to an HTTP status and message
// (spec.md §6.5): upstream 4xx/5xx pass through, connection-refused on the
// local handler surfaces as 502, domain validation errors as 400, anything
// else as 502.
func classifyError(err error) (int, string) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status, statusErr.Message
	}

	var domainErr *core.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Category {
		case core.ErrCatInvalidInput:
			return http.StatusBadRequest, domainErr.Message
		case core.ErrCatUpstreamUnavail:
			return http.StatusBadGateway, domainErr.Message
		}
		return http.StatusInternalServerError, domainErr.Message
	}

	return http.StatusBadGateway, err.Error()
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body errorBody
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
