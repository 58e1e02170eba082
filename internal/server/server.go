// Package server exposes the assistant over HTTP: the chat endpoint, the
// realtime session bootstrap, configuration management and diagnostics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"flowdesk/internal/agent"
	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/logsvc"
	"flowdesk/internal/memory"
	"flowdesk/internal/realtime"
)

// Conversations runs chat requests and relays single tool calls.
type Conversations interface {
	Run(ctx context.Context, req agent.Request) (*agent.Result, error)
	CallTool(ctx context.Context, convID, callID, name string, arguments json.RawMessage) (json.RawMessage, error)
}

// ConfigStore persists the assistant configuration and settings.
type ConfigStore interface {
	Load(ctx context.Context) (*config.Assistant, error)
	Save(ctx context.Context, in config.AssistantInput) error
	Status(ctx context.Context) (exists, setupComplete bool, err error)
	Reset(ctx context.Context) error
	LoadSettings(ctx context.Context) (config.Settings, bool, error)
	SaveSettings(ctx context.Context, in config.SettingsInput) (config.Settings, error)
	ResetSettings(ctx context.Context) error
}

// TokenIssuer mints realtime voice sessions.
type TokenIssuer interface {
	Issue(ctx context.Context) (*realtime.Token, error)
}

// ModelProbe checks that key can use model.
type ModelProbe func(ctx context.Context, key, model string) llm.ProbeResult

// Server routes the HTTP API.
type Server struct {
	router  *mux.Router
	handler http.Handler

	conv        Conversations
	configs     ConfigStore
	logs        *logsvc.Service
	issuer      TokenIssuer
	transcripts memory.Transcripts
	prober      *dispatch.Prober
	probeModel  ModelProbe
	origins     []string
}

// Option configures the Server instance.
type Option func(*Server)

// WithLogs sets the diagnostic log service. If omitted an in-memory one is
// used.
func WithLogs(l *logsvc.Service) Option {
	return func(s *Server) {
		if l != nil {
			s.logs = l
		}
	}
}

// WithIssuer enables POST /api/realtime-token.
func WithIssuer(i TokenIssuer) Option {
	return func(s *Server) { s.issuer = i }
}

// WithTranscripts enables GET /api/conversations/{id}.
func WithTranscripts(t memory.Transcripts) Option {
	return func(s *Server) { s.transcripts = t }
}

// WithProber overrides the flow prober used by the config test.
func WithProber(p *dispatch.Prober) Option {
	return func(s *Server) {
		if p != nil {
			s.prober = p
		}
	}
}

// WithModelProbe overrides how the config test checks the model.
func WithModelProbe(p ModelProbe) Option {
	return func(s *Server) {
		if p != nil {
			s.probeModel = p
		}
	}
}

// WithAllowedOrigins restricts CORS. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// New creates the API server.
func New(conv Conversations, configs ConfigStore, opts ...Option) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		conv:       conv,
		configs:    configs,
		logs:       logsvc.New(0),
		prober:     dispatch.NewProber(nil),
		probeModel: openAIProbe,
		origins:    []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	})
	s.registerRoutes()
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/assistant", s.handleAssistant).Methods(http.MethodPost)
	api.HandleFunc("/tool-call", s.handleToolCall).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}", s.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/realtime-token", s.handleRealtimeToken).Methods(http.MethodPost)

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleSaveConfig).Methods(http.MethodPost)
	api.HandleFunc("/config/status", s.handleConfigStatus).Methods(http.MethodGet)
	api.HandleFunc("/config/reset", s.handleResetConfig).Methods(http.MethodPost)
	api.HandleFunc("/config/test", s.handleTestConfig).Methods(http.MethodPost)

	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSaveSettings).Methods(http.MethodPost)
	api.HandleFunc("/settings/reset", s.handleResetSettings).Methods(http.MethodPost)

	api.HandleFunc("/log", s.handleAppendLog).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.handleListLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs/export", s.handleExportLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleClearLogs).Methods(http.MethodDelete)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  seconds(cfg.ReadTimeoutSecs),
		WriteTimeout: seconds(cfg.WriteTimeoutSecs),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("[server] listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

const (
	codeInvalidRequest   = "invalid_request"
	codeNotConfigured    = "not_configured"
	codeModelUnavailable = "model_unavailable"
	codeInternal         = "internal_error"
	codeUnavailable      = "unavailable"
	codeNotFound         = "not_found"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
