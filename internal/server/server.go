package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/ingest/landmarks"
	repmcp "github.com/claude/repform/internal/mcp"
	"github.com/claude/repform/internal/models"
	"github.com/claude/repform/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Store is the data layer the handlers use. *storage.DB implements it.
type Store interface {
	repmcp.DataSource
	UserResolver
	GetSession(ctx context.Context, id uuid.UUID, userID int) (*models.SessionRow, error)
	DeleteSession(ctx context.Context, id uuid.UUID, userID int) error
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
	Ping(ctx context.Context) error
}

var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	cfg      *config.Config
	store    Store
	provider *landmarks.Provider
	log      *slog.Logger
	apiKey   string
	router   chi.Router
	whois    WhoIser
}

// New creates a new Server with all routes configured.
func New(cfg *config.Config, store Store, provider *landmarks.Provider, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		provider: provider,
		log:      log,
		apiKey:   cfg.Auth.APIKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches request identity from the dev user to Tailscale WhoIs.
func (s *Server) SetTailscale(who WhoIser) {
	s.whois = who
}

// SetMCP mounts the MCP server at /mcp over streamable HTTP. Tool calls run
// as the request's user.
func (s *Server) SetMCP(m *mcpserver.MCPServer) {
	h := mcpserver.NewStreamableHTTPServer(m,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return repmcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)
	s.router.With(s.identity).Handle("/mcp", h)
}

func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.store, s.log)(next).ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)

		// Recording upload and deletion (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/sessions", s.handleAnalyze)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
		})

		// Read endpoints (no key; tsnet handles access)
		r.Get("/me", s.handleMe)
		r.Get("/sessions", s.handleQuerySessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/reps", s.handleQueryReps)
		r.Get("/faults/stats", s.handleFaultStats)
		r.Get("/stats", s.handleDataStats)
		r.Get("/imports", s.handleImportLogs)
		r.Get("/exercises", s.handleExercises)
	})
}

func durationMs(start time.Time) *int {
	ms := int(time.Since(start).Milliseconds())
	return &ms
}
