// Package web serves a read-only preview of the latest build: the compiled
// tables, their Lua modules and the binary artifact, plus a rebuild trigger.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tablegen/internal/build"
	"github.com/JonMunkholm/tablegen/internal/config"
	"github.com/JonMunkholm/tablegen/internal/publish"
	weblog "github.com/JonMunkholm/tablegen/internal/web/middleware"
)

// Builder produces a new build on demand.
type Builder interface {
	Run(ctx context.Context) (*build.Result, error)
}

// Archive lists published builds.
type Archive interface {
	List(ctx context.Context, limit int) ([]publish.Build, error)
}

// Server is the HTTP preview server.
type Server struct {
	builder Builder
	archive Archive
	cfg     config.ServerConfig
	router  *chi.Mux
	server  *http.Server

	gate    *rebuildGate
	mu      sync.RWMutex // guards current and lastErr
	current *build.Result
	lastErr error
}

// NewServer creates a Server. archive may be nil when publishing is off.
func NewServer(builder Builder, archive Archive, cfg config.ServerConfig) *Server {
	s := &Server{
		builder: builder,
		archive: archive,
		cfg:     cfg,
		router:  chi.NewRouter(),
		gate:    newRebuildGate(1, cfg.RequestTimeout/2),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/build", s.handleBuild)
		r.Post("/rebuild", s.handleRebuild)
		r.Get("/builds", s.handleBuilds)
		r.Get("/dataset.bin", s.handleBlob)

		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{name}", s.handleTable)
		r.Get("/tables/{name}/lua", s.handleTableLua)
	})
}

// Rebuild runs the builder and, on success, replaces the served build.
// A failed rebuild keeps serving the previous build. Only one rebuild runs
// at a time; others wait for it and give up with ErrRebuildBusy.
func (s *Server) Rebuild(ctx context.Context) (*build.Result, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	res, err := s.builder.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		return nil, err
	}
	s.current = res
	return res, nil
}

// snapshot returns the served build and the error of the latest rebuild.
func (s *Server) snapshot() (*build.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.lastErr
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("preview server listening", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown waits for a running rebuild, then gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.gate.drain(ctx); err != nil {
		slog.Warn("rebuild did not finish before shutdown", "error", err)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// buildSummary is the JSON form of a build.
type buildSummary struct {
	BuildID    string    `json:"build_id"`
	CommitID   string    `json:"commit_id,omitempty"`
	Audience   string    `json:"audience"`
	CreatedAt  time.Time `json:"created_at"`
	Tables     int       `json:"tables"`
	BlobBytes  int       `json:"blob_bytes"`
	DurationMS int64     `json:"duration_ms"`
}

func summarize(res *build.Result) buildSummary {
	ds := res.Dataset
	return buildSummary{
		BuildID:    ds.BuildID.String(),
		CommitID:   ds.CommitID,
		Audience:   ds.Audience.String(),
		CreatedAt:  ds.CreatedAt,
		Tables:     len(ds.Tables),
		BlobBytes:  len(res.Blob),
		DurationMS: res.Duration.Milliseconds(),
	}
}
