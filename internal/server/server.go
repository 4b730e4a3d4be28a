// Package server exposes the HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/joseph-ayodele/medscan/internal/auth"
	"github.com/joseph-ayodele/medscan/internal/export"
	"github.com/joseph-ayodele/medscan/internal/pipeline"
	"github.com/joseph-ayodele/medscan/internal/services/user"
)

// HealthChecker is satisfied by the repository client.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

type Options struct {
	CORSOrigins    []string
	UploadDir      string
	MaxUploadBytes int64
	CookieSecure   bool
	HealthTimeout  time.Duration
}

type Server struct {
	opts     Options
	users    *user.Service
	pipeline *pipeline.Processor
	export   *export.Service
	issuer   *auth.Issuer
	db       HealthChecker
	logger   *slog.Logger
}

func New(opts Options, users *user.Service, proc *pipeline.Processor, exp *export.Service,
	issuer *auth.Issuer, db HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	return &Server{
		opts:     opts,
		users:    users,
		pipeline: proc,
		export:   exp,
		issuer:   issuer,
		db:       db,
		logger:   logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	var origins []string
	for _, o := range s.opts.CORSOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.issuer, s.writeError))

		r.Get("/api/user", s.handleProfile)
		r.Post("/api/user/activity", s.handleRecordActivity)
		r.Get("/api/user/activities", s.handleActivities)
		r.Get("/api/user/activities/export", s.handleExport)

		r.Post("/labreport", s.handleLabReport)
		r.Post("/medicine", s.handleMedicine)
		r.Post("/chatbot", s.handleChat)
		r.Post("/clear-chat", s.handleClearChat)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context(), s.opts.HealthTimeout); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
