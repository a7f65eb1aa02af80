// Package api implements the admin HTTP API and mounts the media-stream and
// metrics endpoints on the shared router.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voxgate/voxgate/internal/api/middleware"
	"github.com/voxgate/voxgate/internal/database"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router     *chi.Mux
	tenants    database.TenantRepository
	callLogs   database.CallLogRepository
	adminUsers database.AdminUserRepository
	jwtSecret  []byte

	media   http.Handler // media-stream websocket endpoint, may be nil
	metrics http.Handler // prometheus scrape endpoint, may be nil
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(store database.Store, jwtSecret []byte, media, metrics http.Handler) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		tenants:    store.Tenants(),
		callLogs:   store.CallLogs(),
		adminUsers: store.AdminUsers(),
		jwtSecret:  jwtSecret,
		media:      media,
		metrics:    metrics,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures the middleware stack and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	// The media stream must stay outside the logging middleware: its
	// response wrapper hides http.Hijacker from the websocket upgrade.
	if s.media != nil {
		r.Handle("/media-stream", s.media)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	apiLimiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	authLimiter := middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig())

	r.Group(func(r chi.Router) {
		r.Use(middleware.StructuredLogger)
		r.Use(middleware.Recoverer)
		r.Use(middleware.RateLimit(apiLimiter))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/health", s.handleHealth)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(authLimiter))
				r.Post("/setup", s.handleSetup)
				r.Post("/auth/login", s.handleLogin)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdminAuth(s.jwtSecret))

				r.Route("/tenants", func(r chi.Router) {
					r.Get("/", s.handleListTenants)
					r.Post("/", s.handleCreateTenant)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetTenant)
						r.Put("/", s.handleUpdateTenant)
						r.Delete("/", s.handleDeleteTenant)
					})
				})

				r.Get("/calls", s.handleListCalls)
			})
		})
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
