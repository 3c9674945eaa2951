package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/larder/pkg/accounts"
	"github.com/platinummonkey/larder/pkg/audit"
	"github.com/platinummonkey/larder/pkg/avatar"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/ratelimit"
	"github.com/platinummonkey/larder/pkg/session"
)

// MaxBodyBytes bounds request bodies
const MaxBodyBytes = 1 << 20

// Deps are the collaborators of the HTTP server
type Deps struct {
	Accounts *accounts.Service
	Store    membership.Store
	Sessions *session.CookieStore
	Gate     *middleware.Gate
	Throttle *middleware.Throttle
	Limiters *ratelimit.Registry
	Avatars  avatar.Resolver
	Audit    audit.Logger
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	// TrustedProxies may set X-Forwarded-For and X-Real-IP
	TrustedProxies httputil.TrustedProxies
}

// Server is the HTTP API
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer creates the server and registers every route
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Runs after route matching so requests are labelled by route template
	s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))

	if s.deps.Health != nil {
		s.router.HandleFunc("/health/live", s.deps.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.deps.Health.Readiness).Methods("GET")
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods("GET")
	}

	NewAuthHandlers(s.deps.Accounts, s.deps.Sessions, s.deps.Throttle, s.deps.Limiters, s.deps.Audit, s.deps.Logger).
		RegisterRoutes(s.router, s.deps.Gate)
	NewMemberHandlers(s.deps.Store, s.deps.Avatars, s.deps.Audit, s.deps.Logger, s.deps.Metrics).
		RegisterRoutes(s.router, s.deps.Gate)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "Not found")
	})
}

// Router returns the bare router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in the request middleware chain
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.ClientIPMiddleware(s.deps.TrustedProxies),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		httputil.RecoveryMiddleware(s.deps.Logger),
		httputil.MaxBytesMiddleware(MaxBodyBytes),
	)(s.router)
}
