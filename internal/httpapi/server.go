// Package httpapi exposes the spec.md §6 HTTP surface: JSON-over-HTTP
// endpoints routed through a plain net/http.ServeMux with Go 1.22+
// method-pattern routes, grounded directly on
// internal/httpapi/server.go's NewServer/registerRoutes/ServeHTTP shape
// (manifold uses no external router library for its own API surface).
package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/authjwt"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/config"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/contextengine"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/domains"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

// Server wires the context engine and supporting stores to the HTTP
// surface.
type Server struct {
	engine  *contextengine.Engine
	store   vectorstore.Store
	domains *domains.Registry
	auth    *authjwt.Service
	cfg     config.Config
	log     obs.Logger

	healthCheck func() (status string, components map[string]string)

	mux *http.ServeMux
}

// Version is the build-time version string surfaced by GET /health.
// original_source/main.py reads this from package metadata; here it is
// a plain package var a build can override with -ldflags.
var Version = "dev"

// NewServer constructs a Server and registers every route.
func NewServer(engine *contextengine.Engine, store vectorstore.Store, reg *domains.Registry, auth *authjwt.Service, cfg config.Config, log obs.Logger, healthCheck func() (string, map[string]string)) *Server {
	if log == nil {
		log = obs.NoopLogger{}
	}
	s := &Server{
		engine:      engine,
		store:       store,
		domains:     reg,
		auth:        auth,
		cfg:         cfg,
		log:         log,
		healthCheck: healthCheck,
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /token", s.handleToken)
	s.mux.HandleFunc("POST /v1/learn", s.handleLearn)
	s.mux.HandleFunc("POST /v1/query", s.handleQuery)
	s.mux.HandleFunc("POST /v1/propose", s.handlePropose)
	s.mux.HandleFunc("POST /v1/feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /v1/domains", s.handleDomains)
	s.mux.HandleFunc("GET /v1/stats", s.handleStats)
	s.mux.HandleFunc("GET /v1/proposals/history", s.handleProposalsHistory)
	s.mux.HandleFunc("POST /admin/cleanup", s.handleAdminCleanup)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}
