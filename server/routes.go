package server

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.RecoverMiddleware)
	r.Use(s.MetricsMiddleware)
	r.Use(s.CorsMiddleware())

	r.Get(RouteHealth, s.Health())
	if s.config.GetMetricsEnabled() {
		r.Handle(RouteMetrics, promhttp.Handler())
	}
	if _, err := s.deps.Tokens.JWKS(); err == nil {
		r.Get(RouteWellKnownJWKS, s.JWKS())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.APIMiddleware)
		r.Post(RouteAPILogin, s.LoginHandler())
		r.Post(RouteAPIRegister, s.RegisterHandler())
		r.Post(RouteAPIRefresh, s.RefreshHandler())

		// Protected endpoints (require a valid access token)
		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Get(RouteAPIMe, s.MeHandler())
			r.Post(RouteAPILogout, s.LogoutHandler())
		})
	})
}
