package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/auth"
	"github.com/guelfi/BarbeariaSaaS/internal/config"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/rs/zerolog/log"
)

// Dependencies are the stores and services the HTTP API is built on.
type Dependencies struct {
	Credentials users.CredentialStore
	Tenants     tenants.Repo
	Tokens      *token.Manager
	Gate        *audience.Gate
}

type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	router        chi.Router
	config        config.Config
	deps          Dependencies
	authenticator *auth.Authenticator
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	switch {
	case deps.Credentials == nil:
		return nil, errors.New("[Server New] credential store is required")
	case deps.Tokens == nil:
		return nil, errors.New("[Server New] token manager is required")
	case deps.Gate == nil:
		return nil, errors.New("[Server New] audience gate is required")
	}

	s := &Server{
		env:           config.GetEnv(),
		router:        chi.NewRouter(),
		config:        config,
		deps:          deps,
		authenticator: auth.NewAuthenticator(deps.Credentials, deps.Gate, log.Logger.With().Str("component", "api").Logger()),
	}

	// Bootstrap: ensure the platform admin exists
	if _, err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logRoute(method, strings.TrimSuffix(route, "/*"))
		return nil
	})
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
