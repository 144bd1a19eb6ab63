package server

// Route path constants
const (
	// Auth API
	RouteAPILogin    = "/api/auth/login"
	RouteAPIRegister = "/api/auth/register"
	RouteAPIRefresh  = "/api/auth/refresh"
	RouteAPILogout   = "/api/auth/logout"
	RouteAPIMe       = "/api/auth/me"

	// Public key discovery, only served for RS256/ES256 signers
	RouteWellKnownJWKS = "/.well-known/jwks.json"

	// Operations
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)
