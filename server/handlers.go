package server

import (
	"errors"
	"net/http"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/auth"
	"github.com/guelfi/BarbeariaSaaS/internal/metrics"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/rs/zerolog/log"
)

// LoginRequest is the body of POST /api/auth/login. Audience is optional;
// when present the audience policy is enforced.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Audience string `json:"audience,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// messageInvalidLogin is returned for every credential failure so callers
// cannot tell an unknown email from a wrong password.
const messageInvalidLogin = "invalid email or password"

func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.deps.Tokens.JWKS()
		if err != nil {
			log.Err(err).Msg("failed to build JWKS")
			writeJSON(w, http.StatusInternalServerError, failure("failed to get JWKS"))
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, jwks)
	}
}

// LoginHandler exchanges credentials for a token pair
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
			return
		}

		var aud audience.Audience
		if req.Audience != "" {
			parsed, err := audience.Parse(req.Audience)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, failure(err.Error()))
				return
			}
			aud = parsed
		}

		user, err := s.authenticator.Authenticate(r.Context(), auth.Credentials{Email: req.Email, Password: req.Password}, aud)
		metrics.LoginAttempts.WithLabelValues(string(aud), outcome(err)).Inc()
		if err != nil {
			s.writeAuthError(w, err)
			return
		}
		s.writePair(w, http.StatusOK, user, "login successful")
	}
}

// RegisterHandler signs up a client of an existing barbershop
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ClientRegistration
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
			return
		}
		req.Normalize()
		if err := req.Validate(); err != nil {
			metrics.Registrations.WithLabelValues(string(auth.KindValidationError)).Inc()
			writeJSON(w, http.StatusBadRequest, failure(err.Error()))
			return
		}

		if s.deps.Tenants != nil {
			if _, err := s.deps.Tenants.Get(r.Context(), req.TenantID); err != nil {
				if errors.Is(err, tenants.ErrTenantNotFound) {
					metrics.Registrations.WithLabelValues(string(auth.KindValidationError)).Inc()
					writeJSON(w, http.StatusBadRequest, failure("unknown barbershop"))
					return
				}
				log.Err(err).Msg("tenant lookup failed")
				writeJSON(w, http.StatusInternalServerError, failure("registration failed"))
				return
			}
		}

		user, err := s.deps.Credentials.Create(r.Context(), &users.User{
			Email:       req.Email,
			DisplayName: req.Name,
			Role:        users.RoleClient,
			TenantID:    req.TenantID,
			Phone:       req.Phone,
			Active:      true,
		}, req.Password)
		switch {
		case errors.Is(err, users.ErrDuplicateEmail):
			metrics.Registrations.WithLabelValues(string(auth.KindDuplicateEmail)).Inc()
			writeJSON(w, http.StatusConflict, failure(auth.KindDuplicateEmail.Message()))
			return
		case errors.Is(err, users.ErrInvalidPrincipal):
			metrics.Registrations.WithLabelValues(string(auth.KindValidationError)).Inc()
			writeJSON(w, http.StatusBadRequest, failure(err.Error()))
			return
		case err != nil:
			metrics.Registrations.WithLabelValues(string(auth.KindUnknownError)).Inc()
			log.Err(err).Msg("client registration failed")
			writeJSON(w, http.StatusInternalServerError, failure("registration failed"))
			return
		}
		metrics.Registrations.WithLabelValues(metrics.OutcomeOK).Inc()
		log.Info().Str("user", user.ID).Str("tenant", user.TenantID).Msg("client registered")
		s.writePair(w, http.StatusCreated, user, "registration successful")
	}
}

// RefreshHandler exchanges a refresh token for a new pair. The presented token
// is consumed before anything else so concurrent requests cannot both use it.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
			writeJSON(w, http.StatusBadRequest, failure("refreshToken is required"))
			return
		}

		claims, err := s.deps.Tokens.Consume(r.Context(), req.RefreshToken, token.KindRefresh)
		if err != nil {
			if !isTokenRejection(err) {
				log.Err(err).Msg("failed to consume refresh token")
				writeJSON(w, http.StatusInternalServerError, failure("refresh failed"))
				return
			}
			writeJSON(w, http.StatusUnauthorized, failure(auth.KindTokenExpired.Message()))
			return
		}
		user, err := s.deps.Credentials.GetByID(r.Context(), claims.Subject)
		if err != nil || !user.Active {
			writeJSON(w, http.StatusUnauthorized, failure(auth.KindTokenExpired.Message()))
			return
		}
		s.writePair(w, http.StatusOK, user, "session refreshed")
	}
}

// LogoutHandler revokes the bearer token and, when supplied, the refresh token
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := r.Context().Value(ContextKeyAccessToken).(string)
		if err := s.deps.Tokens.Revoke(r.Context(), raw); err != nil {
			log.Err(err).Msg("failed to revoke access token")
			writeJSON(w, http.StatusInternalServerError, failure("logout failed"))
			return
		}

		var req RefreshRequest
		if r.ContentLength != 0 && decodeJSON(w, r, &req) == nil && req.RefreshToken != "" {
			claims, err := s.deps.Tokens.Verify(r.Context(), req.RefreshToken, token.KindRefresh)
			current, _ := ClaimsFromContext(r.Context())
			if err == nil && current != nil && claims.Subject == current.Subject {
				if err := s.deps.Tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
					log.Warn().Err(err).Msg("failed to revoke refresh token")
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the principal behind the bearer token
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, failure("invalid or expired token"))
			return
		}
		user, err := s.deps.Credentials.GetByID(r.Context(), claims.Subject)
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			writeJSON(w, http.StatusUnauthorized, failure(auth.KindUserNotFound.Message()))
			return
		case err != nil:
			log.Err(err).Msg("user lookup failed")
			writeJSON(w, http.StatusInternalServerError, failure("lookup failed"))
			return
		case !user.Active:
			writeJSON(w, http.StatusUnauthorized, failure(auth.KindUserInactive.Message()))
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{Success: true, User: user})
	}
}

func (s *Server) writePair(w http.ResponseWriter, status int, user *users.User, message string) {
	pair, err := s.deps.Tokens.IssuePair(user)
	if err != nil {
		log.Err(err).Str("user", user.ID).Msg("failed to issue tokens")
		writeJSON(w, http.StatusInternalServerError, failure("failed to issue tokens"))
		return
	}
	metrics.TokensIssued.WithLabelValues(string(token.KindAccess)).Inc()
	metrics.TokensIssued.WithLabelValues(string(token.KindRefresh)).Inc()

	public := user.Clone()
	public.PasswordHash = ""
	expiresAt := pair.Access.ExpiresAt
	writeJSON(w, status, AuthResponse{
		Success:      true,
		Message:      message,
		Token:        pair.Access.Raw,
		RefreshToken: pair.Refresh.Raw,
		ExpiresAt:    &expiresAt,
		User:         public,
	})
}

// writeAuthError maps a failed authentication onto a status. Every credential
// and policy failure, malformed credentials included, gets the same 401 body.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch auth.KindOf(err) {
	case auth.KindValidationError, auth.KindInvalidCredentials, auth.KindUserInactive,
		auth.KindUserNotFound, auth.KindUnauthorizedAudience:
		writeJSON(w, http.StatusUnauthorized, failure(messageInvalidLogin))
	case auth.KindNetworkError:
		writeJSON(w, http.StatusServiceUnavailable, failure(auth.KindNetworkError.Message()))
	default:
		writeJSON(w, http.StatusInternalServerError, failure(auth.KindUnknownError.Message()))
	}
}

func isTokenRejection(err error) bool {
	return errors.Is(err, token.ErrTokenExpired) ||
		errors.Is(err, token.ErrTokenMalformed) ||
		errors.Is(err, token.ErrWrongKind) ||
		errors.Is(err, token.ErrTokenRevoked)
}

func outcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	return string(auth.KindOf(err))
}
