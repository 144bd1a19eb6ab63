package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/rs/zerolog/log"
)

const DefaultAdminName = "Administrador"

// InitialiseSystem makes sure a platform admin exists. ADMIN_PASSWORD is used
// when set; otherwise a password is generated and returned (and logged once).
// Returns an empty password when an admin already exists.
func (s *Server) InitialiseSystem(ctx context.Context) (generatedPassword string, err error) {
	log.Info().Msg("Bootstrap: checking system configuration")

	existing, err := s.deps.Credentials.List(ctx, "", 0, 0)
	if err != nil {
		return "", fmt.Errorf("failed to check for existing users: %w", err)
	}
	for _, user := range existing {
		if user.Role == users.RoleAdmin && user.Active {
			log.Info().Str("email", user.Email).Msg("Bootstrap: admin already exists")
			return "", nil
		}
	}

	password := s.config.GetAdminPassword()
	if password == "" {
		if generatedPassword, err = generatePassword(); err != nil {
			return "", err
		}
		password = generatedPassword
	}

	admin, err := s.deps.Credentials.Create(ctx, &users.User{
		Email:       s.config.GetAdminEmail(),
		DisplayName: DefaultAdminName,
		Role:        users.RoleAdmin,
		Active:      true,
	}, password)
	if errors.Is(err, users.ErrDuplicateEmail) {
		return "", fmt.Errorf("ADMIN_EMAIL %s belongs to an inactive or non-admin principal", s.config.GetAdminEmail())
	}
	if err != nil {
		return "", fmt.Errorf("failed to create admin: %w", err)
	}

	event := log.Info().Str("email", admin.Email)
	if generatedPassword != "" {
		// printed once so the operator can sign in; it is not stored anywhere in clear
		event = event.Str("password", generatedPassword)
	}
	event.Msg("Bootstrap: created platform admin")
	return generatedPassword, nil
}

// generatePassword returns a random password that passes the registration rules
func generatePassword() (string, error) {
	for {
		b := make([]byte, 18)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		password := base64.RawURLEncoding.EncodeToString(b)
		if users.ValidatePasswordStrength(password) == nil {
			return password, nil
		}
	}
}
