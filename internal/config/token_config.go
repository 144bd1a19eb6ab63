package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/guelfi/BarbeariaSaaS/token"
)

type TokenConfig interface {
	GetTokenAlgorithm() string
	GetTokenKey() string
	GetTokenPrivateKeyPEM() (string, error)
	GetTokenIssuer() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

// Tokens configures the API's signer. The key is never defaulted.
type Tokens struct {
	Algorithm          string        `env:"TOKEN_ALGORITHM" envDefault:"HS512"`
	Key                string        `env:"TOKEN_KEY"`
	PrivateKeyFile     string        `env:"TOKEN_PRIVATE_KEY_FILE"`
	Issuer             string        `env:"TOKEN_ISSUER" envDefault:"barbearia-saas"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"168h"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetTokenAlgorithm() string { return strings.ToUpper(strings.TrimSpace(t.Algorithm)) }
func (t Tokens) GetTokenKey() string       { return t.Key }
func (t Tokens) GetTokenIssuer() string    { return t.Issuer }

func (t Tokens) GetAccessTokenExpiry() time.Duration  { return t.AccessTokenExpiry }
func (t Tokens) GetRefreshTokenExpiry() time.Duration { return t.RefreshTokenExpiry }

// GetTokenPrivateKeyPEM reads the key file for RS256/ES256; empty when no file is configured.
func (t Tokens) GetTokenPrivateKeyPEM() (string, error) {
	if t.PrivateKeyFile == "" {
		return "", nil
	}
	raw, err := os.ReadFile(t.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("read token private key: %w", err)
	}
	return string(raw), nil
}

func (t Tokens) isHMAC() bool {
	alg := t.GetTokenAlgorithm()
	return alg == "" || strings.HasPrefix(alg, "HS")
}

func (t Tokens) validate() error {
	switch {
	case t.isHMAC() && t.Key == "":
		return fmt.Errorf("TOKEN_KEY is required for %s", t.GetTokenAlgorithm())
	case t.isHMAC() && len(t.Key) < token.MinHMACKeyLength:
		return fmt.Errorf("TOKEN_KEY must be at least %d bytes", token.MinHMACKeyLength)
	case !t.isHMAC() && t.PrivateKeyFile == "":
		return fmt.Errorf("TOKEN_PRIVATE_KEY_FILE is required for %s", t.GetTokenAlgorithm())
	case t.AccessTokenExpiry < time.Second || t.RefreshTokenExpiry < time.Second:
		return fmt.Errorf("token expiries must be at least one second")
	}
	return nil
}
