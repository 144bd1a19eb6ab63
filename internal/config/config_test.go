package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guelfi/BarbeariaSaaS/internal/config"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef-test-only"

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "HS512", c.GetTokenAlgorithm())
	require.Equal(t, 168*time.Hour, c.GetAccessTokenExpiry())
	require.Equal(t, config.DriverSQLite, c.GetStoreDriver())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://barbearia.app"))
	require.Equal(t, []string{"Content-Type", "Authorization"}, c.GetAllowedHeaders())

	// no signing key is ever defaulted
	require.Empty(t, c.GetTokenKey())
	require.Error(t, c.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("TOKEN_KEY", testKey)
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.barbearia.app, https://app.barbearia.app")

	c, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, time.Hour, c.GetAccessTokenExpiry())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://app.barbearia.app"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://evil.example"))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=Barbearia Teste\nBCRYPT_COST=4\n"), 0o600))
	t.Setenv("APP_NAME", "")
	t.Setenv("BCRYPT_COST", "")
	os.Unsetenv("APP_NAME")
	os.Unsetenv("BCRYPT_COST")

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "Barbearia Teste", c.GetAppName())
	require.Equal(t, 4, c.GetBcryptCost())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		ok   bool
	}{
		{"short key", map[string]string{"TOKEN_KEY": "short"}, false},
		{"valid hmac", map[string]string{"TOKEN_KEY": testKey}, true},
		{"es256 needs key file", map[string]string{"TOKEN_ALGORITHM": "es256"}, false},
		{"postgres needs url", map[string]string{"TOKEN_KEY": testKey, "STORE_DRIVER": "postgres"}, false},
		{"unknown driver", map[string]string{"TOKEN_KEY": testKey, "STORE_DRIVER": "mongo"}, false},
		{"bcrypt cost too high", map[string]string{"TOKEN_KEY": testKey, "BCRYPT_COST": "40"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			c, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
			require.NoError(t, err)
			if tt.ok {
				require.NoError(t, c.Validate())
			} else {
				require.Error(t, c.Validate())
			}
		})
	}
}
