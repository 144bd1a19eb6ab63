package sessionctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"path/filepath"
	"testing"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/auth"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	tenantrepofakes "github.com/guelfi/BarbeariaSaaS/tenants/repofakes"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	fakeuserrepo "github.com/guelfi/BarbeariaSaaS/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func noEnv(string) (string, bool) { return "", false }

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("sessionctl", flag.ContinueOnError), nil, noEnv)
	require.NoError(t, err)
	require.Equal(t, CommandStatus, cfg.Command)
	require.Equal(t, audience.Client, cfg.Audience)
	require.Equal(t, filepath.Join("data", "session-client.json"), cfg.StatePath)
	require.True(t, cfg.OfflineCache)
}

func TestParseConfigFlagsAndEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "SESSION_AUDIENCE" {
			return "desktop", true
		}
		return "", false
	}
	cfg, err := ParseConfig(flag.NewFlagSet("sessionctl", flag.ContinueOnError),
		[]string{"-email", "barbeiro@barbearia.com", "LOGIN", "-password", "corte123", "-state", "/tmp/s.json"}, lookup)
	require.NoError(t, err)
	require.Equal(t, CommandLogin, cfg.Command)
	require.Equal(t, audience.Staff, cfg.Audience)
	require.Equal(t, "/tmp/s.json", cfg.StatePath)
	require.Equal(t, "barbeiro@barbearia.com", cfg.Email)
	require.Equal(t, "corte123", cfg.Password)
}

func TestParseConfigRejectsUnknownInput(t *testing.T) {
	fs := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err := ParseConfig(fs, []string{"teleport"}, noEnv)
	require.ErrorContains(t, err, "unknown command")

	fs = flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err = ParseConfig(fs, []string{"-audience", "kiosk"}, noEnv)
	require.Error(t, err)
}

type testFixture struct {
	deps   auth.Dependencies
	users  *fakeuserrepo.FakeUserRepo
	tenant *tenants.Tenant
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	signer, err := token.NewSigner("HS512", "0123456789abcdef0123456789abcdef-test-only", "")
	require.NoError(t, err)
	tokens, err := token.New(signer)
	require.NoError(t, err)

	shop := &tenants.Tenant{Name: "Barbearia Central"}
	tr := tenantrepofakes.NewFakeTenantRepo(shop)
	ur := fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()
	_, err = ur.Create(ctx, &users.User{Email: "admin@barbearia.com", Role: users.RoleAdmin, Active: true}, "admin123")
	require.NoError(t, err)
	_, err = ur.Create(ctx, &users.User{Email: "cliente@example.com", Role: users.RoleClient, TenantID: shop.ID, Active: true}, "corte123")
	require.NoError(t, err)

	return &testFixture{
		deps: auth.Dependencies{
			Credentials: ur,
			Tokens:      tokens,
			Gate:        audience.NewGate(audience.DefaultPolicy()),
			Store:       storage.NewMemoryStore(),
			Tenants:     tr,
		},
		users:  ur,
		tenant: shop,
	}
}

type decodedOutput struct {
	Command string `json:"command"`
	Message string `json:"message"`
	Session struct {
		State         string `json:"state"`
		Authenticated bool   `json:"authenticated"`
		User          *struct {
			Email string `json:"email"`
		} `json:"user"`
	} `json:"session"`
	Offline bool              `json:"offline"`
	Synced  *int              `json:"synced"`
	Pending []json.RawMessage `json:"pending"`
}

func (f *testFixture) run(t *testing.T, cfg Config) (decodedOutput, error) {
	t.Helper()
	if cfg.Audience == "" {
		cfg.Audience = audience.Client
	}
	var out bytes.Buffer
	err := Run(context.Background(), cfg, f.deps, &out, zerolog.Nop())
	var decoded decodedOutput
	if err == nil {
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	}
	return decoded, err
}

func TestRunSessionSurvivesInvocations(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, Config{Command: CommandLogin, Email: "cliente@example.com", Password: "corte123"})
	require.NoError(t, err)
	require.True(t, out.Session.Authenticated)
	require.Equal(t, "login successful", out.Message)

	out, err = f.run(t, Config{Command: CommandStatus})
	require.NoError(t, err)
	require.Equal(t, "authenticated", out.Session.State)
	require.Equal(t, "cliente@example.com", out.Session.User.Email)

	out, err = f.run(t, Config{Command: CommandRefresh})
	require.NoError(t, err)
	require.Equal(t, "session refreshed", out.Message)

	out, err = f.run(t, Config{Command: CommandLogout})
	require.NoError(t, err)
	require.Equal(t, "unauthenticated", out.Session.State)

	out, err = f.run(t, Config{Command: CommandStatus})
	require.NoError(t, err)
	require.False(t, out.Session.Authenticated)
}

func TestRunWrongAudience(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, Config{Command: CommandLogin, Email: "admin@barbearia.com", Password: "admin123"})
	require.ErrorIs(t, err, auth.ErrUnauthorizedAudience)
	require.Equal(t, "UNAUTHORIZED_AUDIENCE: this account cannot sign in to this application", Describe(err))

	out, err := f.run(t, Config{Command: CommandLogin, Audience: audience.Admin, Email: "admin@barbearia.com", Password: "admin123"})
	require.NoError(t, err)
	require.True(t, out.Session.Authenticated)
}

func TestRunRegister(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, Config{
		Command: CommandRegister, Name: "João", Email: "joao@example.com", Password: "tesoura9", TenantID: f.tenant.ID,
	})
	require.NoError(t, err)
	require.True(t, out.Session.Authenticated)
	_, err = f.users.FindByEmail(context.Background(), "joao@example.com")
	require.NoError(t, err)

	_, err = f.run(t, Config{Command: CommandRegister, Name: "J", Email: "bad", Password: "x", TenantID: f.tenant.ID})
	require.ErrorIs(t, err, auth.ErrValidation)
	require.Contains(t, Describe(err), "VALIDATION_ERROR: ")
	require.NotEqual(t, "VALIDATION_ERROR: invalid input", Describe(err))
}

func TestRunRegisterShop(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run(t, Config{
		Command:  CommandRegisterShop,
		Audience: audience.Staff,
		ShopName: "Navalha de Ouro",
		Name:     "Carlos Silva",
		Email:    "carlos@navalha.com",
		Password: "navalha1",
	})
	require.NoError(t, err)
	require.True(t, out.Session.Authenticated)

	barber, err := f.users.FindByEmail(context.Background(), "carlos@navalha.com")
	require.NoError(t, err)
	require.Equal(t, users.RoleBarber, barber.Role)
	require.NotEmpty(t, barber.TenantID)
}

func TestRunOfflineRoundTrip(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run(t, Config{Command: CommandLogin, OfflineCache: true, Email: "cliente@example.com", Password: "corte123"})
	require.NoError(t, err)

	out, err := f.run(t, Config{Command: CommandOffline, OfflineCache: true})
	require.NoError(t, err)
	require.True(t, out.Offline)

	out, err = f.run(t, Config{Command: CommandLogin, OfflineCache: true, Email: "cliente@example.com", Password: "corte123"})
	require.NoError(t, err)
	require.Equal(t, "served from offline cache", out.Message)

	out, err = f.run(t, Config{Command: CommandPending, OfflineCache: true})
	require.NoError(t, err)
	require.Len(t, out.Pending, 1)

	out, err = f.run(t, Config{Command: CommandSync, OfflineCache: true})
	require.NoError(t, err)
	require.NotNil(t, out.Synced)
	require.Equal(t, 1, *out.Synced)
	require.False(t, out.Offline)
}

func TestRunOfflineWithoutCache(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.run(t, Config{Command: CommandOffline})
	require.ErrorIs(t, err, auth.ErrUnknown)
}

func TestDescribePlainError(t *testing.T) {
	require.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestOpenSessionStoreFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	store, closeStore, err := OpenSessionStore(context.Background(), Config{StatePath: path})
	require.NoError(t, err)
	defer closeStore()

	require.NoError(t, store.SetMany(context.Background(), map[string]string{"mobile_token": "abc"}))
	v, ok, err := store.Get(context.Background(), "mobile_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", v)
}
