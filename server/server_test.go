package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/internal/config"
	"github.com/guelfi/BarbeariaSaaS/server"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	tenantrepofakes "github.com/guelfi/BarbeariaSaaS/tenants/repofakes"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	fakeuserrepo "github.com/guelfi/BarbeariaSaaS/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef-test-only"
	testAdminEmail    = "admin@barbearia.com"
	testAdminPassword = "admin123"
	testPassword      = "corte123"
	testClientEmail   = "cliente@example.com"
)

type testFixture struct {
	server *server.Server
	users  *fakeuserrepo.FakeUserRepo
	tokens *token.Manager
	tenant *tenants.Tenant
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	t.Setenv("TOKEN_KEY", testSecret)
	t.Setenv("ADMIN_EMAIL", testAdminEmail)
	t.Setenv("ADMIN_PASSWORD", testAdminPassword)
	t.Setenv("ENV", "TEST")
	for k, v := range env {
		t.Setenv(k, v)
	}
	c, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	return c
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	cfg := loadConfig(t, nil)

	signer, err := token.NewSigner(cfg.GetTokenAlgorithm(), cfg.GetTokenKey(), "")
	require.NoError(t, err)
	tokens, err := token.New(signer,
		token.WithIssuer(cfg.GetTokenIssuer()),
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
	)
	require.NoError(t, err)

	shop := &tenants.Tenant{Name: "Barbearia Central"}
	tr := tenantrepofakes.NewFakeTenantRepo(shop)
	ur := fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost))
	_, err = ur.Create(context.Background(), &users.User{
		Email: testClientEmail, DisplayName: "Maria", Role: users.RoleClient, TenantID: shop.ID, Active: true,
	}, testPassword)
	require.NoError(t, err)

	s, err := server.New(cfg, server.Dependencies{
		Credentials: ur,
		Tenants:     tr,
		Tokens:      tokens,
		Gate:        audience.NewGate(audience.DefaultPolicy()),
	})
	require.NoError(t, err)
	return &testFixture{server: s, users: ur, tokens: tokens, tenant: shop}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, bearer string) (*httptest.ResponseRecorder, server.AuthResponse) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var resp server.AuthResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	admin, err := f.users.Validate(ctx, testAdminEmail, testAdminPassword)
	require.NoError(t, err)
	require.Equal(t, users.RoleAdmin, admin.Role)

	password, err := f.server.InitialiseSystem(ctx)
	require.NoError(t, err)
	require.Empty(t, password)

	all, err := f.users.List(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBootstrapGeneratesPassword(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ADMIN_PASSWORD": ""})
	signer, err := token.NewSigner("", testSecret, "")
	require.NoError(t, err)
	tokens, err := token.New(signer)
	require.NoError(t, err)
	ur := fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost))

	s, err := server.New(cfg, server.Dependencies{Credentials: ur, Tokens: tokens, Gate: audience.NewGate(audience.DefaultPolicy())})
	require.NoError(t, err)
	require.NotNil(t, s)

	// the generated password was only logged; it still has to satisfy the registration rules
	all, err := ur.List(context.Background(), "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, users.RoleAdmin, all[0].Role)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	rec, resp := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": "  ADMIN@barbearia.com ", "password": testAdminPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, testAdminEmail, resp.User.Email)
	require.NotContains(t, rec.Body.String(), "$2a$")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	claims, err := f.tokens.Verify(context.Background(), resp.Token, token.KindAccess)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.Subject)
	require.Equal(t, string(users.RoleAdmin), claims.Role)
	require.WithinDuration(t, time.Now().Add(168*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)

	wrongPassword, wrongBody := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testAdminEmail, "password": "wrong123",
	}, "")
	unknownEmail, unknownBody := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": "nobody@barbearia.com", "password": testAdminPassword,
	}, "")
	wrongAudience, audienceBody := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testClientEmail, "password": testPassword, "audience": "admin",
	}, "")

	for _, rec := range []*httptest.ResponseRecorder{wrongPassword, unknownEmail, wrongAudience} {
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.Equal(t, wrongBody, unknownBody)
	require.Equal(t, wrongBody, audienceBody)
	require.False(t, wrongBody.Success)
	require.Empty(t, wrongBody.Token)
}

func TestLoginWithAudience(t *testing.T) {
	f := setupTestFixture(t)

	rec, resp := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testClientEmail, "password": testPassword, "audience": "mobile",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, users.RoleClient, resp.User.Role)

	rec, _ = f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testClientEmail, "password": testPassword, "audience": "kiosk",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginBadRequest(t *testing.T) {
	f := setupTestFixture(t)

	rec, resp := f.do(t, http.MethodPost, server.RouteAPILogin, "{not json", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, resp.Success)

	_, wrong := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{"email": testClientEmail, "password": "wrong123"}, "")
	for _, body := range []map[string]string{
		{"email": "admin", "password": "x"},
		{"email": testClientEmail, "password": ""},
		{},
	} {
		rec, resp := f.do(t, http.MethodPost, server.RouteAPILogin, body, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "body %v", body)
		require.Equal(t, wrong, resp)
	}
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)
	body := map[string]string{
		"name":     "João",
		"email":    "joao@example.com",
		"password": "tesoura9",
		"tenantId": f.tenant.ID,
	}

	rec, resp := f.do(t, http.MethodPost, server.RouteAPIRegister, body, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)
	require.Equal(t, users.RoleClient, resp.User.Role)
	require.NotEmpty(t, resp.Token)

	rec, resp = f.do(t, http.MethodPost, server.RouteAPIRegister, body, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, resp.Success)

	body["email"] = "outro@example.com"
	body["tenantId"] = "missing"
	rec, _ = f.do(t, http.MethodPost, server.RouteAPIRegister, body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body["tenantId"] = f.tenant.ID
	body["password"] = "short"
	rec, _ = f.do(t, http.MethodPost, server.RouteAPIRegister, body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	f := setupTestFixture(t)
	_, login := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testClientEmail, "password": testPassword,
	}, "")

	rec, resp := f.do(t, http.MethodGet, server.RouteAPIMe, nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, testClientEmail, resp.User.Email)

	rec, _ = f.do(t, http.MethodGet, server.RouteAPIMe, nil, login.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, server.RouteAPIMe, nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, f.users.SetActive(context.Background(), testClientEmail, false))
	rec, _ = f.do(t, http.MethodGet, server.RouteAPIMe, nil, login.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	f := setupTestFixture(t)
	_, login := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testClientEmail, "password": testPassword,
	}, "")

	rec, refreshed := f.do(t, http.MethodPost, server.RouteAPIRefresh, map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, login.Token, refreshed.Token)

	// a refresh token is single use
	rec, _ = f.do(t, http.MethodPost, server.RouteAPIRefresh, map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAPIRefresh, map[string]string{"refreshToken": refreshed.Token}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPost, server.RouteAPILogout, map[string]string{"refreshToken": refreshed.RefreshToken}, refreshed.Token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = f.do(t, http.MethodGet, server.RouteAPIMe, nil, refreshed.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodPost, server.RouteAPIRefresh, map[string]string{"refreshToken": refreshed.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// slowRevocationCache adds a round trip to every lookup, as a remote cache would.
type slowRevocationCache struct {
	*token.InMemoryRevokedTokenCache
}

func (c slowRevocationCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := c.InMemoryRevokedTokenCache.IsRevoked(ctx, jti)
	time.Sleep(5 * time.Millisecond)
	return revoked, err
}

func TestConcurrentRefreshIsSingleUse(t *testing.T) {
	cfg := loadConfig(t, nil)
	signer, err := token.NewSigner(cfg.GetTokenAlgorithm(), cfg.GetTokenKey(), "")
	require.NoError(t, err)
	tokens, err := token.New(signer,
		token.WithIssuer(cfg.GetTokenIssuer()),
		token.WithRevokedTokenCache(slowRevocationCache{token.NewInMemoryRevokedTokenCache(nil)}),
	)
	require.NoError(t, err)
	ur := fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost))
	s, err := server.New(cfg, server.Dependencies{
		Credentials: ur,
		Tokens:      tokens,
		Gate:        audience.NewGate(audience.DefaultPolicy()),
	})
	require.NoError(t, err)
	f := &testFixture{server: s, users: ur, tokens: tokens}

	_, login := f.do(t, http.MethodPost, server.RouteAPILogin, map[string]string{
		"email": testAdminEmail, "password": testAdminPassword,
	}, "")
	require.NotEmpty(t, login.RefreshToken)
	body, err := json.Marshal(map[string]string{"refreshToken": login.RefreshToken})
	require.NoError(t, err)

	const requests = 10
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, server.RouteAPIRefresh, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
			continue
		}
		require.Equal(t, http.StatusUnauthorized, code)
	}
	require.Equal(t, 1, ok)
}

func TestOperationalRoutes(t *testing.T) {
	f := setupTestFixture(t)

	rec, _ := f.do(t, http.MethodGet, server.RouteHealth, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec, _ = f.do(t, http.MethodGet, server.RouteMetrics, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "barbearia_http_request_duration_seconds")

	// HS512 has no public key to publish
	rec, _ = f.do(t, http.MethodGet, server.RouteWellKnownJWKS, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJWKSForAsymmetricSigner(t *testing.T) {
	cfg := loadConfig(t, nil)
	keyPair, err := token.GenerateECDSAKeyPair("api-key-1")
	require.NoError(t, err)
	tokens, err := token.New(token.NewKeyPairSigner(keyPair))
	require.NoError(t, err)

	s, err := server.New(cfg, server.Dependencies{
		Credentials: fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost)),
		Tokens:      tokens,
		Gate:        audience.NewGate(audience.DefaultPolicy()),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteWellKnownJWKS, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kid":"api-key-1"`)
}

func TestCORSPreflight(t *testing.T) {
	f := setupTestFixture(t)
	req := httptest.NewRequest(http.MethodOptions, server.RouteAPILogin, nil)
	req.Header.Set("Origin", "https://app.barbearia.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
