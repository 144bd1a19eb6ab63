package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenExpiry  = time.Hour
	DefaultRefreshTokenExpiry = 7 * 24 * time.Hour
)

// Manager mints and verifies signed access and refresh tokens.
type Manager struct {
	signer             Signer
	issuer             string
	revokedCache       RevokedTokenCache
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, errors.New("token.New: signer is required")
	}
	m := &Manager{
		signer:             signer,
		accessTokenExpiry:  DefaultAccessTokenExpiry,
		refreshTokenExpiry: DefaultRefreshTokenExpiry,
		nowFunc:            time.Now,
	}
	for _, opt := range options {
		opt(m)
	}

	// anything shorter than a second is a misconfiguration
	if m.accessTokenExpiry < time.Second || m.refreshTokenExpiry < time.Second {
		return nil, ErrInvalidExpiry
	}
	if m.revokedCache == nil {
		m.revokedCache = NewInMemoryRevokedTokenCache(m.nowFunc)
	}
	return m, nil
}

func (m *Manager) AccessTokenExpiry() time.Duration  { return m.accessTokenExpiry }
func (m *Manager) RefreshTokenExpiry() time.Duration { return m.refreshTokenExpiry }

// IssueAccessToken mints a token authorizing resource requests on behalf of user.
func (m *Manager) IssueAccessToken(user *users.User) (*Token, error) {
	return m.issueAccess(user, m.accessTokenExpiry)
}

func (m *Manager) issueAccess(user *users.User, ttl time.Duration) (*Token, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("Manager.IssueAccessToken: user with an ID is required")
	}
	claims := m.newClaims(user.ID, KindAccess, ttl)
	claims.Email = user.Email
	claims.Role = string(user.Role)
	claims.TenantID = user.TenantID
	return m.sign(claims)
}

// IssueRefreshToken mints a token that can only be exchanged for a new pair.
func (m *Manager) IssueRefreshToken(user *users.User) (*Token, error) {
	return m.issueRefresh(user, m.refreshTokenExpiry)
}

func (m *Manager) issueRefresh(user *users.User, ttl time.Duration) (*Token, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("Manager.IssueRefreshToken: user with an ID is required")
	}
	return m.sign(m.newClaims(user.ID, KindRefresh, ttl))
}

func (m *Manager) IssuePair(user *users.User) (*Pair, error) {
	return m.IssuePairWithExpiry(user, 0, 0)
}

// IssuePairWithExpiry mints a pair with per-call lifetimes, for frontends whose
// sessions are shorter or longer than the manager's. Zero keeps the manager's value.
func (m *Manager) IssuePairWithExpiry(user *users.User, accessTTL, refreshTTL time.Duration) (*Pair, error) {
	if accessTTL == 0 {
		accessTTL = m.accessTokenExpiry
	}
	if refreshTTL == 0 {
		refreshTTL = m.refreshTokenExpiry
	}
	if accessTTL < time.Second || refreshTTL < time.Second {
		return nil, ErrInvalidExpiry
	}

	access, err := m.issueAccess(user, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.issueRefresh(user, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: access, Refresh: refresh}, nil
}

func (m *Manager) newClaims(subject string, kind Kind, ttl time.Duration) *Claims {
	now := m.nowFunc()
	return &Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (m *Manager) sign(claims *Claims) (*Token, error) {
	raw, err := m.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.sign")
	}
	return &Token{
		Raw:       raw,
		ID:        claims.ID,
		Kind:      claims.Type,
		Subject:   claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, algorithm, expiry, kind and revocation. An access
// token is never accepted where a refresh token is expected, and vice versa.
func (m *Manager) Verify(ctx context.Context, rawToken string, expected Kind) (*Claims, error) {
	claims, err := m.parse(rawToken, true)
	if err != nil {
		return nil, err
	}
	if claims.Type != expected {
		return nil, ErrWrongKind
	}
	if claims.ID != "" {
		revoked, err := m.revokedCache.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, errors.Wrap(err, "Manager.Verify")
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke blacklists the token's jti until its expiry. Expired tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, rawToken string) error {
	claims, err := m.parse(rawToken, false)
	if err != nil {
		return err
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return errors.Wrap(ErrTokenMalformed, "token missing jti or exp claim")
	}
	if !m.nowFunc().Before(claims.ExpiresAt.Time) {
		return nil
	}
	return m.revokedCache.Add(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Consume verifies a token and revokes it in the same step. When several
// callers present the same token only one of them gets the claims back.
func (m *Manager) Consume(ctx context.Context, rawToken string, expected Kind) (*Claims, error) {
	claims, err := m.Verify(ctx, rawToken, expected)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.Wrap(ErrTokenMalformed, "token missing jti claim")
	}
	first, err := m.revokedCache.Consume(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Consume")
	}
	if !first {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// CleanupRevokedTokens removes expired entries from the revocation cache
func (m *Manager) CleanupRevokedTokens(ctx context.Context) {
	if m.revokedCache != nil {
		m.revokedCache.Cleanup(ctx)
	}
}

// JWKS publishes the verification key when the signer is asymmetric.
func (m *Manager) JWKS() (*JWKS, error) {
	keyPairSigner, ok := m.signer.(*KeyPairSigner)
	if !ok {
		return nil, errors.New("JWKS only supported for asymmetric signing (RSA/ECDSA)")
	}
	return keyPairSigner.GetJWKS()
}

func (m *Manager) parse(rawToken string, validateClaims bool) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		// exp is checked exactly below
		jwt.WithLeeway(claimPrecision),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(rawToken, claims, m.signer.GetVerificationKey, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(ErrTokenMalformed, err.Error())
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if err := readExactTimes(rawToken, claims); err != nil {
		return nil, errors.Wrap(ErrTokenMalformed, err.Error())
	}
	if validateClaims && !m.nowFunc().Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// readExactTimes re-reads iat and exp from the payload. NumericDate decodes
// fractional seconds through float64 and can come back a millisecond short.
func readExactTimes(rawToken string, claims *Claims) error {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return errors.New("token must have three segments")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return errors.Wrap(err, "decode payload")
	}
	var times struct {
		IssuedAt  json.Number `json:"iat"`
		ExpiresAt json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &times); err != nil {
		return errors.Wrap(err, "decode payload")
	}
	if times.IssuedAt != "" {
		t, err := parseNumericDate(times.IssuedAt)
		if err != nil {
			return err
		}
		claims.IssuedAt = jwt.NewNumericDate(t)
	}
	if times.ExpiresAt != "" {
		t, err := parseNumericDate(times.ExpiresAt)
		if err != nil {
			return err
		}
		claims.ExpiresAt = jwt.NewNumericDate(t)
	}
	return nil
}

func parseNumericDate(n json.Number) (time.Time, error) {
	whole, frac, _ := strings.Cut(n.String(), ".")
	sec, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "numeric date %q", n)
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, errors.Wrapf(err, "numeric date %q", n)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}
