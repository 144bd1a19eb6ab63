// Package pgstore implements users.CredentialStore over PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS principals (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL,
    tenant_id     TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    active        BOOLEAN NOT NULL DEFAULT TRUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS principals_tenant_idx ON principals (tenant_id);
CREATE TABLE IF NOT EXISTS tenants (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`

const selectPrincipal = `
SELECT id, email, display_name, role, tenant_id, phone, active, password_hash, created_at
FROM principals
`

var _ users.CredentialStore = (*Store)(nil)

// Store persists principals in PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	cost    int
	nowFunc func() time.Time
}

type Option func(*Store)

func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.cost = cost
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// Connect establishes a pool against dsn and makes sure the schema exists.
func Connect(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse database url")
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "ping database")
	}

	s := New(pool, options...)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the pool.
func New(pool *pgxpool.Pool, options ...Option) *Store {
	s := &Store{pool: pool, nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return pkgerrors.Wrap(err, "create schema")
	}
	return nil
}

// Close drains the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	user, err := s.queryOne(ctx, selectPrincipal+`WHERE email = $1`, users.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, users.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) Validate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.queryOne(ctx, selectPrincipal+`WHERE email = $1`, users.NormalizeEmail(email))
	if errors.Is(err, users.ErrUserNotFound) {
		users.CompareUnknownPrincipal(password, s.cost)
		return nil, users.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		return nil, users.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, users.ErrUserInactive
	}
	return user, nil
}

func (s *Store) Create(ctx context.Context, user *users.User, password string) (*users.User, error) {
	prepared, err := users.PrepareNew(user, password, s.cost, s.nowFunc())
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *Store) Import(ctx context.Context, user *users.User) error {
	prepared, err := users.PrepareImport(user, s.nowFunc())
	if err != nil {
		return err
	}
	return s.insert(ctx, prepared)
}

func (s *Store) insert(ctx context.Context, u *users.User) error {
	const query = `
INSERT INTO principals (id, email, display_name, role, tenant_id, phone, active, password_hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := s.pool.Exec(ctx, query,
		u.ID,
		u.Email,
		u.DisplayName,
		string(u.Role),
		u.TenantID,
		u.Phone,
		u.Active,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return users.ErrDuplicateEmail
		}
		return pkgerrors.Wrap(err, "insert principal")
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.queryOne(ctx, selectPrincipal+`WHERE id = $1`, id)
}

func (s *Store) Delete(ctx context.Context, email string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM principals WHERE email = $1`, users.NormalizeEmail(email))
	if err != nil {
		return pkgerrors.Wrap(err, "delete principal")
	}
	if ct.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, email string, active bool) error {
	ct, err := s.pool.Exec(ctx, `UPDATE principals SET active = $2 WHERE email = $1`, users.NormalizeEmail(email), active)
	if err != nil {
		return pkgerrors.Wrap(err, "update principal")
	}
	if ct.RowsAffected() == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, tenantID string, offset, limit int) ([]*users.User, error) {
	query := selectPrincipal + `WHERE ($1 = '' OR tenant_id = $1) ORDER BY email OFFSET $2`
	args := []any{tenantID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list principals")
	}
	defer rows.Close()

	list := []*users.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*users.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "get principal")
	}
	return user, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var (
		u    users.User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&role,
		&u.TenantID,
		&u.Phone,
		&u.Active,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = users.RoleType(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
