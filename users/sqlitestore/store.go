// Package sqlitestore implements users.CredentialStore over an embedded SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const principalColumns = `id, email, display_name, role, tenant_id, phone, active, password_hash, created_at`

var _ users.CredentialStore = (*Store)(nil)

// Store persists principals and password hashes in SQLite.
type Store struct {
	sqlDB   *sql.DB
	cost    int
	nowFunc func() time.Time
}

type Option func(*Store)

// WithBcryptCost sets the cost used when hashing passwords in Create
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

// Open opens the SQLite file at path and applies the bundled migrations.
func Open(path string, options ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{sqlDB: sqlDB, nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}

	if err := s.runMigrations(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	user, err := s.getBy(ctx, "email", users.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, users.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) Validate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.getBy(ctx, "email", users.NormalizeEmail(email))
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
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, string(u.Role), u.TenantID, u.Phone, boolToInt(u.Active), u.PasswordHash, u.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return users.ErrDuplicateEmail
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Store) Delete(ctx context.Context, email string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM principals WHERE email = ?`, users.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) SetActive(ctx context.Context, email string, active bool) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE principals SET active = ? WHERE email = ?`, boolToInt(active), users.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) List(ctx context.Context, tenantID string, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE (?1 = '' OR tenant_id = ?1) ORDER BY email LIMIT ?2 OFFSET ?3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
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
	return list, rows.Err()
}

func (s *Store) getBy(ctx context.Context, column, value string) (*users.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*users.User, error) {
	var (
		u         users.User
		role      string
		active    int
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.TenantID, &u.Phone, &active, &u.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	u.Role = users.RoleType(role)
	u.Active = active != 0
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return users.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
