package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/tenants"
)

const tenantColumns = `id, name, address, phone, created_at`

var _ tenants.Repo = (*TenantStore)(nil)

// TenantStore keeps barbershops in the same database file as the principals.
type TenantStore struct {
	sqlDB   *sql.DB
	nowFunc func() time.Time
}

// Tenants returns the barbershop repository sharing this store's connection.
func (s *Store) Tenants() *TenantStore {
	return &TenantStore{sqlDB: s.sqlDB, nowFunc: s.nowFunc}
}

func (ts *TenantStore) Upsert(ctx context.Context, tenantData *tenants.Tenant) error {
	tenantData.Normalize()
	if err := tenantData.Validate(); err != nil {
		return fmt.Errorf("%w: %v", tenants.ErrInvalidTenant, err)
	}
	if tenantData.ID == "" {
		tenantData.ID = uuid.NewString()
	}
	if tenantData.CreatedAt.IsZero() {
		tenantData.CreatedAt = ts.nowFunc().UTC()
	}

	_, err := ts.sqlDB.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address, phone = excluded.phone`,
		tenantData.ID, tenantData.Name, tenantData.Address, tenantData.Phone, tenantData.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

func (ts *TenantStore) Delete(ctx context.Context, tenantID string) error {
	res, err := ts.sqlDB.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tenants.ErrTenantNotFound
	}
	return nil
}

func (ts *TenantStore) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	t, err := scanTenant(ts.sqlDB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenants.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (ts *TenantStore) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := ts.sqlDB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	list := []*tenants.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTenant(row scanner) (*tenants.Tenant, error) {
	var (
		t         tenants.Tenant
		createdAt int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Address, &t.Phone, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &t, nil
}
