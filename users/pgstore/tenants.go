package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/jackc/pgx/v5"
	pkgerrors "github.com/pkg/errors"
)

const selectTenant = `
SELECT id, name, address, phone, created_at
FROM tenants
`

var _ tenants.Repo = (*TenantStore)(nil)

// TenantStore keeps barbershops in the same database as the principals.
type TenantStore struct {
	store *Store
}

// Tenants returns the barbershop repository sharing this store's pool.
func (s *Store) Tenants() *TenantStore {
	return &TenantStore{store: s}
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
		tenantData.CreatedAt = ts.store.nowFunc().UTC()
	}

	const query = `
INSERT INTO tenants (id, name, address, phone, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone
`
	if _, err := ts.store.pool.Exec(ctx, query,
		tenantData.ID,
		tenantData.Name,
		tenantData.Address,
		tenantData.Phone,
		tenantData.CreatedAt,
	); err != nil {
		return pkgerrors.Wrap(err, "upsert tenant")
	}
	return nil
}

func (ts *TenantStore) Delete(ctx context.Context, tenantID string) error {
	ct, err := ts.store.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return pkgerrors.Wrap(err, "delete tenant")
	}
	if ct.RowsAffected() == 0 {
		return tenants.ErrTenantNotFound
	}
	return nil
}

func (ts *TenantStore) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	t, err := scanTenant(ts.store.pool.QueryRow(ctx, selectTenant+`WHERE id = $1`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenants.ErrTenantNotFound
		}
		return nil, pkgerrors.Wrap(err, "get tenant")
	}
	return t, nil
}

func (ts *TenantStore) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	query := selectTenant + `ORDER BY name OFFSET $1`
	args := []any{offset}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := ts.store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list tenants")
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func scanTenant(row pgx.Row) (*tenants.Tenant, error) {
	var t tenants.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Address, &t.Phone, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
