package tenants

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidTenant  = errors.New("invalid tenant")
)

type Repo interface {
	// Upsert stores the tenant, assigning an ID and CreatedAt when missing
	Upsert(ctx context.Context, tenantData *Tenant) error
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	List(ctx context.Context, offset, limit int) ([]*Tenant, error)
}
