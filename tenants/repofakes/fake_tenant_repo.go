package tenantrepofakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	lock    sync.RWMutex
	nowFunc func() time.Time
}

func NewFakeTenantRepo(seed ...*tenants.Tenant) *FakeTenantRepo {
	tr := &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
		nowFunc: time.Now,
	}
	for _, t := range seed {
		_ = tr.Upsert(context.Background(), t)
	}
	return tr
}

func (tr *FakeTenantRepo) Upsert(_ context.Context, tenantData *tenants.Tenant) error {
	tenantData.Normalize()
	if err := tenantData.Validate(); err != nil {
		return fmt.Errorf("%w: %v", tenants.ErrInvalidTenant, err)
	}

	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if tenantData.CreatedAt.IsZero() {
		tenantData.CreatedAt = tr.nowFunc().UTC()
	}
	stored := *tenantData
	tr.tenants[tenantData.ID] = &stored
	return nil
}

func (tr *FakeTenantRepo) Delete(_ context.Context, tenantID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if _, ok := tr.tenants[tenantID]; !ok {
		return tenants.ErrTenantNotFound
	}
	delete(tr.tenants, tenantID)
	return nil
}

func (tr *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, tenants.ErrTenantNotFound
	}
	found := *t
	return &found, nil
}

func (tr *FakeTenantRepo) List(_ context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	list := make([]*tenants.Tenant, 0, len(tr.tenants))
	for _, t := range tr.tenants {
		c := *t
		list = append(list, &c)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	if offset >= len(list) {
		return []*tenants.Tenant{}, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}
