package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/offline"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/guelfi/BarbeariaSaaS/users"
)

// RegisterClient signs up a client of an existing barbershop and logs them in.
// While offline the principal is created locally, queued for replay and
// remembered so the same credentials keep working until the sync.
func (m *SessionManager) RegisterClient(ctx context.Context, reg ClientRegistration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg.Normalize()
	if err := reg.Validate(); err != nil {
		return Result{}, newAuthError(KindValidationError, err)
	}
	if err := m.waitLatency(ctx); err != nil {
		return Result{}, unexpected(m.logger, "register", err)
	}

	user := &users.User{
		Email:       reg.Email,
		DisplayName: reg.Name,
		Role:        users.RoleClient,
		TenantID:    reg.TenantID,
		Phone:       reg.Phone,
		Active:      true,
	}
	if err := m.authenticator.CheckAudience(user, m.profile.Audience); err != nil {
		return Result{}, err
	}

	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return Result{}, unexpected(m.logger, "register", err)
	}
	if offlineMode {
		return m.registerOffline(ctx, user, reg.Password)
	}

	if err := m.requireTenant(ctx, reg.TenantID); err != nil {
		return Result{}, err
	}
	created, err := m.deps.Credentials.Create(ctx, user, reg.Password)
	if err != nil {
		return Result{}, m.authenticator.storeError("register client", err)
	}
	session, err := m.establish(ctx, created, false)
	if err != nil {
		return Result{}, err
	}
	m.logger.Info().Str("user", created.ID).Str("tenant", created.TenantID).Msg("client registered")
	return Result{Session: session, Message: msgRegistered}, nil
}

// registerOffline must be called with mu held
func (m *SessionManager) registerOffline(ctx context.Context, user *users.User, password string) (Result, error) {
	_, err := m.offline.Lookup(ctx, user.Email, password)
	switch {
	case err == nil, errors.Is(err, offline.ErrInvalidCredentials):
		return Result{}, newAuthError(KindDuplicateEmail, users.ErrDuplicateEmail)
	case !errors.Is(err, offline.ErrNoSnapshot):
		return Result{}, unexpected(m.logger, "offline register", err)
	}

	prepared, err := users.PrepareNew(user, password, m.bcryptCost, m.nowFunc())
	if err != nil {
		return Result{}, m.authenticator.storeError("offline register", err)
	}
	public := prepared.Clone()
	public.PasswordHash = ""
	if _, err := m.offline.Enqueue(ctx, offline.RegisterAction{User: *public, PasswordHash: prepared.PasswordHash}); err != nil {
		return Result{}, unexpected(m.logger, "offline register", err)
	}
	if err := m.offline.Remember(ctx, public, prepared.PasswordHash); err != nil {
		return Result{}, unexpected(m.logger, "offline register", err)
	}

	session, err := m.establish(ctx, prepared, true)
	if err != nil {
		return Result{}, err
	}
	m.logger.Info().Str("user", prepared.ID).Msg("client registration queued")
	return Result{Session: session, Message: msgOfflineRegister, Offline: true}, nil
}

// RegisterBarbershop creates a tenant and its owning barber, then logs the
// barber in. It needs the live stores, so it fails with KindNetworkError while
// offline. The tenant is removed again if the owner cannot be created.
func (m *SessionManager) RegisterBarbershop(ctx context.Context, reg BarbershopRegistration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deps.Tenants == nil {
		return Result{}, newAuthError(KindUnknownError, errors.New("tenant repository not configured"))
	}
	reg.Normalize()
	if err := reg.Validate(); err != nil {
		return Result{}, newAuthError(KindValidationError, err)
	}
	if !m.deps.Gate.IsAllowed(users.RoleBarber, m.profile.Audience) {
		return Result{}, newAuthError(KindUnauthorizedAudience, errors.New("barbers cannot sign in to "+string(m.profile.Audience)))
	}
	if err := m.waitLatency(ctx); err != nil {
		return Result{}, unexpected(m.logger, "register barbershop", err)
	}

	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return Result{}, unexpected(m.logger, "register barbershop", err)
	}
	if offlineMode {
		return Result{}, newAuthError(KindNetworkError, errors.New("barbershop registration needs connectivity"))
	}

	if _, err := m.deps.Credentials.FindByEmail(ctx, reg.Email); err == nil {
		return Result{}, newAuthError(KindDuplicateEmail, users.ErrDuplicateEmail)
	} else if !errors.Is(err, users.ErrUserNotFound) {
		return Result{}, m.authenticator.storeError("register barbershop", err)
	}

	shop := &tenants.Tenant{Name: reg.ShopName, Address: reg.Address, Phone: reg.Phone}
	if err := m.deps.Tenants.Upsert(ctx, shop); err != nil {
		if errors.Is(err, tenants.ErrInvalidTenant) {
			return Result{}, newAuthError(KindValidationError, err)
		}
		return Result{}, unexpected(m.logger, "create tenant", err)
	}

	owner, err := m.deps.Credentials.Create(ctx, &users.User{
		Email:       reg.Email,
		DisplayName: reg.OwnerName,
		Role:        users.RoleBarber,
		TenantID:    shop.ID,
		Phone:       reg.Phone,
		Active:      true,
	}, reg.Password)
	if err != nil {
		if delErr := m.deps.Tenants.Delete(ctx, shop.ID); delErr != nil {
			m.logger.Error().Err(delErr).Str("tenant", shop.ID).Msg("failed to roll back tenant")
		}
		return Result{}, m.authenticator.storeError("register barbershop", err)
	}

	session, err := m.establish(ctx, owner, false)
	if err != nil {
		return Result{}, err
	}
	m.logger.Info().Str("user", owner.ID).Str("tenant", shop.ID).Msg("barbershop registered")
	return Result{Session: session, Message: msgRegistered}, nil
}

// requireTenant checks the tenant exists when a tenant repository is configured
func (m *SessionManager) requireTenant(ctx context.Context, tenantID string) error {
	if m.deps.Tenants == nil {
		return nil
	}
	_, err := m.deps.Tenants.Get(ctx, tenantID)
	switch {
	case errors.Is(err, tenants.ErrTenantNotFound):
		return newAuthError(KindValidationError, err)
	case err != nil:
		return unexpected(m.logger, "lookup tenant", err)
	}
	return nil
}
