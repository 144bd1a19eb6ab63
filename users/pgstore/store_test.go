package pgstore

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(fmt.Errorf("boom")))
	require.False(t, isUniqueViolation(nil))
}

// TestStoreAgainstDatabase runs only when TEST_DATABASE_URL points at a disposable database.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	email := uuid.NewString() + "@barbearia.com"
	t.Cleanup(func() { _ = store.Delete(ctx, email) })

	created, err := store.Create(ctx, &users.User{Email: email, Role: users.RoleReceptionist, TenantID: "tenant-001", Active: true}, "Recep1234")
	require.NoError(t, err)

	_, err = store.Create(ctx, &users.User{Email: email, Role: users.RoleReceptionist, TenantID: "tenant-001", Active: true}, "Recep1234")
	require.ErrorIs(t, err, users.ErrDuplicateEmail)

	got, err := store.Validate(ctx, email, "Recep1234")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = store.Validate(ctx, email, "wrong")
	require.ErrorIs(t, err, users.ErrInvalidCredentials)

	require.NoError(t, store.SetActive(ctx, email, false))
	_, err = store.Validate(ctx, email, "Recep1234")
	require.ErrorIs(t, err, users.ErrUserInactive)
}

func TestTenantStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	repo := store.Tenants()

	shop := &tenants.Tenant{Name: "Barbearia " + uuid.NewString()[:8]}
	require.NoError(t, repo.Upsert(ctx, shop))
	t.Cleanup(func() { _ = repo.Delete(ctx, shop.ID) })

	got, err := repo.Get(ctx, shop.ID)
	require.NoError(t, err)
	require.Equal(t, shop.Name, got.Name)

	require.NoError(t, repo.Delete(ctx, shop.ID))
	_, err = repo.Get(ctx, shop.ID)
	require.ErrorIs(t, err, tenants.ErrTenantNotFound)
}
