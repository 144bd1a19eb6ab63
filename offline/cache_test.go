package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/guelfi/BarbeariaSaaS/offline"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/guelfi/BarbeariaSaaS/users"
	fakeuserrepo "github.com/guelfi/BarbeariaSaaS/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "cliente@email.com"
	testPassword = "Cliente123!"
)

type testFixture struct {
	store *storage.MemoryStore
	keys  storage.Keys
	cache *offline.Cache
	users *fakeuserrepo.FakeUserRepo
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		store: storage.NewMemoryStore(),
		keys:  storage.NewKeys("mobile"),
		users: fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcrypt.MinCost)),
		now:   time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC),
	}
	f.cache = offline.NewCache(f.store, f.keys, offline.WithNowFunc(func() time.Time { return f.now }))
	return f
}

func (f *testFixture) rememberClient(t *testing.T) *users.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), &users.User{
		Email: testEmail, DisplayName: "Pedro Costa", Role: users.RoleClient, TenantID: "tenant-001", Active: true,
	}, testPassword)
	require.NoError(t, err)
	require.NoError(t, f.cache.Remember(context.Background(), u, u.PasswordHash))
	return u
}

type failingReplayer struct {
	failOn int
	calls  []offline.QueueEntry
}

func (r *failingReplayer) Replay(_ context.Context, entry offline.QueueEntry) error {
	r.calls = append(r.calls, entry)
	if len(r.calls) == r.failOn {
		return errors.New("credential store unreachable")
	}
	return nil
}

func TestOfflineFlagIsPersisted(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	offlineMode, err := f.cache.IsOfflineMode(ctx)
	require.NoError(t, err)
	require.False(t, offlineMode)

	require.NoError(t, f.cache.EnableOfflineMode(ctx))
	v, ok, err := f.store.Get(ctx, "mobile_offline")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", v)

	restarted := offline.NewCache(f.store, f.keys)
	offlineMode, err = restarted.IsOfflineMode(ctx)
	require.NoError(t, err)
	require.True(t, offlineMode)

	require.NoError(t, restarted.SetOnline(ctx, true))
	offlineMode, err = f.cache.IsOfflineMode(ctx)
	require.NoError(t, err)
	require.False(t, offlineMode)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.rememberClient(t)

	u, err := f.cache.Lookup(ctx, " CLIENTE@email.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, testEmail, u.Email)
	require.Empty(t, u.PasswordHash)

	_, err = f.cache.Lookup(ctx, testEmail, "wrong")
	require.ErrorIs(t, err, offline.ErrInvalidCredentials)

	_, err = f.cache.Lookup(ctx, "ghost@email.com", testPassword)
	require.ErrorIs(t, err, offline.ErrNoSnapshot)
}

func TestSnapshotNeverStoresPlaintext(t *testing.T) {
	f := setupTestFixture(t)
	f.rememberClient(t)

	raw, ok, err := f.store.Get(context.Background(), f.keys.OfflineUsers)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, raw, testPassword)
}

func TestSyncDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.rememberClient(t)

	_, err := f.cache.Enqueue(ctx, offline.LoginAction{Email: testEmail})
	require.NoError(t, err)
	hash, err := users.HashPassword("Novo1234", bcrypt.MinCost)
	require.NoError(t, err)
	_, err = f.cache.Enqueue(ctx, offline.RegisterAction{
		User:         users.User{ID: "offline-1", Email: "novo@email.com", Role: users.RoleClient, TenantID: u.TenantID, Active: true},
		PasswordHash: hash,
	})
	require.NoError(t, err)

	pending, err := f.cache.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, offline.ActionLogin, pending[0].Action.Kind())
	require.True(t, f.now.Equal(pending[0].Timestamp))

	replayed, err := f.cache.SyncWhenOnline(ctx, &offline.StoreReplayer{Store: f.users})
	require.NoError(t, err)
	require.Equal(t, 2, replayed)

	pending, err = f.cache.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	registered, err := f.users.Validate(ctx, "novo@email.com", "Novo1234")
	require.NoError(t, err)
	require.Equal(t, "offline-1", registered.ID)
}

func TestSyncKeepsEntriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	for _, email := range []string{"a@email.com", "b@email.com", "c@email.com"} {
		_, err := f.cache.Enqueue(ctx, offline.LoginAction{Email: email})
		require.NoError(t, err)
	}

	replayer := &failingReplayer{failOn: 2}
	replayed, err := f.cache.SyncWhenOnline(ctx, replayer)
	require.Error(t, err)
	require.Equal(t, 1, replayed)

	pending, err := f.cache.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2, "the failed entry and everything after it stay queued")
	require.Equal(t, offline.LoginAction{Email: "b@email.com"}, pending[0].Action)

	replayer.failOn = 0
	replayed, err = f.cache.SyncWhenOnline(ctx, replayer)
	require.NoError(t, err)
	require.Equal(t, 2, replayed)
}

func TestStoreReplayer(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.rememberClient(t)
	replayer := &offline.StoreReplayer{Store: f.users}

	require.NoError(t, replayer.Replay(ctx, offline.QueueEntry{Action: offline.LoginAction{Email: testEmail}}))

	require.NoError(t, f.users.SetActive(ctx, testEmail, false))
	err := replayer.Replay(ctx, offline.QueueEntry{Action: offline.LoginAction{Email: testEmail}})
	require.ErrorIs(t, err, users.ErrUserNotFound)
	require.NoError(t, f.users.SetActive(ctx, testEmail, true))

	hash, err := users.HashPassword("Outro1234", bcrypt.MinCost)
	require.NoError(t, err)
	err = replayer.Replay(ctx, offline.QueueEntry{Action: offline.RegisterAction{
		User:         users.User{ID: "someone-else", Email: testEmail, Role: users.RoleClient, TenantID: u.TenantID, Active: true},
		PasswordHash: hash,
	}})
	require.ErrorIs(t, err, users.ErrDuplicateEmail)

	err = replayer.Replay(ctx, offline.QueueEntry{Action: offline.RegisterAction{User: *u, PasswordHash: u.PasswordHash}})
	require.NoError(t, err, "an entry already applied replays as a no-op")
}

func TestQueueEntryJSON(t *testing.T) {
	entry := offline.QueueEntry{
		ID:        "e1",
		Action:    offline.RegisterAction{User: users.User{Email: "x@email.com", Role: users.RoleClient}, PasswordHash: "$2a$hash"},
		Timestamp: time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"kind":"register"`)

	var decoded offline.QueueEntry
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, entry.ID, decoded.ID)
	action, ok := decoded.Action.(offline.RegisterAction)
	require.True(t, ok)
	require.Equal(t, "$2a$hash", action.PasswordHash)

	require.Error(t, json.Unmarshal([]byte(`{"id":"x","kind":"teleport","payload":{}}`), &decoded))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	f.rememberClient(t)
	require.NoError(t, f.cache.EnableOfflineMode(ctx))
	_, err := f.cache.Enqueue(ctx, offline.LoginAction{Email: testEmail})
	require.NoError(t, err)

	require.NoError(t, f.cache.Clear(ctx))
	require.Empty(t, f.store.Snapshot())
}
