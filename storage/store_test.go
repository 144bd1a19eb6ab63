package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewKeys(t *testing.T) {
	for _, prefix := range []string{"mobile", "mobile_", " mobile_ "} {
		keys := storage.NewKeys(prefix)
		require.Equal(t, "mobile_token", keys.Token)
		require.Equal(t, "mobile_refresh_token", keys.RefreshToken)
		require.Equal(t, "mobile_user", keys.User)
		require.Equal(t, "mobile_token_expiry", keys.TokenExpiry)
		require.Equal(t, "mobile_offline", keys.Offline)
		require.Equal(t, "mobile_offline_users", keys.OfflineUsers)
		require.Equal(t, "mobile_offline_queue", keys.OfflineQueue)
	}
	require.Len(t, storage.NewKeys("admin").Session(), 4)
	require.Len(t, storage.NewKeys("admin").All(), 7)

	signOut := storage.NewKeys("admin").SignOut()
	require.Len(t, signOut, 5)
	require.Contains(t, signOut, "admin_offline_queue")
	require.NotContains(t, signOut, "admin_offline_users")
	require.NotContains(t, signOut, "admin_offline")
}

func newStores(t *testing.T) map[string]storage.Store {
	t.Helper()
	fileStore, err := storage.NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]storage.Store{
		"memory": storage.NewMemoryStore(),
		"file":   fileStore,
		"redis":  storage.NewRedisStore(client, "barbearia"),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "admin_token")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.SetMany(ctx, map[string]string{
				"admin_token":        "abc",
				"admin_user":         `{"email":"admin@example.com"}`,
				"admin_token_expiry": "2026-03-10T10:00:00Z",
			}))
			v, ok, err := store.Get(ctx, "admin_user")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, `{"email":"admin@example.com"}`, v)

			require.NoError(t, store.SetMany(ctx, map[string]string{"admin_token": "def"}))
			v, _, err = store.Get(ctx, "admin_token")
			require.NoError(t, err)
			require.Equal(t, "def", v)

			require.NoError(t, store.RemoveMany(ctx, "admin_token", "admin_user", "never_set"))
			_, ok, err = store.Get(ctx, "admin_token")
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = store.Get(ctx, "admin_token_expiry")
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, store.RemoveMany(ctx))
			require.NoError(t, store.SetMany(ctx, nil))
		})
	}
}

func TestStoreConcurrentBatches(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if i%2 == 0 {
						_ = store.SetMany(ctx, map[string]string{"a": "1", "b": "1"})
					} else {
						_ = store.RemoveMany(ctx, "a", "b")
					}
				}(i)
			}
			wg.Wait()

			_, okA, err := store.Get(ctx, "a")
			require.NoError(t, err)
			_, okB, err := store.Get(ctx, "b")
			require.NoError(t, err)
			require.Equal(t, okA, okB, "a batch must never be observed half applied")
		})
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	first, err := storage.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.SetMany(ctx, map[string]string{"mobile_token": "t"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := storage.NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "mobile_token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "t", v)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := storage.NewFileStore(path)
	require.NoError(t, err)
	_, _, err = store.Get(context.Background(), "x")
	require.Error(t, err)
}

func TestRedisStoreNamespace(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewRedisStore(client, "tenant-001")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.SetMany(context.Background(), map[string]string{"desktop_token": "x"}))
	got, err := mr.Get("tenant-001:desktop_token")
	require.NoError(t, err)
	require.Equal(t, "x", got)
}

func TestDialRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	store, err := storage.DialRedisStore(context.Background(), addr, "", 0, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	mr.Close()
	_, err = storage.DialRedisStore(context.Background(), addr, "", 0, "")
	require.Error(t, err)
}
