// Package offline keeps credential snapshots and a replay queue for use while
// the credential store is unreachable.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/rs/zerolog"
)

var (
	ErrNoSnapshot         = errors.New("no offline snapshot for this email")
	ErrInvalidCredentials = errors.New("password does not match offline snapshot")
)

// Snapshot is what the cache keeps about a principal after an online login.
type Snapshot struct {
	User         users.User `json:"user"`
	PasswordHash string     `json:"passwordHash"`
	CachedAt     time.Time  `json:"cachedAt"`
}

// Replayer applies a queued entry against the live credential store.
type Replayer interface {
	Replay(ctx context.Context, entry QueueEntry) error
}

// Cache persists snapshots, the queue and the offline flag under a key layout.
type Cache struct {
	store   storage.Store
	keys    storage.Keys
	nowFunc func() time.Time
	logger  zerolog.Logger

	// serializes read-modify-write cycles on the queue and snapshot documents
	mu sync.Mutex
}

type Option func(*Cache)

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func NewCache(store storage.Store, keys storage.Keys, options ...Option) *Cache {
	c := &Cache{
		store:   store,
		keys:    keys,
		nowFunc: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cache) EnableOfflineMode(ctx context.Context) error {
	return c.SetOnline(ctx, false)
}

// SetOnline records the connectivity state. The flag is persisted so a restart
// while offline still serves logins from the cache.
func (c *Cache) SetOnline(ctx context.Context, online bool) error {
	if online {
		return c.store.RemoveMany(ctx, c.keys.Offline)
	}
	return c.store.SetMany(ctx, map[string]string{c.keys.Offline: "true"})
}

func (c *Cache) IsOfflineMode(ctx context.Context) (bool, error) {
	v, ok, err := c.store.Get(ctx, c.keys.Offline)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

// Remember stores a snapshot of user keyed by normalized email.
func (c *Cache) Remember(ctx context.Context, user *users.User, passwordHash string) error {
	if user == nil || passwordHash == "" {
		return errors.New("offline: snapshot needs a user and a password hash")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshots, err := c.loadSnapshots(ctx)
	if err != nil {
		return err
	}
	u := *user
	u.Email = users.NormalizeEmail(u.Email)
	u.PasswordHash = ""
	snapshots[u.Email] = Snapshot{User: u, PasswordHash: passwordHash, CachedAt: c.nowFunc().UTC()}
	return c.saveJSON(ctx, c.keys.OfflineUsers, snapshots)
}

// Lookup checks password against the snapshot for email.
func (c *Cache) Lookup(ctx context.Context, email, password string) (*users.User, error) {
	c.mu.Lock()
	snapshots, err := c.loadSnapshots(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	snap, ok := snapshots[users.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNoSnapshot
	}
	if !users.CheckPasswordHash(password, snap.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	u := snap.User
	return &u, nil
}

// Enqueue appends action to the durable replay queue.
func (c *Cache) Enqueue(ctx context.Context, action Action) (QueueEntry, error) {
	if action == nil {
		return QueueEntry{}, errors.New("offline: nil action")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, err := c.loadQueue(ctx)
	if err != nil {
		return QueueEntry{}, err
	}
	entry := QueueEntry{ID: uuid.New().String(), Action: action, Timestamp: c.nowFunc().UTC()}
	queue = append(queue, entry)
	if err := c.saveJSON(ctx, c.keys.OfflineQueue, queue); err != nil {
		return QueueEntry{}, err
	}
	return entry, nil
}

func (c *Cache) Pending(ctx context.Context) ([]QueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadQueue(ctx)
}

// SyncWhenOnline replays the queue in order, persisting the shortened queue
// after every success. It stops at the first failure and leaves that entry and
// everything after it queued.
func (c *Cache) SyncWhenOnline(ctx context.Context, replayer Replayer) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	queue, err := c.loadQueue(ctx)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		entry := queue[0]
		if err := replayer.Replay(ctx, entry); err != nil {
			c.logger.Warn().Err(err).Str("entry", entry.ID).Str("kind", string(entry.Action.Kind())).
				Int("remaining", len(queue)).Msg("offline replay stopped")
			return replayed, fmt.Errorf("replay %s %s: %w", entry.Action.Kind(), entry.ID, err)
		}
		queue = queue[1:]
		if err := c.saveJSON(ctx, c.keys.OfflineQueue, queue); err != nil {
			return replayed, err
		}
		replayed++
	}
	if replayed > 0 {
		c.logger.Info().Int("replayed", replayed).Msg("offline queue drained")
	}
	return replayed, nil
}

// Clear drops snapshots, queue and flag.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.RemoveMany(ctx, c.keys.Offline, c.keys.OfflineUsers, c.keys.OfflineQueue)
}

// loadSnapshots must be called with the lock held
func (c *Cache) loadSnapshots(ctx context.Context) (map[string]Snapshot, error) {
	snapshots := map[string]Snapshot{}
	if err := c.loadJSON(ctx, c.keys.OfflineUsers, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// loadQueue must be called with the lock held
func (c *Cache) loadQueue(ctx context.Context) ([]QueueEntry, error) {
	queue := []QueueEntry{}
	if err := c.loadJSON(ctx, c.keys.OfflineQueue, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

func (c *Cache) loadJSON(ctx context.Context, key string, dst any) error {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("offline: decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) saveJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("offline: encode %s: %w", key, err)
	}
	return c.store.SetMany(ctx, map[string]string{key: string(raw)})
}
