package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/offline"
)

var errOfflineUnsupported = errors.New("offline cache not enabled for this session manager")

func (m *SessionManager) OfflineEnabled() bool { return m.offline != nil }

// EnableOfflineMode routes subsequent logins to the offline cache.
func (m *SessionManager) EnableOfflineMode(ctx context.Context) error {
	return m.SetOnline(ctx, false)
}

// SetOnline records connectivity. Coming back online does not replay the queue
// by itself; call SyncWhenOnline or use WatchConnectivity.
func (m *SessionManager) SetOnline(ctx context.Context, online bool) error {
	if m.offline == nil {
		return newAuthError(KindUnknownError, errOfflineUnsupported)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.offline.SetOnline(ctx, online); err != nil {
		return unexpected(m.logger, "set online", err)
	}
	return nil
}

func (m *SessionManager) IsOfflineMode(ctx context.Context) (bool, error) {
	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return false, unexpected(m.logger, "offline mode", err)
	}
	return offlineMode, nil
}

// isOfflineLocked reads the persisted flag; the store does its own locking.
func (m *SessionManager) isOfflineLocked(ctx context.Context) (bool, error) {
	if m.offline == nil {
		return false, nil
	}
	return m.offline.IsOfflineMode(ctx)
}

// PendingActions lists the queued offline actions in replay order.
func (m *SessionManager) PendingActions(ctx context.Context) ([]offline.QueueEntry, error) {
	if m.offline == nil {
		return nil, nil
	}
	pending, err := m.offline.Pending(ctx)
	if err != nil {
		return nil, unexpected(m.logger, "pending actions", err)
	}
	return pending, nil
}

// SyncWhenOnline clears offline mode and replays the queue against the live
// credential store. It returns how many entries were replayed; entries after a
// failed one stay queued.
func (m *SessionManager) SyncWhenOnline(ctx context.Context) (int, error) {
	if m.offline == nil {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.offline.SetOnline(ctx, true); err != nil {
		return 0, unexpected(m.logger, "sync", err)
	}
	replayed, err := m.offline.SyncWhenOnline(ctx, &offline.StoreReplayer{Store: m.deps.Credentials})
	if err != nil {
		return replayed, m.authenticator.storeError("sync", err)
	}
	return replayed, nil
}

// WatchConnectivity follows signal (true = online) until ctx is done or signal
// is closed, toggling offline mode and syncing on every return to online.
func (m *SessionManager) WatchConnectivity(ctx context.Context, signal <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-signal:
			if !ok {
				return
			}
			if !online {
				if err := m.EnableOfflineMode(ctx); err != nil {
					m.logger.Error().Err(err).Msg("failed to enter offline mode")
				}
				continue
			}
			if replayed, err := m.SyncWhenOnline(ctx); err != nil {
				m.logger.Warn().Err(err).Int("replayed", replayed).Msg("offline sync incomplete")
			}
		}
	}
}
