package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/guelfi/BarbeariaSaaS/users"
)

var _ Replayer = (*StoreReplayer)(nil)

// StoreReplayer replays queued actions against a live CredentialStore.
type StoreReplayer struct {
	Store users.CredentialStore
}

func (r *StoreReplayer) Replay(ctx context.Context, entry QueueEntry) error {
	switch a := entry.Action.(type) {
	case LoginAction:
		_, err := r.Store.FindByEmail(ctx, a.Email)
		return err
	case RegisterAction:
		u := a.User
		u.PasswordHash = a.PasswordHash
		err := r.Store.Import(ctx, &u)
		// a previous sync may have applied the entry before the queue was rewritten
		if errors.Is(err, users.ErrDuplicateEmail) {
			existing, findErr := r.Store.FindByEmail(ctx, u.Email)
			if findErr == nil && existing.ID == u.ID {
				return nil
			}
		}
		return err
	default:
		return fmt.Errorf("unsupported offline action %T", entry.Action)
	}
}
