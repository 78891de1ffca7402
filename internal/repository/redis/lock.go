package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/clinic-settings/internal/repository"
)

const (
	lockPrefix = "clinic-settings:session-lock:"

	defaultLockTTL   = 2 * time.Minute
	defaultLockRetry = 50 * time.Millisecond
)

var _ repository.SessionLocker = (*SessionRepository)(nil)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a per-session lock with SET NX so that saves of one session
// never overlap across API instances. The lock expires after the lock TTL if
// the holder dies.
func (r *SessionRepository) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	k := lockKey(id)
	token := uuid.NewString()

	ticker := time.NewTicker(r.lockRetry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to lock session: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: session %s: %v", repository.ErrLocked, id, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{k}, token).Err()
	}, nil
}

func lockKey(id uuid.UUID) string {
	return lockPrefix + id.String()
}
