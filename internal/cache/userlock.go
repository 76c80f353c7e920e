package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/skorpland/powermemo/internal/perr"
)

// UserLock is named mutual exclusion around a (project, scope, user) triple,
// backed by a Redis SET NX lock (spec §4.8). Used by Buffer and any other
// externally serializable per-user operation.
type UserLock struct {
	client   *Client
	ttl      time.Duration
	waitMax  time.Duration
	pollEvery time.Duration
}

func NewUserLock(client *Client, ttl, waitMax time.Duration) *UserLock {
	return &UserLock{client: client, ttl: ttl, waitMax: waitMax, pollEvery: 100 * time.Millisecond}
}

func lockKey(projectID, scope, userID string) string {
	return fmt.Sprintf("user_lock:%s:%s:%s", projectID, scope, userID)
}

// Acquire blocks (polling) until the lock is obtained or waitMax elapses,
// returning perr.Timeout on the latter. The returned release func is
// best-effort: failures are logged, never returned, so they never mask the
// caller's own error (spec §4.8: "a failed release is logged but does not
// mask the function's error").
func (l *UserLock) Acquire(ctx context.Context, projectID, scope, userID string) (release func(), err error) {
	if l == nil || l.client == nil || l.client.rdb == nil {
		return func() {}, nil
	}
	key := lockKey(projectID, scope, userID)
	token := uuid.NewString()

	deadline := time.Now().Add(l.waitMax)
	for {
		ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, perr.Timeout("could not acquire lock for scope %q user %q within %s", scope, userID, l.waitMax)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollEvery):
		}
	}

	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.releaseIfOwned(releaseCtx, key, token); err != nil {
			log.Warn().Err(err).Str("scope", scope).Str("user_id", userID).Msg("user_lock_release_failed")
		}
	}
	return release, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

func (l *UserLock) releaseIfOwned(ctx context.Context, key, token string) error {
	res, err := releaseScript.Run(ctx, l.client.rdb, []string{key}, token).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		return errors.New("lock no longer owned or already expired")
	}
	return nil
}
