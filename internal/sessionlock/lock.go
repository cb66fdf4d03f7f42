// Package sessionlock serializes mutations per session across
// instances. The lock is advisory: optimistic versioning on the
// session row is the correctness guarantee, the lock keeps concurrent
// writers from burning their retry budget against each other. A nil
// Locker (no redis configured) disables it entirely.
package sessionlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	lockTTL       = 10 * time.Second
	acquireEvery  = 25 * time.Millisecond
	acquireBudget = 2 * time.Second
)

type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// Acquire blocks until the session lock is held or the acquire budget
// runs out, then returns a release func. On a nil Locker both are
// no-ops.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}

	key := "playden:session:" + sessionID
	token := uuid.NewString()

	deadline := time.Now().Add(acquireBudget)
	for {
		ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.New("session lock acquire timeout")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireEvery):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.script.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
