package locking

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

const acquireRetryInterval = 25 * time.Millisecond

type redisManager struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisManager returns a lock manager backed by redis SETNX with a fenced
// release, for deployments where several instances contend on the same keys.
func NewRedisManager(client *redis.Client) Manager {
	return &redisManager{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (m *redisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	for {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				_ = m.script.Run(context.WithoutCancel(ctx), m.client, []string{key}, token).Err()
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}
