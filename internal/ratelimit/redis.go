package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The first INCR in a window sets the expiry, so the key disappears when the
// window elapses and the next request opens a new one.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

// RedisWindow is the fixed-window limiter shared by every API replica.
type RedisWindow struct {
	client *redis.Client
	script *redis.Script
	size   time.Duration
	max    int
	prefix string
}

func NewRedisWindow(client *redis.Client, size time.Duration, max int) *RedisWindow {
	return &RedisWindow{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		size:   size,
		max:    max,
		prefix: "throttle:generate:",
	}
}

var _ Limiter = (*RedisWindow)(nil)

func (r *RedisWindow) Allow(ctx context.Context, userID string) (bool, error) {
	if r == nil || r.client == nil {
		return false, errors.New("rate limiter not configured")
	}
	if userID == "" {
		return false, errors.New("rate limiter key is empty")
	}
	count, err := r.script.Run(ctx, r.client, []string{r.prefix + userID}, r.size.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(r.max), nil
}
