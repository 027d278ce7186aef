package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zapline/zapline/internal/pkg/ratelimiter"
)

// INCR + PEXPIRE de forma atômica. O primeiro hit da janela arma o TTL;
// os demais só leem quanto falta para o reset.
var counterScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter aplica janela fixa compartilhada entre réplicas da API.
type RedisLimiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimiter.Result, error) {
	vals, err := counterScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("ratelimiter redis: %w", err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("ratelimiter redis: resposta inesperada do script (%d valores)", len(vals))
	}
	hits, ttlMs := vals[0], vals[1]

	left := window
	if ttlMs >= 0 {
		left = time.Duration(ttlMs) * time.Millisecond
	}

	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	res := &ratelimiter.Result{
		Allowed:   hits <= int64(limit),
		Remaining: remaining,
		Reset:     time.Now().Add(left),
	}
	if !res.Allowed {
		res.RetryAfter = left
	}
	return res, nil
}
