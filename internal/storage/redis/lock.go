package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Só apaga a chave se o token ainda for o nosso.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Lock é um mutex distribuído via SET NX com TTL.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	token  string
}

func NewLock(client *Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire tenta tomar o lock. Retorna false sem erro quando outro processo
// já o detém.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.token = uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.key, err)
	}
	return ok, nil
}

func (l *Lock) Release(ctx context.Context) error {
	_, err := l.client.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("lock %s: release: %w", l.key, err)
	}
	return nil
}
