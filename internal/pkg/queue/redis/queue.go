package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zapline/zapline/internal/pkg/queue"
)

// RedisQueue guarda jobs de reenvio em uma lista. LPUSH na entrada, BRPOP
// na saída; os jobs sobrevivem a restart do processo.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job queue.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("fila %s: marshal: %w", q.key, err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("fila %s: push: %w", q.key, err)
	}
	return nil
}

// Dequeue bloqueia até timeout. Timeout vencido devolve (nil, nil).
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("fila %s: pop: %w", q.key, err)
	case len(res) != 2:
		return nil, fmt.Errorf("fila %s: BRPOP devolveu %d elementos", q.key, len(res))
	}

	var job queue.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("fila %s: unmarshal: %w", q.key, err)
	}
	return &job, nil
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Close é no-op: a conexão redis pertence ao processo.
func (q *RedisQueue) Close() error { return nil }
