package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zapline/zapline/internal/pkg/queue"
)

var (
	ErrClosed = errors.New("fila fechada")
	ErrFull   = errors.New("fila cheia")
)

// MemoryQueue guarda jobs de reenvio em um canal com buffer. Jobs pendentes
// se perdem em restart; a mensagem em si já está no banco com status de falha.
type MemoryQueue struct {
	jobs   chan queue.Job
	mu     sync.RWMutex
	closed bool
}

func NewQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQueue{jobs: make(chan queue.Job, capacity)}
}

// Enqueue nunca bloqueia: fila cheia devolve ErrFull na hora.
func (q *MemoryQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

// Dequeue espera até timeout por um job. Timeout vencido devolve (nil, nil).
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, ErrClosed
		}
		return &job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Size(context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
