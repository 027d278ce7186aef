package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zapline/zapline/internal/pkg/ratelimiter"
)

type window struct {
	hits  int
	until time.Time
}

// MemoryLimiter implementa janela fixa em um mapa local. Com réplicas use a
// variante redis.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewLimiter() *MemoryLimiter {
	l := &MemoryLimiter{windows: make(map[string]*window)}
	go l.sweep()
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, size time.Duration) (*ratelimiter.Result, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.After(w.until) {
		w = &window{until: now.Add(size)}
		l.windows[key] = w
	}
	w.hits++

	remaining := limit - w.hits
	if remaining < 0 {
		remaining = 0
	}
	res := &ratelimiter.Result{
		Allowed:   w.hits <= limit,
		Remaining: remaining,
		Reset:     w.until,
	}
	if !res.Allowed {
		res.RetryAfter = time.Until(w.until)
	}
	return res, nil
}

// sweep descarta janelas vencidas.
func (l *MemoryLimiter) sweep() {
	for range time.Tick(time.Minute) {
		now := time.Now()
		l.mu.Lock()
		for k, w := range l.windows {
			if now.After(w.until) {
				delete(l.windows, k)
			}
		}
		l.mu.Unlock()
	}
}
