package ratelimiter

import (
	"context"
	"time"
)

// Result descreve a decisão do limiter para uma chave. Remaining e Reset
// alimentam os cabeçalhos X-RateLimit-* da resposta.
type Result struct {
	Allowed    bool
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter conta requisições por chave em janelas fixas.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
