package backoff

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy aplica tentativas limitadas com backoff exponencial e jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxJitter:   250 * time.Millisecond,
	}
}

func New(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxJitter:   baseDelay / 2,
	}
}

// Delay devolve a espera antes da tentativa attempt (1-based). A primeira
// tentativa não espera.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return d
}

// Retry executa fn até MaxAttempts vezes, respeitando o contexto entre as
// tentativas. Devolve o último erro quando o orçamento se esgota.
func (p Policy) Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if wait := p.Delay(attempt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			if !Retryable(err) {
				return err
			}
			continue
		}
		return nil
	}
	return lastErr
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marca um erro como não-retryável.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func Retryable(err error) bool {
	var pe *permanentError
	return !errors.As(err, &pe)
}
