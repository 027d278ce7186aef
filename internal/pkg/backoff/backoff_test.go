package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transitório")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("chamadas = %d", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	wantErr := errors.New("sempre falha")
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("esperado o último erro, veio %v", err)
	}
	if calls != 3 {
		t.Errorf("chamadas = %d, esperado 3", calls)
	}
}

func TestRetryPermanentShortCircuits(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	calls := 0
	inner := errors.New("rejeição estruturada")
	err := p.Retry(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(inner)
	})
	if calls != 1 {
		t.Errorf("erro permanente repetido: %d chamadas", calls)
	}
	if !errors.Is(err, inner) {
		t.Errorf("Permanent não preservou a cadeia de erro: %v", err)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Retry(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("falha")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("esperado context.Canceled, veio %v", err)
	}
	if calls > 2 {
		t.Errorf("retries continuaram após o cancelamento: %d", calls)
	}
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond}
	if d := p.Delay(1); d != 0 {
		t.Errorf("primeira tentativa deveria ser imediata, Delay = %v", d)
	}
	if d := p.Delay(2); d != 100*time.Millisecond {
		t.Errorf("Delay(2) = %v", d)
	}
	if d := p.Delay(3); d != 200*time.Millisecond {
		t.Errorf("Delay(3) = %v", d)
	}
	if d := p.Delay(4); d != 400*time.Millisecond {
		t.Errorf("Delay(4) = %v", d)
	}
}

func TestRetryableNilAndPlainErrors(t *testing.T) {
	if !Retryable(errors.New("qualquer")) {
		t.Error("erro comum deveria ser retryável")
	}
	if Retryable(Permanent(errors.New("fatal"))) {
		t.Error("erro permanente marcado como retryável")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) deveria ser nil")
	}
}
