package queue

import (
	"context"
	"time"
)

// Job representa um reenvio pendente: a mensagem já está persistida, só o
// encaminhamento para a outra plataforma falhou.
type Job struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	MessageID string    `json:"messageId"`
	Direction string    `json:"direction"` // "in" (WA→CRM) ou "out" (CRM→WA)
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Size(ctx context.Context) (int64, error)
	Close() error
}
