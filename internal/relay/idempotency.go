package relay

import (
	"context"
	"errors"

	"github.com/zapline/zapline/internal/storage"
)

// Guard detecta redelivery pelos ids externos de mensagem. A garantia real
// contra corrida é a constraint única no insert.
type Guard struct {
	messages storage.MessageRepository
}

func NewGuard(messages storage.MessageRepository) *Guard {
	return &Guard{messages: messages}
}

// ShouldProcessWa informa se uma mensagem WA com este id ainda não foi vista.
// Id externo ausente desabilita o guard.
func (g *Guard) ShouldProcessWa(ctx context.Context, waMessageID string) (bool, error) {
	if waMessageID == "" {
		return true, nil
	}
	_, err := g.messages.GetByWaID(ctx, waMessageID)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func (g *Guard) ShouldProcessCrm(ctx context.Context, crmMessageID string) (bool, error) {
	if crmMessageID == "" {
		return true, nil
	}
	_, err := g.messages.GetByCrmID(ctx, crmMessageID)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	return false, err
}
