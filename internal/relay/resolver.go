package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

// Resolver materializa contato e conversa para uma mensagem que chega.
// Conversa fechada nunca é reaproveitada, a próxima mensagem abre outra.
type Resolver struct {
	contacts      storage.ContactRepository
	conversations storage.ConversationRepository
}

func NewResolver(contacts storage.ContactRepository, conversations storage.ConversationRepository) *Resolver {
	return &Resolver{contacts: contacts, conversations: conversations}
}

func (r *Resolver) ResolveInbound(ctx context.Context, tenantID, instanceID, phone, pushName string) (model.Contact, model.Conversation, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return model.Contact{}, model.Conversation{}, fmt.Errorf("relay: telefone inválido: %q", phone)
	}

	contact, err := r.contacts.GetOrCreate(ctx, model.Contact{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Phone:    normalized,
		Name:     pushName,
	})
	if err != nil {
		return model.Contact{}, model.Conversation{}, fmt.Errorf("relay: resolver contato: %w", err)
	}

	conv, err := r.conversations.GetOpen(ctx, tenantID, instanceID, contact.ID)
	if err == nil {
		return contact, conv, nil
	}
	if err != storage.ErrNotFound {
		return model.Contact{}, model.Conversation{}, fmt.Errorf("relay: buscar conversa: %w", err)
	}

	now := time.Now().UTC()
	conv, err = r.conversations.Create(ctx, model.Conversation{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		InstanceID:     instanceID,
		ContactID:      contact.ID,
		Status:         model.ConversationOpen,
		LastActivityAt: now,
	})
	if err != nil {
		// Corrida com outro webhook: relemos a conversa vencedora.
		if err == storage.ErrDuplicate {
			conv, err = r.conversations.GetOpen(ctx, tenantID, instanceID, contact.ID)
			if err == nil {
				return contact, conv, nil
			}
		}
		return model.Contact{}, model.Conversation{}, fmt.Errorf("relay: criar conversa: %w", err)
	}
	return contact, conv, nil
}

func (r *Resolver) ResolveByCrmChat(ctx context.Context, tenantID, crmChatID string) (model.Conversation, error) {
	conv, err := r.conversations.GetByCrmChat(ctx, tenantID, crmChatID)
	if err != nil {
		if err == storage.ErrNotFound {
			return model.Conversation{}, ErrNoConversation
		}
		return model.Conversation{}, err
	}
	return conv, nil
}

// NormalizePhone reduz o número a dígitos (forma E.164 sem o sinal de mais).
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return ""
	}
	return digits
}
