package storage

import (
	"context"
	"errors"
	"time"

	"github.com/zapline/zapline/internal/storage/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate é devolvido quando a chave de idempotência (id externo da
	// mensagem) já existe. A detecção acontece no insert, não antes dele.
	ErrDuplicate = errors.New("duplicate external id")
)

type CredentialRepository interface {
	Create(ctx context.Context, cred model.Credential) (model.Credential, error)
	GetActiveByTenant(ctx context.Context, tenantID string) (model.Credential, error)
	GetByID(ctx context.Context, id string) (model.Credential, error)
	Update(ctx context.Context, cred model.Credential) (model.Credential, error)
	Deactivate(ctx context.Context, id string, revokedAt time.Time) error
}

type InstanceRepository interface {
	Create(ctx context.Context, instance model.Instance) (model.Instance, error)
	GetByID(ctx context.Context, id string) (model.Instance, error)
	GetByLabel(ctx context.Context, label string) (model.Instance, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Instance, error)
	List(ctx context.Context) ([]model.Instance, error)
	Update(ctx context.Context, instance model.Instance) (model.Instance, error)
	UpdateStatus(ctx context.Context, id string, status model.InstanceStatus, qr string) error
	Delete(ctx context.Context, id string) error
}

type BindingRepository interface {
	// Upsert grava o vínculo linha↔instância; um novo bind sobrescreve o anterior
	// dos dois lados (1:1).
	Upsert(ctx context.Context, binding model.Binding) (model.Binding, error)
	GetByLine(ctx context.Context, tenantID, lineID string) (model.Binding, error)
	GetByInstance(ctx context.Context, instanceID string) (model.Binding, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.Binding, error)
	Delete(ctx context.Context, id string) error
}

type ContactRepository interface {
	GetOrCreate(ctx context.Context, contact model.Contact) (model.Contact, error)
	GetByID(ctx context.Context, id string) (model.Contact, error)
	GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	GetByID(ctx context.Context, id string) (model.Conversation, error)
	GetOpen(ctx context.Context, tenantID, instanceID, contactID string) (model.Conversation, error)
	GetByCrmChat(ctx context.Context, tenantID, crmChatID string) (model.Conversation, error)
	Update(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	Close(ctx context.Context, id string) error
}

type MessageRepository interface {
	// Create insere respeitando a unicidade dos ids externos; colisão devolve
	// ErrDuplicate sem criar linha.
	Create(ctx context.Context, msg model.Message) (model.Message, error)
	GetByID(ctx context.Context, id string) (model.Message, error)
	GetByWaID(ctx context.Context, waMessageID string) (model.Message, error)
	GetByCrmID(ctx context.Context, crmMessageID string) (model.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus, failReason string) error
}

type WebhookLogRepository interface {
	Create(ctx context.Context, entry model.WebhookLog) (model.WebhookLog, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.WebhookLog, error)
}

type UserRepository interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}
