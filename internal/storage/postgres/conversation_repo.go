package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage/model"
)

type conversationRepo struct {
	db *DB
}

func NewConversationRepository(db *DB) *conversationRepo {
	return &conversationRepo{db: db}
}

const conversationColumns = `id, tenant_id, instance_id, contact_id, COALESCE(crm_chat_id, ''), COALESCE(assigned_agent, ''), status, last_activity_at, created_at`

// Create insere a conversa; o índice parcial garante no máximo uma conversa
// aberta por (tenant, instance, contact) e devolve ErrDuplicate na corrida.
func (r *conversationRepo) Create(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	if conv.LastActivityAt.IsZero() {
		conv.LastActivityAt = now
	}
	if conv.Status == "" {
		conv.Status = model.ConversationOpen
	}

	query := `
		INSERT INTO conversations (id, tenant_id, instance_id, contact_id, crm_chat_id, assigned_agent, status, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		conv.ID, conv.TenantID, conv.InstanceID, conv.ContactID,
		nullIfEmpty(conv.CrmChatID), nullIfEmpty(conv.AssignedAgent), string(conv.Status),
		conv.LastActivityAt, conv.CreatedAt,
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}

	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *conversationRepo) GetOpen(ctx context.Context, tenantID, instanceID, contactID string) (model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND instance_id = $2 AND contact_id = $3 AND status = 'open'
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tenantID, instanceID, contactID))
}

func (r *conversationRepo) GetByCrmChat(ctx context.Context, tenantID, crmChatID string) (model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1 AND crm_chat_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tenantID, crmChatID))
}

func (r *conversationRepo) Update(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	query := `
		UPDATE conversations
		SET crm_chat_id = $1, assigned_agent = $2, status = $3, last_activity_at = $4
		WHERE id = $5
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		nullIfEmpty(conv.CrmChatID), nullIfEmpty(conv.AssignedAgent), string(conv.Status),
		conv.LastActivityAt, conv.ID,
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Conversation{}, mapError(pgx.ErrNoRows)
	}

	return conv, nil
}

func (r *conversationRepo) Close(ctx context.Context, id string) error {
	query := `
		UPDATE conversations
		SET status = 'closed', last_activity_at = $1
		WHERE id = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (r *conversationRepo) scanOne(row pgx.Row) (model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(
		&conv.ID, &conv.TenantID, &conv.InstanceID, &conv.ContactID,
		&conv.CrmChatID, &conv.AssignedAgent, &conv.Status, &conv.LastActivityAt, &conv.CreatedAt,
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}
	return conv, nil
}
