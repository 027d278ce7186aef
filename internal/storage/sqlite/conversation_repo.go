package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		conv.ID, conv.TenantID, conv.InstanceID, conv.ContactID,
		nullIfEmpty(conv.CrmChatID), nullIfEmpty(conv.AssignedAgent), string(conv.Status),
		formatTime(conv.LastActivityAt), formatTime(conv.CreatedAt),
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}

	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *conversationRepo) GetOpen(ctx context.Context, tenantID, instanceID, contactID string) (model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = ? AND instance_id = ? AND contact_id = ? AND status = 'open'
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tenantID, instanceID, contactID))
}

func (r *conversationRepo) GetByCrmChat(ctx context.Context, tenantID, crmChatID string) (model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = ? AND crm_chat_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tenantID, crmChatID))
}

func (r *conversationRepo) Update(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	query := `
		UPDATE conversations
		SET crm_chat_id = ?, assigned_agent = ?, status = ?, last_activity_at = ?
		WHERE id = ?
	`

	res, err := r.db.Conn.ExecContext(ctx, query,
		nullIfEmpty(conv.CrmChatID), nullIfEmpty(conv.AssignedAgent), string(conv.Status),
		formatTime(conv.LastActivityAt), conv.ID,
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Conversation{}, mapError(sql.ErrNoRows)
	}

	return conv, nil
}

func (r *conversationRepo) Close(ctx context.Context, id string) error {
	query := `
		UPDATE conversations
		SET status = 'closed', last_activity_at = ?
		WHERE id = ?
	`
	res, err := r.db.Conn.ExecContext(ctx, query, formatTime(time.Now().UTC()), id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (r *conversationRepo) scanOne(row *sql.Row) (model.Conversation, error) {
	var conv model.Conversation
	var lastActivityAt, createdAt string

	err := row.Scan(
		&conv.ID, &conv.TenantID, &conv.InstanceID, &conv.ContactID,
		&conv.CrmChatID, &conv.AssignedAgent, &conv.Status, &lastActivityAt, &createdAt,
	)
	if err != nil {
		return model.Conversation{}, mapError(err)
	}

	conv.LastActivityAt = parseTime(lastActivityAt)
	conv.CreatedAt = parseTime(createdAt)

	return conv, nil
}
