package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage/model"
)

type messageRepo struct {
	db *DB
}

func NewMessageRepository(db *DB) *messageRepo {
	return &messageRepo{db: db}
}

const messageColumns = `id, tenant_id, conversation_id, direction, body, COALESCE(media_url, ''), COALESCE(wa_message_id, ''), COALESCE(crm_message_id, ''), status, COALESCE(fail_reason, ''), created_at`

// Create insere a mensagem. A unicidade de wa_message_id / crm_message_id é
// verificada pelo próprio insert: colisão devolve ErrDuplicate, sem janela
// entre checagem e gravação.
func (r *messageRepo) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO messages (id, tenant_id, conversation_id, direction, body, media_url, wa_message_id, crm_message_id, status, fail_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		msg.ID, msg.TenantID, msg.ConversationID, string(msg.Direction), msg.Body,
		nullIfEmpty(msg.MediaURL), nullIfEmpty(msg.WaMessageID), nullIfEmpty(msg.CrmMessageID),
		string(msg.Status), nullIfEmpty(msg.FailReason), msg.CreatedAt,
	)
	if err != nil {
		return model.Message{}, mapError(err)
	}

	return msg, nil
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *messageRepo) GetByWaID(ctx context.Context, waMessageID string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE wa_message_id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, waMessageID))
}

func (r *messageRepo) GetByCrmID(ctx context.Context, crmMessageID string) (model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE crm_message_id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, crmMessageID))
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(
			&msg.ID, &msg.TenantID, &msg.ConversationID, &msg.Direction, &msg.Body,
			&msg.MediaURL, &msg.WaMessageID, &msg.CrmMessageID, &msg.Status, &msg.FailReason, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *messageRepo) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus, failReason string) error {
	query := `
		UPDATE messages
		SET status = $1, fail_reason = $2
		WHERE id = $3
	`
	tag, err := r.db.Pool.Exec(ctx, query, string(status), nullIfEmpty(failReason), id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (r *messageRepo) scanOne(row pgx.Row) (model.Message, error) {
	var msg model.Message
	err := row.Scan(
		&msg.ID, &msg.TenantID, &msg.ConversationID, &msg.Direction, &msg.Body,
		&msg.MediaURL, &msg.WaMessageID, &msg.CrmMessageID, &msg.Status, &msg.FailReason, &msg.CreatedAt,
	)
	if err != nil {
		return model.Message{}, mapError(err)
	}
	return msg, nil
}
