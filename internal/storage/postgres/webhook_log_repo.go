package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zapline/zapline/internal/storage/model"
)

type webhookLogRepo struct {
	db *DB
}

func NewWebhookLogRepository(db *DB) *webhookLogRepo {
	return &webhookLogRepo{db: db}
}

func (r *webhookLogRepo) Create(ctx context.Context, entry model.WebhookLog) (model.WebhookLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO webhook_log (id, tenant_id, source, instance_label, payload, signature_valid, secured, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, nullIfEmpty(entry.TenantID), entry.Source, nullIfEmpty(entry.InstanceLabel),
		entry.Payload, entry.SignatureValid, entry.Secured, entry.CreatedAt,
	)
	if err != nil {
		return model.WebhookLog{}, mapError(err)
	}

	return entry, nil
}

func (r *webhookLogRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.WebhookLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, COALESCE(tenant_id, ''), source, COALESCE(instance_label, ''), payload, signature_valid, secured, created_at
		FROM webhook_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.WebhookLog
	for rows.Next() {
		var e model.WebhookLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Source, &e.InstanceLabel, &e.Payload, &e.SignatureValid, &e.Secured, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
