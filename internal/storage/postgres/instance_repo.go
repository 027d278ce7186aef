package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage/model"
)

type instanceRepo struct {
	db *DB
}

func NewInstanceRepository(db *DB) *instanceRepo {
	return &instanceRepo{db: db}
}

const instanceColumns = `id, tenant_id, label, status, COALESCE(qr_code, ''), COALESCE(secret, ''), COALESCE(token_hash, ''), last_seen_at, created_at, updated_at`

func (r *instanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	query := `
		INSERT INTO instances (id, tenant_id, label, status, qr_code, secret, token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		inst.ID, inst.TenantID, inst.Label, string(inst.Status),
		nullIfEmpty(inst.QRCode), nullIfEmpty(inst.Secret), nullIfEmpty(inst.TokenHash),
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}

	return inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *instanceRepo) GetByLabel(ctx context.Context, label string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE label = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, label))
}

func (r *instanceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE token_hash = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

func (r *instanceRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *instanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	inst.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE instances
		SET label = $1, status = $2, qr_code = $3, secret = $4, token_hash = $5, last_seen_at = $6, updated_at = $7
		WHERE id = $8
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		inst.Label, string(inst.Status), nullIfEmpty(inst.QRCode), nullIfEmpty(inst.Secret),
		nullIfEmpty(inst.TokenHash), inst.LastSeenAt, inst.UpdatedAt, inst.ID,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Instance{}, mapError(pgx.ErrNoRows)
	}

	return inst, nil
}

func (r *instanceRepo) UpdateStatus(ctx context.Context, id string, status model.InstanceStatus, qr string) error {
	query := `
		UPDATE instances
		SET status = $1, qr_code = $2, updated_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Pool.Exec(ctx, query, string(status), nullIfEmpty(qr), time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	return mapError(err)
}

func (r *instanceRepo) scanOne(row pgx.Row) (model.Instance, error) {
	var inst model.Instance
	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.Label, &inst.Status, &inst.QRCode, &inst.Secret,
		&inst.TokenHash, &inst.LastSeenAt, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}
	return inst, nil
}

func (r *instanceRepo) scanMany(rows pgx.Rows) ([]model.Instance, error) {
	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		if err := rows.Scan(
			&inst.ID, &inst.TenantID, &inst.Label, &inst.Status, &inst.QRCode, &inst.Secret,
			&inst.TokenHash, &inst.LastSeenAt, &inst.CreatedAt, &inst.UpdatedAt,
		); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
