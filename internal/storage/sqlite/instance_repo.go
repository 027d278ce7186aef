package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		inst.ID, inst.TenantID, inst.Label, string(inst.Status),
		nullIfEmpty(inst.QRCode), nullIfEmpty(inst.Secret), nullIfEmpty(inst.TokenHash),
		formatTime(inst.CreatedAt), formatTime(inst.UpdatedAt),
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}

	return inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *instanceRepo) GetByLabel(ctx context.Context, label string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE label = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, label))
}

func (r *instanceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE token_hash = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tokenHash))
}

func (r *instanceRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE tenant_id = ? ORDER BY created_at DESC`
	rows, err := r.db.Conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC`
	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *instanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	inst.UpdatedAt = time.Now().UTC()

	var lastSeen interface{}
	if inst.LastSeenAt != nil {
		lastSeen = formatTime(*inst.LastSeenAt)
	}

	query := `
		UPDATE instances
		SET label = ?, status = ?, qr_code = ?, secret = ?, token_hash = ?, last_seen_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.Conn.ExecContext(ctx, query,
		inst.Label, string(inst.Status), nullIfEmpty(inst.QRCode), nullIfEmpty(inst.Secret),
		nullIfEmpty(inst.TokenHash), lastSeen, formatTime(inst.UpdatedAt), inst.ID,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Instance{}, mapError(sql.ErrNoRows)
	}

	return inst, nil
}

func (r *instanceRepo) UpdateStatus(ctx context.Context, id string, status model.InstanceStatus, qr string) error {
	query := `
		UPDATE instances
		SET status = ?, qr_code = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Conn.ExecContext(ctx, query, string(status), nullIfEmpty(qr), formatTime(time.Now().UTC()), id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Conn.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	return mapError(err)
}

func (r *instanceRepo) scanOne(row *sql.Row) (model.Instance, error) {
	var inst model.Instance
	var createdAt, updatedAt string
	var lastSeenAt sql.NullString

	err := row.Scan(
		&inst.ID, &inst.TenantID, &inst.Label, &inst.Status, &inst.QRCode, &inst.Secret,
		&inst.TokenHash, &lastSeenAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}

	inst.LastSeenAt = parseTimePtr(lastSeenAt)
	inst.CreatedAt = parseTime(createdAt)
	inst.UpdatedAt = parseTime(updatedAt)

	return inst, nil
}

func (r *instanceRepo) scanMany(rows *sql.Rows) ([]model.Instance, error) {
	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		var createdAt, updatedAt string
		var lastSeenAt sql.NullString

		if err := rows.Scan(
			&inst.ID, &inst.TenantID, &inst.Label, &inst.Status, &inst.QRCode, &inst.Secret,
			&inst.TokenHash, &lastSeenAt, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		inst.LastSeenAt = parseTimePtr(lastSeenAt)
		inst.CreatedAt = parseTime(createdAt)
		inst.UpdatedAt = parseTime(updatedAt)
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
