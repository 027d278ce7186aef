package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/zapline/zapline/internal/storage/model"
)

type bindingRepo struct {
	db *DB
}

func NewBindingRepository(db *DB) *bindingRepo {
	return &bindingRepo{db: db}
}

// Upsert grava o vínculo 1:1 linha↔instância. Qualquer vínculo anterior de
// qualquer um dos lados é removido na mesma transação.
func (r *bindingRepo) Upsert(ctx context.Context, binding model.Binding) (model.Binding, error) {
	if binding.ID == "" {
		binding.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	binding.CreatedAt = now
	binding.UpdatedAt = now

	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.Binding{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM bindings WHERE (tenant_id = ? AND line_id = ?) OR instance_id = ?`,
		binding.TenantID, binding.LineID, binding.InstanceID,
	)
	if err != nil {
		return model.Binding{}, mapError(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bindings (id, tenant_id, line_id, instance_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		binding.ID, binding.TenantID, binding.LineID, binding.InstanceID,
		formatTime(binding.CreatedAt), formatTime(binding.UpdatedAt),
	)
	if err != nil {
		return model.Binding{}, mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return model.Binding{}, err
	}

	return binding, nil
}

func (r *bindingRepo) GetByLine(ctx context.Context, tenantID, lineID string) (model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE tenant_id = ? AND line_id = ?
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tenantID, lineID))
}

func (r *bindingRepo) GetByInstance(ctx context.Context, instanceID string) (model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE instance_id = ?
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, instanceID))
}

func (r *bindingRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE tenant_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []model.Binding
	for rows.Next() {
		var b model.Binding
		var createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.TenantID, &b.LineID, &b.InstanceID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = parseTime(updatedAt)
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *bindingRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Conn.ExecContext(ctx, `DELETE FROM bindings WHERE id = ?`, id)
	return mapError(err)
}

func (r *bindingRepo) scanOne(row *sql.Row) (model.Binding, error) {
	var b model.Binding
	var createdAt, updatedAt string
	if err := row.Scan(&b.ID, &b.TenantID, &b.LineID, &b.InstanceID, &createdAt, &updatedAt); err != nil {
		return model.Binding{}, mapError(err)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}
