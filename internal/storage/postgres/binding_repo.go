package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return model.Binding{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM bindings WHERE (tenant_id = $1 AND line_id = $2) OR instance_id = $3`,
		binding.TenantID, binding.LineID, binding.InstanceID,
	)
	if err != nil {
		return model.Binding{}, mapError(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bindings (id, tenant_id, line_id, instance_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		binding.ID, binding.TenantID, binding.LineID, binding.InstanceID, binding.CreatedAt, binding.UpdatedAt,
	)
	if err != nil {
		return model.Binding{}, mapError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Binding{}, err
	}

	return binding, nil
}

func (r *bindingRepo) GetByLine(ctx context.Context, tenantID, lineID string) (model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE tenant_id = $1 AND line_id = $2
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tenantID, lineID))
}

func (r *bindingRepo) GetByInstance(ctx context.Context, instanceID string) (model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE instance_id = $1
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, instanceID))
}

func (r *bindingRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Binding, error) {
	query := `
		SELECT id, tenant_id, line_id, instance_id, created_at, updated_at
		FROM bindings
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []model.Binding
	for rows.Next() {
		var b model.Binding
		if err := rows.Scan(&b.ID, &b.TenantID, &b.LineID, &b.InstanceID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *bindingRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM bindings WHERE id = $1`, id)
	return mapError(err)
}

func (r *bindingRepo) scanOne(row pgx.Row) (model.Binding, error) {
	var b model.Binding
	if err := row.Scan(&b.ID, &b.TenantID, &b.LineID, &b.InstanceID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return model.Binding{}, mapError(err)
	}
	return b, nil
}
