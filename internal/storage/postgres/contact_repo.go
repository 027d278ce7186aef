package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

type contactRepo struct {
	db *DB
}

func NewContactRepository(db *DB) *contactRepo {
	return &contactRepo{db: db}
}

// GetOrCreate devolve o contato (tenant, phone) existente ou cria um novo.
// Corrida no insert é resolvida relendo o vencedor.
func (r *contactRepo) GetOrCreate(ctx context.Context, contact model.Contact) (model.Contact, error) {
	existing, err := r.GetByPhone(ctx, contact.TenantID, contact.Phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Contact{}, err
	}

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	contact.CreatedAt = time.Now().UTC()

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO contacts (id, tenant_id, phone, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		contact.ID, contact.TenantID, contact.Phone, nullIfEmpty(contact.Name), contact.CreatedAt,
	)
	if err != nil {
		if errors.Is(mapError(err), storage.ErrDuplicate) {
			return r.GetByPhone(ctx, contact.TenantID, contact.Phone)
		}
		return model.Contact{}, mapError(err)
	}

	return contact, nil
}

func (r *contactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	query := `SELECT id, tenant_id, phone, COALESCE(name, ''), created_at FROM contacts WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *contactRepo) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	query := `SELECT id, tenant_id, phone, COALESCE(name, ''), created_at FROM contacts WHERE tenant_id = $1 AND phone = $2`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tenantID, phone))
}

func (r *contactRepo) scanOne(row pgx.Row) (model.Contact, error) {
	var c model.Contact
	if err := row.Scan(&c.ID, &c.TenantID, &c.Phone, &c.Name, &c.CreatedAt); err != nil {
		return model.Contact{}, mapError(err)
	}
	return c, nil
}
