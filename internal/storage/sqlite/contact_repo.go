package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

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

	_, err = r.db.Conn.ExecContext(ctx,
		`INSERT INTO contacts (id, tenant_id, phone, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		contact.ID, contact.TenantID, contact.Phone, nullIfEmpty(contact.Name), formatTime(contact.CreatedAt),
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
	query := `SELECT id, tenant_id, phone, COALESCE(name, ''), created_at FROM contacts WHERE id = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *contactRepo) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	query := `SELECT id, tenant_id, phone, COALESCE(name, ''), created_at FROM contacts WHERE tenant_id = ? AND phone = ?`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tenantID, phone))
}

func (r *contactRepo) scanOne(row *sql.Row) (model.Contact, error) {
	var c model.Contact
	var createdAt string
	if err := row.Scan(&c.ID, &c.TenantID, &c.Phone, &c.Name, &createdAt); err != nil {
		return model.Contact{}, mapError(err)
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}
