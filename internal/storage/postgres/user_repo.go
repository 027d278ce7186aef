package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage/model"
)

type userRepo struct {
	db *DB
}

func NewUserRepository(db *DB) *userRepo {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, tenant_id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.TenantID, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
	)
	if err != nil {
		return model.User{}, mapError(err)
	}

	return user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT id, tenant_id, email, password_hash, role, created_at FROM users WHERE email = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	query := `SELECT id, tenant_id, email, password_hash, role, created_at FROM users WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *userRepo) scanOne(row pgx.Row) (model.User, error) {
	var user model.User
	if err := row.Scan(&user.ID, &user.TenantID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
		return model.User{}, mapError(err)
	}
	return user, nil
}
