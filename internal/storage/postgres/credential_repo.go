package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapline/zapline/internal/storage/model"
)

type credentialRepo struct {
	db *DB
}

func NewCredentialRepository(db *DB) *credentialRepo {
	return &credentialRepo{db: db}
}

const credentialColumns = `id, tenant_id, portal_url, access_token, refresh_token, COALESCE(webhook_secret, ''), expires_at, COALESCE(scopes, ''), active, created_at, updated_at, revoked_at`

func (r *credentialRepo) Create(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	query := `
		INSERT INTO credentials (id, tenant_id, portal_url, access_token, refresh_token, webhook_secret, expires_at, scopes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		cred.ID, cred.TenantID, cred.PortalURL, cred.AccessToken, cred.RefreshToken,
		nullIfEmpty(cred.WebhookSecret), cred.ExpiresAt, nullIfEmpty(strings.Join(cred.Scopes, ",")),
		cred.Active, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return model.Credential{}, mapError(err)
	}

	return cred, nil
}

func (r *credentialRepo) GetActiveByTenant(ctx context.Context, tenantID string) (model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE tenant_id = $1 AND active
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, tenantID))
}

func (r *credentialRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *credentialRepo) Update(ctx context.Context, cred model.Credential) (model.Credential, error) {
	cred.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE credentials
		SET access_token = $1, refresh_token = $2, webhook_secret = $3, expires_at = $4, scopes = $5, active = $6, updated_at = $7
		WHERE id = $8
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		cred.AccessToken, cred.RefreshToken, nullIfEmpty(cred.WebhookSecret),
		cred.ExpiresAt, nullIfEmpty(strings.Join(cred.Scopes, ",")), cred.Active,
		cred.UpdatedAt, cred.ID,
	)
	if err != nil {
		return model.Credential{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Credential{}, mapError(pgx.ErrNoRows)
	}

	return cred, nil
}

func (r *credentialRepo) Deactivate(ctx context.Context, id string, revokedAt time.Time) error {
	query := `
		UPDATE credentials
		SET active = false, revoked_at = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.Pool.Exec(ctx, query, revokedAt, time.Now().UTC(), id)
	return mapError(err)
}

func (r *credentialRepo) scanOne(row pgx.Row) (model.Credential, error) {
	var cred model.Credential
	var scopes string

	err := row.Scan(
		&cred.ID, &cred.TenantID, &cred.PortalURL, &cred.AccessToken, &cred.RefreshToken,
		&cred.WebhookSecret, &cred.ExpiresAt, &scopes, &cred.Active, &cred.CreatedAt, &cred.UpdatedAt, &cred.RevokedAt,
	)
	if err != nil {
		return model.Credential{}, mapError(err)
	}

	if scopes != "" {
		cred.Scopes = strings.Split(scopes, ",")
	}

	return cred, nil
}
