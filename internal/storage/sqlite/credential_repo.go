package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		cred.ID, cred.TenantID, cred.PortalURL, cred.AccessToken, cred.RefreshToken,
		nullIfEmpty(cred.WebhookSecret), formatTime(cred.ExpiresAt), nullIfEmpty(joinScopes(cred.Scopes)),
		cred.Active, formatTime(cred.CreatedAt), formatTime(cred.UpdatedAt),
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
		WHERE tenant_id = ? AND active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tenantID))
}

func (r *credentialRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE id = ?
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *credentialRepo) Update(ctx context.Context, cred model.Credential) (model.Credential, error) {
	cred.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, webhook_secret = ?, expires_at = ?, scopes = ?, active = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.Conn.ExecContext(ctx, query,
		cred.AccessToken, cred.RefreshToken, nullIfEmpty(cred.WebhookSecret),
		formatTime(cred.ExpiresAt), nullIfEmpty(joinScopes(cred.Scopes)), cred.Active,
		formatTime(cred.UpdatedAt), cred.ID,
	)
	if err != nil {
		return model.Credential{}, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Credential{}, mapError(sql.ErrNoRows)
	}

	return cred, nil
}

func (r *credentialRepo) Deactivate(ctx context.Context, id string, revokedAt time.Time) error {
	query := `
		UPDATE credentials
		SET active = 0, revoked_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Conn.ExecContext(ctx, query, formatTime(revokedAt), formatTime(time.Now().UTC()), id)
	return mapError(err)
}

func (r *credentialRepo) scanOne(row *sql.Row) (model.Credential, error) {
	var cred model.Credential
	var scopes string
	var expiresAt, createdAt, updatedAt string
	var revokedAt sql.NullString

	err := row.Scan(
		&cred.ID, &cred.TenantID, &cred.PortalURL, &cred.AccessToken, &cred.RefreshToken,
		&cred.WebhookSecret, &expiresAt, &scopes, &cred.Active, &createdAt, &updatedAt, &revokedAt,
	)
	if err != nil {
		return model.Credential{}, mapError(err)
	}

	cred.Scopes = splitScopes(scopes)
	cred.ExpiresAt = parseTime(expiresAt)
	cred.CreatedAt = parseTime(createdAt)
	cred.UpdatedAt = parseTime(updatedAt)
	cred.RevokedAt = parseTimePtr(revokedAt)

	return cred, nil
}
