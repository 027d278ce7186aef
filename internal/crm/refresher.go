package crm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage/model"
)

// ErrTokenExpired sinaliza que a credencial está vencida e o refresh falhou.
var ErrTokenExpired = errors.New("crm: credencial expirada e refresh falhou")

// refreshSkew: tokens a menos de 60s do vencimento são tratados como vencidos.
const refreshSkew = 60 * time.Second

type CredentialStore interface {
	Save(ctx context.Context, cred model.Credential) (model.Credential, error)
}

// Refresher garante credencial fresca antes de qualquer chamada ao CRM.
type Refresher struct {
	oauth *OAuthClient
	store CredentialStore
	log   *zap.Logger
	now   func() time.Time
}

func NewRefresher(oauth *OAuthClient, store CredentialStore, log *zap.Logger) *Refresher {
	return &Refresher{
		oauth: oauth,
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// EnsureFresh devolve a credencial pronta para uso. Falha no refresh devolve
// a credencial original junto de ErrTokenExpired.
func (r *Refresher) EnsureFresh(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if !cred.Expired(refreshSkew, r.now()) {
		return cred, nil
	}
	return r.ForceRefresh(ctx, cred)
}

func (r *Refresher) ForceRefresh(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		r.log.Warn("refresher: credencial sem refresh token",
			zap.String("credential_id", cred.ID),
			zap.String("tenant", cred.TenantID),
		)
		return cred, ErrTokenExpired
	}

	token, err := r.oauth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		r.log.Warn("refresher: refresh falhou, seguindo com token antigo",
			zap.String("credential_id", cred.ID),
			zap.String("tenant", cred.TenantID),
			zap.Error(err),
		)
		return cred, ErrTokenExpired
	}

	now := r.now()
	cred.AccessToken = token.AccessToken
	cred.RefreshToken = token.RefreshToken
	cred.ExpiresAt = ExpiryFrom(now, token.ExpiresIn)
	cred.UpdatedAt = now

	saved, err := r.store.Save(ctx, cred)
	if err != nil {
		r.log.Warn("refresher: falha ao persistir credencial atualizada",
			zap.String("credential_id", cred.ID),
			zap.Error(err),
		)
		return cred, nil
	}

	r.log.Info("refresher: credencial renovada",
		zap.String("credential_id", saved.ID),
		zap.Time("expires_at", saved.ExpiresAt),
	)
	return saved, nil
}
