package credential

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/zapline/zapline/internal/pkg/crypto"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

// EncryptedStore decora o repositório de credenciais cifrando o refresh token
// em repouso (AES-GCM). Quem está acima da borda só vê texto claro.
type EncryptedStore struct {
	inner storage.CredentialRepository
	key   string
}

func NewEncryptedStore(inner storage.CredentialRepository, key string) *EncryptedStore {
	return &EncryptedStore{inner: inner, key: key}
}

func (s *EncryptedStore) Create(ctx context.Context, cred model.Credential) (model.Credential, error) {
	sealed, err := s.seal(cred)
	if err != nil {
		return model.Credential{}, err
	}
	created, err := s.inner.Create(ctx, sealed)
	if err != nil {
		return model.Credential{}, err
	}
	return s.open(created)
}

func (s *EncryptedStore) GetActiveByTenant(ctx context.Context, tenantID string) (model.Credential, error) {
	cred, err := s.inner.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		return model.Credential{}, err
	}
	return s.open(cred)
}

func (s *EncryptedStore) GetByID(ctx context.Context, id string) (model.Credential, error) {
	cred, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return model.Credential{}, err
	}
	return s.open(cred)
}

func (s *EncryptedStore) Update(ctx context.Context, cred model.Credential) (model.Credential, error) {
	sealed, err := s.seal(cred)
	if err != nil {
		return model.Credential{}, err
	}
	updated, err := s.inner.Update(ctx, sealed)
	if err != nil {
		return model.Credential{}, err
	}
	return s.open(updated)
}

func (s *EncryptedStore) Deactivate(ctx context.Context, id string, revokedAt time.Time) error {
	return s.inner.Deactivate(ctx, id, revokedAt)
}

func (s *EncryptedStore) seal(cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, nil
	}
	enc, err := crypto.Encrypt([]byte(cred.RefreshToken), s.key)
	if err != nil {
		return model.Credential{}, fmt.Errorf("credential: cifrar refresh token: %w", err)
	}
	cred.RefreshToken = base64.StdEncoding.EncodeToString(enc)
	return cred, nil
}

func (s *EncryptedStore) open(cred model.Credential) (model.Credential, error) {
	if cred.RefreshToken == "" {
		return cred, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cred.RefreshToken)
	if err != nil {
		return model.Credential{}, fmt.Errorf("credential: decodificar refresh token: %w", err)
	}
	dec, err := crypto.Decrypt(raw, s.key)
	if err != nil {
		return model.Credential{}, fmt.Errorf("credential: decifrar refresh token: %w", err)
	}
	cred.RefreshToken = string(dec)
	return cred, nil
}

func (s *EncryptedStore) Save(ctx context.Context, cred model.Credential) (model.Credential, error) {
	return s.Update(ctx, cred)
}
