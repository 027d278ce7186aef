package credential

import (
	"context"
	"testing"
	"time"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

type memCredRepo struct {
	items map[string]model.Credential
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{items: map[string]model.Credential{}}
}

func (r *memCredRepo) Create(ctx context.Context, cred model.Credential) (model.Credential, error) {
	r.items[cred.ID] = cred
	return cred, nil
}

func (r *memCredRepo) GetActiveByTenant(ctx context.Context, tenantID string) (model.Credential, error) {
	for _, cred := range r.items {
		if cred.TenantID == tenantID && cred.Active {
			return cred, nil
		}
	}
	return model.Credential{}, storage.ErrNotFound
}

func (r *memCredRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	cred, ok := r.items[id]
	if !ok {
		return model.Credential{}, storage.ErrNotFound
	}
	return cred, nil
}

func (r *memCredRepo) Update(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if _, ok := r.items[cred.ID]; !ok {
		return model.Credential{}, storage.ErrNotFound
	}
	r.items[cred.ID] = cred
	return cred, nil
}

func (r *memCredRepo) Deactivate(ctx context.Context, id string, revokedAt time.Time) error {
	cred, ok := r.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	cred.Active = false
	cred.RevokedAt = &revokedAt
	r.items[id] = cred
	return nil
}

func TestEncryptedStoreSealsRefreshTokenAtRest(t *testing.T) {
	repo := newMemCredRepo()
	store := NewEncryptedStore(repo, "chave-de-cifra")
	ctx := context.Background()

	created, err := store.Create(ctx, model.Credential{
		ID:           "c1",
		TenantID:     "t1",
		AccessToken:  "tok",
		RefreshToken: "refresh-claro",
		Active:       true,
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.RefreshToken != "refresh-claro" {
		t.Errorf("chamador deveria ver texto claro, veio %q", created.RefreshToken)
	}

	// No repositório o token está cifrado.
	raw := repo.items["c1"]
	if raw.RefreshToken == "refresh-claro" || raw.RefreshToken == "" {
		t.Errorf("token em repouso: %q", raw.RefreshToken)
	}

	got, err := store.GetActiveByTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetActiveByTenant: %v", err)
	}
	if got.RefreshToken != "refresh-claro" {
		t.Errorf("leitura não decifrou: %q", got.RefreshToken)
	}
}

func TestEncryptedStoreSaveRoundTrip(t *testing.T) {
	repo := newMemCredRepo()
	store := NewEncryptedStore(repo, "chave-de-cifra")
	ctx := context.Background()

	if _, err := store.Create(ctx, model.Credential{ID: "c1", TenantID: "t1", RefreshToken: "v1", Active: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	saved, err := store.Save(ctx, model.Credential{ID: "c1", TenantID: "t1", RefreshToken: "v2", Active: true})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.RefreshToken != "v2" {
		t.Errorf("Save devolveu %q", saved.RefreshToken)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RefreshToken != "v2" {
		t.Errorf("token após Save: %q", got.RefreshToken)
	}
}

func TestEncryptedStoreEmptyTokenPassesThrough(t *testing.T) {
	repo := newMemCredRepo()
	store := NewEncryptedStore(repo, "chave-de-cifra")

	created, err := store.Create(context.Background(), model.Credential{ID: "c1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.RefreshToken != "" {
		t.Errorf("token vazio virou %q", created.RefreshToken)
	}
}
