package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage/model"
)

type memCredStore struct {
	mu    sync.Mutex
	saved []model.Credential
	err   error
}

func (s *memCredStore) Save(ctx context.Context, cred model.Credential) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return model.Credential{}, s.err
	}
	s.saved = append(s.saved, cred)
	return cred, nil
}

func newTokenServer(t *testing.T, status int, resp interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEnsureFreshKeepsValidCredential(t *testing.T) {
	oauth := NewOAuthClient("http://invalido.local", "id", "secret", time.Second)
	store := &memCredStore{}
	r := NewRefresher(oauth, store, zap.NewNop())

	cred := model.Credential{
		ID:           "c1",
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	got, err := r.EnsureFresh(context.Background(), cred)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got.AccessToken != "tok" {
		t.Error("credencial válida foi trocada")
	}
	if len(store.saved) != 0 {
		t.Error("credencial válida foi persistida sem necessidade")
	}
}

func TestEnsureFreshRefreshesWithinSkew(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, TokenResponse{
		AccessToken:  "tok-novo",
		RefreshToken: "ref-novo",
		ExpiresIn:    3600,
	})
	defer srv.Close()

	oauth := NewOAuthClient(srv.URL, "id", "secret", time.Second)
	store := &memCredStore{}
	r := NewRefresher(oauth, store, zap.NewNop())

	// Ainda não venceu, mas está dentro da folga de 60s.
	cred := model.Credential{
		ID:           "c1",
		AccessToken:  "tok-velho",
		RefreshToken: "ref-velho",
		ExpiresAt:    time.Now().Add(30 * time.Second),
	}
	got, err := r.EnsureFresh(context.Background(), cred)
	if err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got.AccessToken != "tok-novo" || got.RefreshToken != "ref-novo" {
		t.Errorf("tokens não renovados: %+v", got)
	}
	if !got.ExpiresAt.After(time.Now().Add(time.Hour - time.Minute)) {
		t.Errorf("vencimento não avançou: %v", got.ExpiresAt)
	}
	if len(store.saved) != 1 {
		t.Errorf("credencial renovada persistida %d vezes", len(store.saved))
	}
}

func TestEnsureFreshFailureReturnsOriginalWithError(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, map[string]string{
		"error":             "invalid_grant",
		"error_description": "refresh token revogado",
	})
	defer srv.Close()

	oauth := NewOAuthClient(srv.URL, "id", "secret", time.Second)
	store := &memCredStore{}
	r := NewRefresher(oauth, store, zap.NewNop())

	cred := model.Credential{
		ID:           "c1",
		AccessToken:  "tok-velho",
		RefreshToken: "ref-velho",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	got, err := r.EnsureFresh(context.Background(), cred)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("esperado ErrTokenExpired, veio %v", err)
	}
	if got.AccessToken != "tok-velho" {
		t.Error("falha de refresh não devolveu a credencial original")
	}
	if len(store.saved) != 0 {
		t.Error("credencial persistida apesar da falha")
	}
}

func TestEnsureFreshWithoutRefreshToken(t *testing.T) {
	oauth := NewOAuthClient("http://invalido.local", "id", "secret", time.Second)
	r := NewRefresher(oauth, &memCredStore{}, zap.NewNop())

	cred := model.Credential{ID: "c1", ExpiresAt: time.Now().Add(-time.Minute)}
	if _, err := r.EnsureFresh(context.Background(), cred); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("esperado ErrTokenExpired, veio %v", err)
	}
}

func TestForceRefreshPersistFailureStillReturnsNewToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, TokenResponse{
		AccessToken:  "tok-novo",
		RefreshToken: "ref-novo",
		ExpiresIn:    3600,
	})
	defer srv.Close()

	oauth := NewOAuthClient(srv.URL, "id", "secret", time.Second)
	store := &memCredStore{err: errors.New("banco fora do ar")}
	r := NewRefresher(oauth, store, zap.NewNop())

	cred := model.Credential{ID: "c1", RefreshToken: "ref-velho", ExpiresAt: time.Now().Add(-time.Minute)}
	got, err := r.ForceRefresh(context.Background(), cred)
	if err != nil {
		t.Fatalf("token novo vale mesmo sem persistir: %v", err)
	}
	if got.AccessToken != "tok-novo" {
		t.Errorf("access token = %q", got.AccessToken)
	}
}
