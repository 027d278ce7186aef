package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

type fakeUserRepo struct {
	items map[string]model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{items: map[string]model.User{}}
}

func (r *fakeUserRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	for _, other := range r.items {
		if other.Email == user.Email {
			return model.User{}, storage.ErrDuplicate
		}
	}
	user.CreatedAt = time.Now().UTC()
	r.items[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	for _, user := range r.items {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	user, ok := r.items[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return user, nil
}

func TestRegisterAndLogin(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewService(repo, "segredo-jwt", time.Hour)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		TenantID: "t1",
		Email:    "  Maria@Example.COM ",
		Password: "senha-forte-123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == "" {
		t.Error("usuário criado sem id")
	}
	if user.Email != "maria@example.com" {
		t.Errorf("email não normalizado: %q", user.Email)
	}
	if user.Role != "operator" {
		t.Errorf("papel default = %q", user.Role)
	}
	if user.PasswordHash == "senha-forte-123" {
		t.Error("senha gravada em texto claro")
	}

	out, err := svc.Login(ctx, "maria@example.com", "senha-forte-123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	token, err := jwt.Parse(out.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("segredo-jwt"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token inválido: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["sub"] != user.ID || claims["tenant"] != "t1" || claims["role"] != "operator" {
		t.Errorf("claims erradas: %v", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewService(repo, "segredo-jwt", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{TenantID: "t1", Email: "a@b.com", Password: "senha-forte-123"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Login(ctx, "a@b.com", "senha-errada"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("senha errada: esperado ErrInvalidCredentials, veio %v", err)
	}
	if _, err := svc.Login(ctx, "ninguem@b.com", "senha-forte-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("usuário inexistente: esperado ErrInvalidCredentials, veio %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newFakeUserRepo(), "segredo-jwt", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "sem-arroba", Password: "senha-forte-123"}); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("email inválido aceito: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "curta"}); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("senha fraca aceita: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newFakeUserRepo(), "segredo-jwt", time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "senha-forte-123"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterInput{Email: "A@B.com", Password: "senha-forte-123"}); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("email repetido: esperado ErrDuplicate, veio %v", err)
	}
}
