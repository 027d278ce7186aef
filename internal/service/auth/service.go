package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

var (
	ErrInvalidCredentials = errors.New("email ou senha inválidos")
	ErrInvalidEmail       = errors.New("email inválido")
	ErrWeakPassword       = errors.New("senha muito curta")
)

// Service autentica usuários operacionais e emite JWTs de acesso à API.
type Service struct {
	users     storage.UserRepository
	jwtSecret string
	ttl       time.Duration
}

func NewService(users storage.UserRepository, jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, jwtSecret: jwtSecret, ttl: ttl}
}

type LoginOutput struct {
	Token     string
	ExpiresAt time.Time
	User      model.User
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginOutput, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginOutput{}, ErrInvalidCredentials
		}
		return LoginOutput{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginOutput{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":    user.ID,
		"tenant": user.TenantID,
		"role":   user.Role,
		"exp":    expiresAt.Unix(),
		"iat":    time.Now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return LoginOutput{}, err
	}

	return LoginOutput{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

type RegisterInput struct {
	TenantID string
	Email    string
	Password string
	Role     string
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !strings.Contains(email, "@") {
		return model.User{}, ErrInvalidEmail
	}
	if len(input.Password) < 8 {
		return model.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	role := input.Role
	if role == "" {
		role = "operator"
	}

	return s.users.Create(ctx, model.User{
		ID:           uuid.NewString(),
		TenantID:     input.TenantID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
}
