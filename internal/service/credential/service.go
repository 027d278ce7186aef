package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/crm"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

var (
	ErrInvalidPortal = errors.New("portal inválido")
	ErrInvalidCode   = errors.New("authorization code ausente")
)

// Service cuida da instalação e revogação do OAuth do CRM. No máximo uma
// credencial ativa por tenant: instalar de novo desativa a anterior.
type Service struct {
	repo  storage.CredentialRepository
	oauth *crm.OAuthClient
	crm   *crm.Client
	log   *zap.Logger
}

func NewService(repo storage.CredentialRepository, oauth *crm.OAuthClient, crmClient *crm.Client, log *zap.Logger) *Service {
	return &Service{repo: repo, oauth: oauth, crm: crmClient, log: log}
}

type InstallInput struct {
	TenantID      string
	PortalURL     string
	Code          string
	WebhookSecret string
	// HandlerURL é a URL pública deste serviço que o CRM passa a chamar.
	HandlerURL string
}

func (s *Service) Install(ctx context.Context, input InstallInput) (model.Credential, error) {
	portal := strings.TrimRight(strings.TrimSpace(input.PortalURL), "/")
	if portal == "" || !strings.HasPrefix(portal, "http") {
		return model.Credential{}, ErrInvalidPortal
	}
	if strings.TrimSpace(input.Code) == "" {
		return model.Credential{}, ErrInvalidCode
	}

	token, err := s.oauth.ExchangeCode(ctx, input.Code)
	if err != nil {
		return model.Credential{}, err
	}

	// Desativa a credencial anterior antes de gravar a nova; a última
	// instalação vence.
	if prev, err := s.repo.GetActiveByTenant(ctx, input.TenantID); err == nil {
		if err := s.repo.Deactivate(ctx, prev.ID, time.Now().UTC()); err != nil {
			s.log.Warn("credential: falha ao desativar credencial anterior",
				zap.String("credential", prev.ID),
				zap.Error(err),
			)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.Credential{}, err
	}

	cred := model.Credential{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		PortalURL:     portal,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		WebhookSecret: strings.TrimSpace(input.WebhookSecret),
		ExpiresAt:     crm.ExpiryFrom(time.Now().UTC(), token.ExpiresIn),
		Active:        true,
	}
	if token.Scope != "" {
		cred.Scopes = strings.Split(token.Scope, ",")
	}

	cred, err = s.repo.Create(ctx, cred)
	if err != nil {
		return model.Credential{}, err
	}

	if err := s.crm.RegisterConnector(ctx, cred); err != nil {
		s.log.Error("credential: falha ao registrar conector", zap.Error(err))
		return model.Credential{}, err
	}
	if input.HandlerURL != "" {
		if err := s.crm.BindEvents(ctx, cred, input.HandlerURL); err != nil {
			s.log.Error("credential: falha ao vincular eventos", zap.Error(err))
			return model.Credential{}, err
		}
	}

	s.log.Info("credential: instalação concluída",
		zap.String("tenant", input.TenantID),
		zap.String("portal", portal),
	)

	return cred, nil
}

func (s *Service) Uninstall(ctx context.Context, tenantID, handlerURL string) error {
	cred, err := s.repo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	if handlerURL != "" {
		if err := s.crm.UnbindEvents(ctx, cred, handlerURL); err != nil {
			// O portal pode já ter removido o app; revogação local segue.
			s.log.Warn("credential: falha ao desvincular eventos", zap.Error(err))
		}
	}

	if err := s.repo.Deactivate(ctx, cred.ID, time.Now().UTC()); err != nil {
		return err
	}

	s.log.Info("credential: credencial revogada", zap.String("tenant", tenantID))
	return nil
}

func (s *Service) GetActive(ctx context.Context, tenantID string) (model.Credential, error) {
	return s.repo.GetActiveByTenant(ctx, tenantID)
}
