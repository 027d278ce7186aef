package binding

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/crm"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

var ErrInvalidLine = errors.New("linha inválida")

// Service amarra linhas do CRM a instâncias WA. O vínculo é 1:1: vincular de
// novo qualquer um dos lados sobrescreve o vínculo anterior.
type Service struct {
	bindings    storage.BindingRepository
	instances   storage.InstanceRepository
	credentials storage.CredentialRepository
	crm         *crm.Client
	log         *zap.Logger
}

func NewService(
	bindings storage.BindingRepository,
	instances storage.InstanceRepository,
	credentials storage.CredentialRepository,
	crmClient *crm.Client,
	log *zap.Logger,
) *Service {
	return &Service{
		bindings:    bindings,
		instances:   instances,
		credentials: credentials,
		crm:         crmClient,
		log:         log,
	}
}

type BindInput struct {
	TenantID   string
	LineID     string
	InstanceID string
}

func (s *Service) Bind(ctx context.Context, input BindInput) (model.Binding, error) {
	lineID := strings.TrimSpace(input.LineID)
	if lineID == "" {
		return model.Binding{}, ErrInvalidLine
	}

	inst, err := s.instances.GetByID(ctx, input.InstanceID)
	if err != nil {
		return model.Binding{}, err
	}
	if inst.TenantID != input.TenantID {
		return model.Binding{}, storage.ErrNotFound
	}

	cred, err := s.credentials.GetActiveByTenant(ctx, input.TenantID)
	if err != nil {
		return model.Binding{}, err
	}

	if err := s.crm.ActivateLine(ctx, cred, lineID, true); err != nil {
		return model.Binding{}, err
	}
	if err := s.crm.PublishConnectorData(ctx, cred, lineID, inst.Label); err != nil {
		s.log.Warn("binding: falha ao publicar dados do conector", zap.Error(err))
	}

	b, err := s.bindings.Upsert(ctx, model.Binding{
		TenantID:   input.TenantID,
		LineID:     lineID,
		InstanceID: inst.ID,
	})
	if err != nil {
		return model.Binding{}, err
	}

	s.log.Info("binding: linha vinculada",
		zap.String("tenant", input.TenantID),
		zap.String("line", lineID),
		zap.String("instance", inst.ID),
	)

	return b, nil
}

func (s *Service) Unbind(ctx context.Context, tenantID, lineID string) error {
	b, err := s.bindings.GetByLine(ctx, tenantID, lineID)
	if err != nil {
		return err
	}

	cred, err := s.credentials.GetActiveByTenant(ctx, tenantID)
	if err == nil {
		if err := s.crm.ActivateLine(ctx, cred, lineID, false); err != nil {
			// Desativação remota é melhor esforço; o vínculo local sai mesmo assim.
			s.log.Warn("binding: falha ao desativar linha no CRM", zap.Error(err))
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if err := s.bindings.Delete(ctx, b.ID); err != nil {
		return err
	}

	s.log.Info("binding: linha desvinculada",
		zap.String("tenant", tenantID),
		zap.String("line", lineID),
	)

	return nil
}

func (s *Service) List(ctx context.Context, tenantID string) ([]model.Binding, error) {
	return s.bindings.ListByTenant(ctx, tenantID)
}

func (s *Service) Lines(ctx context.Context, tenantID string) ([]crm.Line, error) {
	cred, err := s.credentials.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.crm.ListLines(ctx, cred)
}
