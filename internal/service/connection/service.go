package connection

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/session"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
	"github.com/zapline/zapline/internal/wa"
)

var (
	ErrInvalidLabel = errors.New("label da instância inválido")
	ErrNotConnected = errors.New("instância não está conectada")
)

var labelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

type LockFactory func(instanceID string) session.PollerLock

// Service dirige o ciclo de vida das instâncias WA. O estado persistido é
// sempre alterado pela máquina de sessão, nunca direto pelo service.
type Service struct {
	instances storage.InstanceRepository
	waClient  *wa.Client
	machine   *session.Machine
	poller    *session.Poller
	registry  *session.Registry
	lockFor   LockFactory
	log       *zap.Logger
}

func NewService(
	instances storage.InstanceRepository,
	waClient *wa.Client,
	machine *session.Machine,
	poller *session.Poller,
	registry *session.Registry,
	lockFor LockFactory,
	log *zap.Logger,
) *Service {
	if lockFor == nil {
		lockFor = func(string) session.PollerLock { return session.NoopLock() }
	}
	return &Service{
		instances: instances,
		waClient:  waClient,
		machine:   machine,
		poller:    poller,
		registry:  registry,
		lockFor:   lockFor,
		log:       log,
	}
}

type CreateInput struct {
	TenantID string
	Label    string
	Secret   string
}

type CreateOutput struct {
	Instance model.Instance
	// Token é o token operacional em claro; só aparece na criação.
	Token string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (CreateOutput, error) {
	label := strings.TrimSpace(strings.ToLower(input.Label))
	if !labelPattern.MatchString(label) {
		return CreateOutput{}, ErrInvalidLabel
	}

	plainToken := uuid.NewString()
	hashBytes := sha256.Sum256([]byte(plainToken))

	inst := model.Instance{
		ID:        uuid.NewString(),
		TenantID:  input.TenantID,
		Label:     label,
		Status:    model.InstanceStatusDisconnected,
		Secret:    strings.TrimSpace(input.Secret),
		TokenHash: hex.EncodeToString(hashBytes[:]),
	}

	created, err := s.instances.Create(ctx, inst)
	if err != nil {
		return CreateOutput{}, err
	}

	if err := s.waClient.CreateInstance(ctx, label); err != nil {
		if delErr := s.instances.Delete(ctx, created.ID); delErr != nil {
			s.log.Error("connection: falha ao desfazer instância local", zap.Error(delErr))
		}
		return CreateOutput{}, err
	}

	s.log.Info("connection: instância criada",
		zap.String("tenant", input.TenantID),
		zap.String("label", label),
	)

	return CreateOutput{Instance: created, Token: plainToken}, nil
}

type ConnectOutput struct {
	Instance model.Instance
	// QRPNG é o QR renderizado em PNG base64, pronto para exibição.
	QRPNG       string
	PairingCode string
}

// Connect pede o pareamento ao provedor, transiciona para pending_qr e deixa
// o poller acompanhando.
func (s *Service) Connect(ctx context.Context, tenantID, instanceID string) (ConnectOutput, error) {
	inst, err := s.getOwned(ctx, tenantID, instanceID)
	if err != nil {
		return ConnectOutput{}, err
	}

	result, err := s.waClient.Connect(ctx, inst.Label)
	if err != nil {
		return ConnectOutput{}, err
	}

	// Sem base64 pronto do provedor, o código cru é o material do QR.
	qr := result.QRBase64
	if qr == "" {
		qr = result.PairingCode
	}
	if err := s.machine.Submit(ctx, session.StatusEvent{
		InstanceID: inst.ID,
		Status:     model.InstanceStatusPendingQR,
		QR:         qr,
	}); err != nil {
		return ConnectOutput{}, err
	}

	if err := s.poller.Start(ctx, tenantID, inst.ID, inst.Label, s.lockFor(inst.ID)); err != nil {
		s.log.Warn("connection: poller não iniciado", zap.String("instance", inst.ID), zap.Error(err))
	}

	out := ConnectOutput{PairingCode: result.PairingCode}
	out.QRPNG, err = renderQR(qr)
	if err != nil {
		s.log.Warn("connection: falha ao renderizar QR", zap.Error(err))
		out.QRPNG = ""
	}

	out.Instance, err = s.instances.GetByID(ctx, inst.ID)
	if err != nil {
		return ConnectOutput{}, err
	}

	return out, nil
}

func (s *Service) QR(ctx context.Context, tenantID, instanceID string) (ConnectOutput, error) {
	inst, err := s.getOwned(ctx, tenantID, instanceID)
	if err != nil {
		return ConnectOutput{}, err
	}

	qr := inst.QRCode
	if qr == "" {
		result, err := s.waClient.FetchQR(ctx, inst.Label)
		if err != nil {
			return ConnectOutput{}, err
		}
		qr = result.QRBase64
		if qr == "" {
			qr = result.PairingCode
		}
	}

	out := ConnectOutput{Instance: inst}
	out.QRPNG, err = renderQR(qr)
	if err != nil {
		return ConnectOutput{}, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, tenantID, instanceID string) (model.Instance, error) {
	return s.getOwned(ctx, tenantID, instanceID)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]model.Instance, error) {
	return s.instances.ListByTenant(ctx, tenantID)
}

func (s *Service) Disconnect(ctx context.Context, tenantID, instanceID string) error {
	inst, err := s.getOwned(ctx, tenantID, instanceID)
	if err != nil {
		return err
	}

	s.registry.Unregister(tenantID, inst.ID)

	if err := s.waClient.Logout(ctx, inst.Label); err != nil {
		return err
	}

	return s.machine.Submit(ctx, session.StatusEvent{
		InstanceID: inst.ID,
		Status:     model.InstanceStatusDisconnected,
	})
}

// Delete remove a instância dos dois lados, provedor primeiro.
func (s *Service) Delete(ctx context.Context, tenantID, instanceID string) error {
	inst, err := s.getOwned(ctx, tenantID, instanceID)
	if err != nil {
		return err
	}

	s.registry.Unregister(tenantID, inst.ID)

	if err := s.waClient.DeleteInstance(ctx, inst.Label); err != nil {
		s.log.Warn("connection: falha ao remover instância no provedor",
			zap.String("label", inst.Label),
			zap.Error(err),
		)
	}

	return s.instances.Delete(ctx, inst.ID)
}

func (s *Service) RotateToken(ctx context.Context, tenantID, instanceID string) (string, error) {
	inst, err := s.getOwned(ctx, tenantID, instanceID)
	if err != nil {
		return "", err
	}

	plainToken := uuid.NewString()
	hashBytes := sha256.Sum256([]byte(plainToken))
	inst.TokenHash = hex.EncodeToString(hashBytes[:])

	if _, err := s.instances.Update(ctx, inst); err != nil {
		return "", err
	}

	return plainToken, nil
}

// ResumePollers religa o acompanhamento das instâncias que ficaram em
// pending_qr durante um restart.
func (s *Service) ResumePollers(ctx context.Context) error {
	instances, err := s.instances.List(ctx)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		if inst.Status != model.InstanceStatusPendingQR {
			continue
		}
		if err := s.poller.Start(ctx, inst.TenantID, inst.ID, inst.Label, s.lockFor(inst.ID)); err != nil {
			s.log.Warn("connection: poller não retomado",
				zap.String("instance", inst.ID),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("connection: poller retomado",
			zap.String("tenant", inst.TenantID),
			zap.String("instance", inst.ID),
		)
	}
	return nil
}

func (s *Service) getOwned(ctx context.Context, tenantID, instanceID string) (model.Instance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return model.Instance{}, err
	}
	if inst.TenantID != tenantID {
		return model.Instance{}, storage.ErrNotFound
	}
	return inst, nil
}

// renderQR aceita o conteúdo bruto do QR ou um PNG já pronto do provedor.
func renderQR(qr string) (string, error) {
	if qr == "" {
		return "", nil
	}
	if strings.HasPrefix(qr, "data:image") {
		return qr, nil
	}
	png, err := qrcode.Encode(qr, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
