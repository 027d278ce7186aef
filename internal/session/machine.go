package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

// ErrIllegalTransition: a transição pedida não consta na tabela de legalidade.
var ErrIllegalTransition = errors.New("session: transição ilegal")

// legalTransitions enumera o que cada estado aceita; o resto é rejeitado.
var legalTransitions = map[model.InstanceStatus][]model.InstanceStatus{
	model.InstanceStatusPendingQR:    {model.InstanceStatusConnected, model.InstanceStatusError},
	model.InstanceStatusConnected:    {model.InstanceStatusDisconnected, model.InstanceStatusError},
	model.InstanceStatusDisconnected: {model.InstanceStatusPendingQR, model.InstanceStatusError},
	model.InstanceStatusError:        {model.InstanceStatusPendingQR},
}

// Machine aplica transições de estado de pareamento sobre a instância.
type Machine struct {
	instances storage.InstanceRepository
	log       *zap.Logger
	events    chan StatusEvent
}

func NewMachine(instances storage.InstanceRepository, log *zap.Logger) *Machine {
	return &Machine{
		instances: instances,
		log:       log,
		events:    make(chan StatusEvent, 64),
	}
}

func (m *Machine) Submit(ctx context.Context, evt StatusEvent) error {
	select {
	case m.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-m.events:
			if err := m.Transition(ctx, evt); err != nil && !errors.Is(err, ErrIllegalTransition) {
				m.log.Warn("máquina de sessão: falha ao aplicar transição",
					zap.String("instance", evt.InstanceID),
					zap.String("to", string(evt.Status)),
					zap.Error(err),
				)
			}
		}
	}
}

// Transition valida e aplica uma transição. Entrar em connected limpa o QR;
// entrar em pending_qr grava o QR recebido.
func (m *Machine) Transition(ctx context.Context, evt StatusEvent) error {
	inst, err := m.instances.GetByID(ctx, evt.InstanceID)
	if err != nil {
		return fmt.Errorf("session: instância %s: %w", evt.InstanceID, err)
	}

	if inst.Status == evt.Status {
		// QR novo durante pending_qr ainda precisa ser gravado.
		if evt.Status == model.InstanceStatusPendingQR && evt.QR != "" && evt.QR != inst.QRCode {
			return m.instances.UpdateStatus(ctx, inst.ID, inst.Status, evt.QR)
		}
		return nil
	}

	if !legal(inst.Status, evt.Status) {
		m.log.Warn("máquina de sessão: transição rejeitada",
			zap.String("instance", inst.ID),
			zap.String("from", string(inst.Status)),
			zap.String("to", string(evt.Status)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, inst.Status, evt.Status)
	}

	qr := evt.QR
	if evt.Status == model.InstanceStatusConnected || evt.Status == model.InstanceStatusDisconnected || evt.Status == model.InstanceStatusError {
		qr = ""
	}

	if err := m.instances.UpdateStatus(ctx, inst.ID, evt.Status, qr); err != nil {
		return fmt.Errorf("session: atualizar status: %w", err)
	}

	m.log.Info("máquina de sessão: transição aplicada",
		zap.String("instance", inst.ID),
		zap.String("from", string(inst.Status)),
		zap.String("to", string(evt.Status)),
	)
	return nil
}

func MapProviderState(state string) (model.InstanceStatus, bool) {
	switch state {
	case "open", "connected":
		return model.InstanceStatusConnected, true
	case "close", "closed", "logged_out", "disconnected":
		return model.InstanceStatusDisconnected, true
	case "connecting", "pairing", "qr":
		return model.InstanceStatusPendingQR, true
	}
	return "", false
}

func legal(from, to model.InstanceStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (m *Machine) TouchLastSeen(ctx context.Context, instanceID string, at time.Time) {
	inst, err := m.instances.GetByID(ctx, instanceID)
	if err != nil {
		return
	}
	inst.LastSeenAt = &at
	if _, err := m.instances.Update(ctx, inst); err != nil {
		m.log.Debug("máquina de sessão: falha ao registrar last seen", zap.Error(err))
	}
}
