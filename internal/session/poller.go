package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage/model"
)

type StatusClient interface {
	Status(ctx context.Context, label string) (*StatusResultLite, error)
}

type StatusResultLite struct {
	State string
}

// PollerLock garante um único poller por instância entre processos.
type PollerLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type noopLock struct{}

func (noopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (noopLock) Release(ctx context.Context) error         { return nil }

func NoopLock() PollerLock { return noopLock{} }

// Poller consulta o status da instância em intervalo fixo e alimenta a
// máquina de sessão. Estourar a duração máxima encerra o poller deixando o
// estado como está.
type Poller struct {
	status      StatusClient
	machine     *Machine
	registry    *Registry
	interval    time.Duration
	maxDuration time.Duration
	log         *zap.Logger
}

func NewPoller(status StatusClient, machine *Machine, registry *Registry, interval, maxDuration time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxDuration <= 0 {
		maxDuration = 2 * time.Minute
	}
	return &Poller{
		status:      status,
		machine:     machine,
		registry:    registry,
		interval:    interval,
		maxDuration: maxDuration,
		log:         log,
	}
}

// Start registra e dispara o loop de polling para uma instância.
func (p *Poller) Start(ctx context.Context, tenantID, instanceID, label string, lock PollerLock) error {
	if lock == nil {
		lock = NoopLock()
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		p.log.Debug("poller: lock tomado por outro processo",
			zap.String("instance", instanceID),
		)
		return nil
	}

	// O ctx do chamador (normalmente o da requisição de connect) vale só para
	// adquirir o lock; o loop vive por conta própria, limitado por maxDuration
	// e pelo cancel do registry.
	pollCtx, cancel := context.WithCancel(context.Background())
	if err := p.registry.Register(tenantID, instanceID, cancel); err != nil {
		cancel()
		_ = lock.Release(ctx)
		return err
	}

	go func() {
		defer func() {
			p.registry.Unregister(tenantID, instanceID)
			_ = lock.Release(context.Background())
		}()
		p.loop(pollCtx, tenantID, instanceID, label)
	}()
	return nil
}

func (p *Poller) loop(ctx context.Context, tenantID, instanceID, label string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	deadline := time.NewTimer(p.maxDuration)
	defer deadline.Stop()

	consecutiveFailures := 0

	p.log.Info("poller: iniciado",
		zap.String("tenant", tenantID),
		zap.String("instance", instanceID),
		zap.Duration("interval", p.interval),
		zap.Duration("max", p.maxDuration),
	)

	for {
		select {
		case <-ctx.Done():
			p.log.Debug("poller: cancelado", zap.String("instance", instanceID))
			return

		case <-deadline.C:
			// Teto atingido sem conclusão; o estado fica como está.
			p.log.Info("poller: duração máxima atingida, encerrando",
				zap.String("instance", instanceID),
			)
			return

		case <-ticker.C:
			result, err := p.status.Status(ctx, label)
			if err != nil {
				consecutiveFailures++
				p.log.Warn("poller: consulta de status falhou",
					zap.String("instance", instanceID),
					zap.Int("failures", consecutiveFailures),
					zap.Error(err),
				)
				if consecutiveFailures >= 3 {
					_ = p.machine.Submit(ctx, StatusEvent{
						InstanceID: instanceID,
						Status:     model.InstanceStatusError,
					})
					return
				}
				continue
			}
			consecutiveFailures = 0

			status, ok := MapProviderState(result.State)
			if !ok {
				p.log.Debug("poller: estado desconhecido do provedor",
					zap.String("instance", instanceID),
					zap.String("state", result.State),
				)
				continue
			}

			_ = p.machine.Submit(ctx, StatusEvent{InstanceID: instanceID, Status: status})
			p.machine.TouchLastSeen(ctx, instanceID, time.Now().UTC())

			if status == model.InstanceStatusConnected {
				p.log.Info("poller: instância conectada, encerrando",
					zap.String("instance", instanceID),
				)
				return
			}
		}
	}
}
