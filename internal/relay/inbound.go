package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/crm"
	"github.com/zapline/zapline/internal/pkg/backoff"
	"github.com/zapline/zapline/internal/pkg/queue"
	"github.com/zapline/zapline/internal/session"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
	"github.com/zapline/zapline/internal/wa"
)

type CrmSender interface {
	SendMessage(ctx context.Context, cred model.Credential, msg crm.InboundMessage) (*crm.SendResult, error)
}

// Inbound encaminha mensagens WA → CRM. O ack do webhook nunca depende do
// encaminhamento; falhas de entrega viram status na linha da mensagem.
type Inbound struct {
	instances     storage.InstanceRepository
	bindings      storage.BindingRepository
	messages      storage.MessageRepository
	conversations storage.ConversationRepository
	credentials   storage.CredentialRepository
	webhookLog    storage.WebhookLogRepository
	resolver      *Resolver
	guard         *Guard
	crmSender     CrmSender
	machine       *session.Machine
	retryQueue    queue.Queue
	policy        backoff.Policy
	log           *zap.Logger
}

type InboundOptions struct {
	Instances     storage.InstanceRepository
	Bindings      storage.BindingRepository
	Messages      storage.MessageRepository
	Conversations storage.ConversationRepository
	Credentials   storage.CredentialRepository
	WebhookLog    storage.WebhookLogRepository
	Resolver      *Resolver
	Guard         *Guard
	CrmSender     CrmSender
	Machine       *session.Machine
	RetryQueue    queue.Queue
	Policy        backoff.Policy
	Logger        *zap.Logger
}

func NewInbound(opts InboundOptions) *Inbound {
	return &Inbound{
		instances:     opts.Instances,
		bindings:      opts.Bindings,
		messages:      opts.Messages,
		conversations: opts.Conversations,
		credentials:   opts.Credentials,
		webhookLog:    opts.WebhookLog,
		resolver:      opts.Resolver,
		guard:         opts.Guard,
		crmSender:     opts.CrmSender,
		machine:       opts.Machine,
		retryQueue:    opts.RetryQueue,
		policy:        opts.Policy,
		log:           opts.Logger,
	}
}

// HandleWebhook processa um webhook bruto do provedor WA. Só sobem
// ErrInvalidSignature e falhas de infraestrutura; o resto é reconhecido.
func (r *Inbound) HandleWebhook(ctx context.Context, rawBody []byte, signatureHeader string) error {
	err := r.process(ctx, rawBody, signatureHeader)
	if acked(err) {
		return nil
	}
	return err
}

func (r *Inbound) process(ctx context.Context, rawBody []byte, signatureHeader string) error {
	evt, err := wa.DecodeWebhook(rawBody)
	if err != nil {
		r.logWebhook(ctx, model.WebhookLog{Source: "wa", Payload: string(rawBody), SignatureValid: false})
		r.log.Warn("inbound: payload não reconhecido, descartando", zap.Error(err))
		return nil
	}

	inst, err := r.instances.GetByLabel(ctx, evt.InstanceLabel)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logWebhook(ctx, model.WebhookLog{Source: "wa", InstanceLabel: evt.InstanceLabel, Payload: string(rawBody), SignatureValid: false})
			r.log.Warn("inbound: instância desconhecida", zap.String("label", evt.InstanceLabel))
			return ErrInstanceUnknown
		}
		return fmt.Errorf("inbound: resolver instância: %w", err)
	}

	secured := inst.Secret != ""
	valid := VerifySignature(rawBody, signatureHeader, inst.Secret)
	r.logWebhook(ctx, model.WebhookLog{
		Source:         "wa",
		TenantID:       inst.TenantID,
		InstanceLabel:  evt.InstanceLabel,
		Payload:        string(rawBody),
		SignatureValid: valid,
		Secured:        secured,
	})
	if !secured {
		r.log.Info("inbound: instância sem secret, aceitando sem verificação",
			zap.String("instance", inst.ID),
		)
	}
	if !valid {
		return ErrInvalidSignature
	}

	switch evt.Type {
	case wa.WaEventConnectionUpdate:
		return r.handleConnectionUpdate(ctx, inst, evt)
	case wa.WaEventQRUpdate:
		return r.machine.Submit(ctx, session.StatusEvent{
			InstanceID: inst.ID,
			Status:     model.InstanceStatusPendingQR,
			QR:         evt.QR,
		})
	case wa.WaEventMessage:
		return r.handleMessage(ctx, inst, evt)
	}
	return nil
}

func (r *Inbound) handleConnectionUpdate(ctx context.Context, inst model.Instance, evt wa.WaEvent) error {
	status, ok := session.MapProviderState(string(evt.State))
	if !ok {
		r.log.Debug("inbound: estado de conexão desconhecido", zap.String("state", string(evt.State)))
		return nil
	}
	return r.machine.Submit(ctx, session.StatusEvent{InstanceID: inst.ID, Status: status})
}

func (r *Inbound) handleMessage(ctx context.Context, inst model.Instance, evt wa.WaEvent) error {
	if evt.FromMe {
		// Eco da própria instância; o lado CRM já conhece a mensagem.
		return nil
	}

	ok, err := r.guard.ShouldProcessWa(ctx, evt.MessageID)
	if err != nil {
		return fmt.Errorf("inbound: guard: %w", err)
	}
	if !ok {
		r.log.Debug("inbound: redelivery detectada", zap.String("wa_id", evt.MessageID))
		return ErrDuplicateMessage
	}

	contact, conv, err := r.resolver.ResolveInbound(ctx, inst.TenantID, inst.ID, evt.FromPhone, evt.PushName)
	if err != nil {
		return err
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		TenantID:       inst.TenantID,
		ConversationID: conv.ID,
		Direction:      model.DirectionInbound,
		Body:           evt.Text,
		MediaURL:       evt.MediaURL,
		WaMessageID:    evt.MessageID,
		Status:         model.DeliveryReceived,
	}
	msg, err = r.messages.Create(ctx, msg)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Outro worker venceu a corrida do insert; mesmo efeito de dedupe.
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inbound: persistir mensagem: %w", err)
	}

	binding, err := r.bindings.GetByInstance(ctx, inst.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.log.Warn("inbound: instância sem linha vinculada, mensagem não encaminhada",
				zap.String("instance", inst.ID),
				zap.String("message", msg.ID),
			)
			return ErrNoBinding
		}
		return fmt.Errorf("inbound: resolver vínculo: %w", err)
	}

	return r.Forward(ctx, msg, conv, contact, binding.LineID)
}

// Forward executa a perna CRM do relay com retries limitados.
func (r *Inbound) Forward(ctx context.Context, msg model.Message, conv model.Conversation, contact model.Contact, lineID string) error {
	cred, err := r.credentials.GetActiveByTenant(ctx, msg.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.markFailed(ctx, msg.ID, "tenant sem credencial ativa")
			return nil
		}
		return fmt.Errorf("inbound: credencial: %w", err)
	}

	var result *crm.SendResult
	sendErr := r.policy.Retry(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.crmSender.SendMessage(ctx, cred, crm.InboundMessage{
			LineID:    lineID,
			ChatID:    conv.CrmChatID,
			UserPhone: contact.Phone,
			UserName:  contact.Name,
			Text:      msg.Body,
			FileURL:   msg.MediaURL,
			MessageID: msg.WaMessageID,
		})
		return classifyCrmErr(callErr)
	})
	if sendErr != nil {
		r.markFailed(ctx, msg.ID, sendErr.Error())
		r.enqueueRetry(ctx, msg, "in")
		return nil
	}

	if err := r.messages.UpdateStatus(ctx, msg.ID, model.DeliverySent, ""); err != nil {
		r.log.Warn("inbound: falha ao atualizar status", zap.String("message", msg.ID), zap.Error(err))
	}

	if result != nil && result.CrmChatID != "" && conv.CrmChatID == "" {
		conv.CrmChatID = result.CrmChatID
		conv.LastActivityAt = time.Now().UTC()
		if _, err := r.conversations.Update(ctx, conv); err != nil {
			r.log.Warn("inbound: falha ao gravar chat id do CRM",
				zap.String("conversation", conv.ID),
				zap.Error(err),
			)
		}
	}

	r.log.Info("inbound: mensagem encaminhada ao CRM",
		zap.String("message", msg.ID),
		zap.String("line", lineID),
	)
	return nil
}

func (r *Inbound) markFailed(ctx context.Context, messageID, reason string) {
	if err := r.messages.UpdateStatus(ctx, messageID, model.DeliveryFailed, reason); err != nil {
		r.log.Error("inbound: falha ao marcar mensagem como failed",
			zap.String("message", messageID),
			zap.Error(err),
		)
	}
}

func (r *Inbound) enqueueRetry(ctx context.Context, msg model.Message, direction string) {
	if r.retryQueue == nil {
		return
	}
	job := queue.Job{
		ID:        uuid.NewString(),
		TenantID:  msg.TenantID,
		MessageID: msg.ID,
		Direction: direction,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.retryQueue.Enqueue(ctx, job); err != nil {
		r.log.Warn("inbound: falha ao enfileirar reenvio", zap.String("message", msg.ID), zap.Error(err))
	}
}

func (r *Inbound) logWebhook(ctx context.Context, entry model.WebhookLog) {
	entry.ID = uuid.NewString()
	if _, err := r.webhookLog.Create(ctx, entry); err != nil {
		r.log.Error("inbound: falha ao gravar webhook_log", zap.Error(err))
	}
}

// classifyCrmErr decide o que vale repetir.
func classifyCrmErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *crm.RemoteApiError
	if errors.As(err, &apiErr) && !apiErr.Transient() && !apiErr.AuthExpired() {
		return backoff.Permanent(err)
	}
	return err
}
