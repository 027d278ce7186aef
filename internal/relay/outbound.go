package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/crm"
	"github.com/zapline/zapline/internal/pkg/backoff"
	"github.com/zapline/zapline/internal/pkg/queue"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
	"github.com/zapline/zapline/internal/wa"
)

type WaSender interface {
	SendText(ctx context.Context, label, phone, text string) (*wa.SendResult, error)
}

// Outbound encaminha eventos CRM → WA com a mesma política de ack do relay
// de entrada.
type Outbound struct {
	instances     storage.InstanceRepository
	bindings      storage.BindingRepository
	messages      storage.MessageRepository
	conversations storage.ConversationRepository
	contacts      storage.ContactRepository
	credentials   storage.CredentialRepository
	webhookLog    storage.WebhookLogRepository
	resolver      *Resolver
	guard         *Guard
	waSender      WaSender
	retryQueue    queue.Queue
	policy        backoff.Policy
	log           *zap.Logger
}

type OutboundOptions struct {
	Instances     storage.InstanceRepository
	Bindings      storage.BindingRepository
	Messages      storage.MessageRepository
	Conversations storage.ConversationRepository
	Contacts      storage.ContactRepository
	Credentials   storage.CredentialRepository
	WebhookLog    storage.WebhookLogRepository
	Resolver      *Resolver
	Guard         *Guard
	WaSender      WaSender
	RetryQueue    queue.Queue
	Policy        backoff.Policy
	Logger        *zap.Logger
}

func NewOutbound(opts OutboundOptions) *Outbound {
	return &Outbound{
		instances:     opts.Instances,
		bindings:      opts.Bindings,
		messages:      opts.Messages,
		conversations: opts.Conversations,
		contacts:      opts.Contacts,
		credentials:   opts.Credentials,
		webhookLog:    opts.WebhookLog,
		resolver:      opts.Resolver,
		guard:         opts.Guard,
		waSender:      opts.WaSender,
		retryQueue:    opts.RetryQueue,
		policy:        opts.Policy,
		log:           opts.Logger,
	}
}

// HandleWebhook processa um webhook bruto do CRM. O tenant vem da rota e o
// secret de verificação mora na credencial ativa.
func (r *Outbound) HandleWebhook(ctx context.Context, tenantID string, rawBody []byte, contentType, signatureHeader string) error {
	err := r.process(ctx, tenantID, rawBody, contentType, signatureHeader)
	if acked(err) {
		return nil
	}
	return err
}

func (r *Outbound) process(ctx context.Context, tenantID string, rawBody []byte, contentType, signatureHeader string) error {
	evt, err := crm.DecodeWebhook(rawBody, contentType)
	if err != nil {
		r.logWebhook(ctx, model.WebhookLog{Source: "crm", TenantID: tenantID, Payload: string(rawBody), SignatureValid: false})
		r.log.Warn("outbound: payload não reconhecido, descartando", zap.Error(err))
		return nil
	}
	evt.TenantID = tenantID

	secret := ""
	cred, credErr := r.credentials.GetActiveByTenant(ctx, tenantID)
	if credErr == nil {
		secret = cred.WebhookSecret
	} else if !errors.Is(credErr, storage.ErrNotFound) {
		return fmt.Errorf("outbound: credencial: %w", credErr)
	}

	secured := secret != ""
	valid := VerifySignature(rawBody, signatureHeader, secret)
	r.logWebhook(ctx, model.WebhookLog{
		Source:         "crm",
		TenantID:       tenantID,
		Payload:        string(rawBody),
		SignatureValid: valid,
		Secured:        secured,
	})
	if !secured {
		r.log.Info("outbound: tenant sem secret de webhook, aceitando sem verificação",
			zap.String("tenant", tenantID),
		)
	}
	if !valid {
		return ErrInvalidSignature
	}

	switch evt.Type {
	case crm.CrmEventSessionClose:
		return r.handleSessionClose(ctx, evt)
	case crm.CrmEventSessionTransfer:
		return r.handleSessionTransfer(ctx, evt)
	case crm.CrmEventMessageAdd:
		return r.handleMessageAdd(ctx, evt)
	}
	return nil
}

func (r *Outbound) handleSessionClose(ctx context.Context, evt crm.CrmEvent) error {
	conv, err := r.resolver.ResolveByCrmChat(ctx, evt.TenantID, evt.ChatID)
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			r.log.Warn("outbound: close para chat sem conversa", zap.String("chat", evt.ChatID))
			return nil
		}
		return err
	}
	if err := r.conversations.Close(ctx, conv.ID); err != nil {
		return fmt.Errorf("outbound: encerrar conversa: %w", err)
	}
	r.log.Info("outbound: conversa encerrada pelo CRM", zap.String("conversation", conv.ID))
	return nil
}

func (r *Outbound) handleSessionTransfer(ctx context.Context, evt crm.CrmEvent) error {
	conv, err := r.resolver.ResolveByCrmChat(ctx, evt.TenantID, evt.ChatID)
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			r.log.Warn("outbound: transfer para chat sem conversa", zap.String("chat", evt.ChatID))
			return nil
		}
		return err
	}
	conv.AssignedAgent = evt.AgentID
	conv.LastActivityAt = time.Now().UTC()
	if _, err := r.conversations.Update(ctx, conv); err != nil {
		return fmt.Errorf("outbound: transferir conversa: %w", err)
	}
	r.log.Info("outbound: conversa transferida",
		zap.String("conversation", conv.ID),
		zap.String("agent", evt.AgentID),
	)
	return nil
}

func (r *Outbound) handleMessageAdd(ctx context.Context, evt crm.CrmEvent) error {
	if !evt.FromAgent() {
		// Eco de sistema, bot ou do próprio conector; já refletido do outro lado.
		return nil
	}

	ok, err := r.guard.ShouldProcessCrm(ctx, evt.MessageID)
	if err != nil {
		return fmt.Errorf("outbound: guard: %w", err)
	}
	if !ok {
		r.log.Debug("outbound: redelivery detectada", zap.String("crm_id", evt.MessageID))
		return ErrDuplicateMessage
	}

	conv, err := r.resolver.ResolveByCrmChat(ctx, evt.TenantID, evt.ChatID)
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			r.log.Warn("outbound: mensagem para chat sem conversa", zap.String("chat", evt.ChatID))
			return nil
		}
		return err
	}

	body := evt.Text
	if body == "" && len(evt.Files) > 0 {
		body = strings.Join(evt.Files, "\n")
	}
	msg := model.Message{
		ID:             uuid.NewString(),
		TenantID:       evt.TenantID,
		ConversationID: conv.ID,
		Direction:      model.DirectionOutbound,
		Body:           body,
		CrmMessageID:   evt.MessageID,
		Status:         model.DeliveryReceived,
	}
	if len(evt.Files) > 0 {
		msg.MediaURL = evt.Files[0]
	}
	msg, err = r.messages.Create(ctx, msg)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("outbound: persistir mensagem: %w", err)
	}

	if _, err := r.bindings.GetByInstance(ctx, conv.InstanceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.markFailed(ctx, msg.ID, "instância sem linha vinculada, mensagem não encaminhada")
			r.log.Warn("outbound: instância sem vínculo, mensagem não encaminhada",
				zap.String("instance", conv.InstanceID),
				zap.String("message", msg.ID),
			)
			return ErrNoBinding
		}
		return fmt.Errorf("outbound: resolver vínculo: %w", err)
	}

	return r.Forward(ctx, msg, conv)
}

// Forward executa a perna WA do relay com retries limitados.
func (r *Outbound) Forward(ctx context.Context, msg model.Message, conv model.Conversation) error {
	inst, err := r.instances.GetByID(ctx, conv.InstanceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.markFailed(ctx, msg.ID, "instância da conversa não existe mais")
			return nil
		}
		return fmt.Errorf("outbound: instância: %w", err)
	}
	contact, err := r.contacts.GetByID(ctx, conv.ContactID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.markFailed(ctx, msg.ID, "contato da conversa não existe mais")
			return nil
		}
		return fmt.Errorf("outbound: contato: %w", err)
	}

	var result *wa.SendResult
	sendErr := r.policy.Retry(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.waSender.SendText(ctx, inst.Label, contact.Phone, msg.Body)
		return classifyWaErr(callErr)
	})
	if sendErr != nil {
		r.markFailed(ctx, msg.ID, sendErr.Error())
		r.enqueueRetry(ctx, msg, "out")
		return nil
	}

	if err := r.messages.UpdateStatus(ctx, msg.ID, model.DeliverySent, ""); err != nil {
		r.log.Warn("outbound: falha ao atualizar status", zap.String("message", msg.ID), zap.Error(err))
	}
	if result != nil && result.MessageID != "" {
		r.log.Debug("outbound: id do provedor", zap.String("wa_id", result.MessageID))
	}

	conv.LastActivityAt = time.Now().UTC()
	if _, err := r.conversations.Update(ctx, conv); err != nil {
		r.log.Warn("outbound: falha ao atualizar atividade da conversa",
			zap.String("conversation", conv.ID),
			zap.Error(err),
		)
	}

	r.log.Info("outbound: mensagem encaminhada ao WA",
		zap.String("message", msg.ID),
		zap.String("instance", inst.Label),
	)
	return nil
}

func (r *Outbound) markFailed(ctx context.Context, messageID, reason string) {
	if err := r.messages.UpdateStatus(ctx, messageID, model.DeliveryFailed, reason); err != nil {
		r.log.Error("outbound: falha ao marcar mensagem como failed",
			zap.String("message", messageID),
			zap.Error(err),
		)
	}
}

func (r *Outbound) enqueueRetry(ctx context.Context, msg model.Message, direction string) {
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
		r.log.Warn("outbound: falha ao enfileirar reenvio", zap.String("message", msg.ID), zap.Error(err))
	}
}

func (r *Outbound) logWebhook(ctx context.Context, entry model.WebhookLog) {
	entry.ID = uuid.NewString()
	if _, err := r.webhookLog.Create(ctx, entry); err != nil {
		r.log.Error("outbound: falha ao gravar webhook_log", zap.Error(err))
	}
}

// classifyWaErr decide o que vale repetir.
func classifyWaErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *wa.RemoteApiError
	if errors.As(err, &apiErr) && !apiErr.Transient() {
		return backoff.Permanent(err)
	}
	return err
}
