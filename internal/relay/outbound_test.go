package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/pkg/backoff"
	"github.com/zapline/zapline/internal/storage/model"
	"github.com/zapline/zapline/internal/wa"
)

type fakeWaSender struct {
	mu        sync.Mutex
	calls     int
	errs      []error
	lastPhone string
	lastText  string
}

func (s *fakeWaSender) SendText(ctx context.Context, label, phone, text string) (*wa.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastPhone = phone
	s.lastText = text
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &wa.SendResult{MessageID: "wa-out-1"}, nil
}

func (s *fakeWaSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type outboundFixture struct {
	outbound      *Outbound
	instances     *fakeInstanceRepo
	bindings      *fakeBindingRepo
	messages      *fakeMessageRepo
	conversations *fakeConversationRepo
	contacts      *fakeContactRepo
	credentials   *fakeCredentialRepo
	webhookLog    *fakeWebhookLogRepo
	sender        *fakeWaSender
	queue         *fakeQueue
}

func newOutboundFixture(t *testing.T) *outboundFixture {
	t.Helper()
	f := &outboundFixture{
		instances:     newFakeInstanceRepo(),
		bindings:      newFakeBindingRepo(),
		messages:      newFakeMessageRepo(),
		conversations: newFakeConversationRepo(),
		contacts:      newFakeContactRepo(),
		credentials:   newFakeCredentialRepo(),
		webhookLog:    newFakeWebhookLogRepo(),
		sender:        &fakeWaSender{},
		queue:         &fakeQueue{},
	}
	f.outbound = NewOutbound(OutboundOptions{
		Instances:     f.instances,
		Bindings:      f.bindings,
		Messages:      f.messages,
		Conversations: f.conversations,
		Contacts:      f.contacts,
		Credentials:   f.credentials,
		WebhookLog:    f.webhookLog,
		Resolver:      NewResolver(f.contacts, f.conversations),
		Guard:         NewGuard(f.messages),
		WaSender:      f.sender,
		RetryQueue:    f.queue,
		Policy:        backoff.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Logger:        zap.NewNop(),
	})
	return f
}

// seed monta o cenário padrão: instância conectada, contato, conversa aberta
// já mapeada ao chat do CRM e, opcionalmente, o vínculo de linha.
func (f *outboundFixture) seed(ctx context.Context, withBinding bool, webhookSecret string) model.Conversation {
	f.instances.Create(ctx, model.Instance{
		ID: "inst-1", TenantID: "t1", Label: "loja-centro", Status: model.InstanceStatusConnected,
	})
	f.contacts.GetOrCreate(ctx, model.Contact{ID: "c1", TenantID: "t1", Phone: "5511912345678", Name: "Maria"})
	conv, _ := f.conversations.Create(ctx, model.Conversation{
		ID: "conv-1", TenantID: "t1", InstanceID: "inst-1", ContactID: "c1",
		CrmChatID: "chat-1", Status: model.ConversationOpen, LastActivityAt: time.Now().UTC(),
	})
	if withBinding {
		f.bindings.Upsert(ctx, model.Binding{ID: "b1", TenantID: "t1", LineID: "7", InstanceID: "inst-1"})
	}
	f.credentials.Create(ctx, model.Credential{
		ID: "cred-1", TenantID: "t1", AccessToken: "tok", WebhookSecret: webhookSecret,
		Active: true, ExpiresAt: time.Now().Add(time.Hour),
	})
	return conv
}

func crmMessagePayload(msgID, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "ONIMCONNECTORMESSAGEADD",
		"data": {
			"CHAT_ID": "chat-1",
			"MESSAGE_ID": %q,
			"MESSAGE": %q,
			"AUTHOR_ID": "42",
			"AUTHOR_TYPE": "operator"
		}
	}`, msgID, text))
}

func TestOutboundAgentMessageForwardedToWA(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")

	body := crmMessagePayload("crm-1", "bom dia, em que posso ajudar?")
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	msgs := f.messages.all()
	if len(msgs) != 1 {
		t.Fatalf("esperada 1 mensagem, há %d", len(msgs))
	}
	if msgs[0].Direction != model.DirectionOutbound {
		t.Errorf("direção = %q", msgs[0].Direction)
	}
	if msgs[0].Status != model.DeliverySent {
		t.Errorf("status = %q, esperado sent", msgs[0].Status)
	}
	if f.sender.lastPhone != "5511912345678" {
		t.Errorf("enviado para %q", f.sender.lastPhone)
	}
	if f.sender.lastText != "bom dia, em que posso ajudar?" {
		t.Errorf("texto enviado: %q", f.sender.lastText)
	}
}

func TestOutboundInvalidSignatureRejected(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "segredo-crm")

	body := crmMessagePayload("crm-1", "oi")
	err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", "sha256=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("esperado ErrInvalidSignature, veio %v", err)
	}
	if len(f.messages.all()) != 0 {
		t.Error("mensagem persistida apesar da assinatura inválida")
	}
}

func TestOutboundSignedPayloadAccepted(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "segredo-crm")

	body := crmMessagePayload("crm-1", "oi")
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", Sign(body, "segredo-crm")); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if len(f.messages.all()) != 1 {
		t.Error("payload assinado não foi processado")
	}
}

func TestOutboundNonAgentAuthorsIgnored(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")

	for _, authorType := range []string{"system", "bot", "connector", ""} {
		body := []byte(fmt.Sprintf(`{
			"event": "ONIMCONNECTORMESSAGEADD",
			"data": {"CHAT_ID": "chat-1", "MESSAGE_ID": "crm-%s", "MESSAGE": "eco", "AUTHOR_TYPE": %q}
		}`, authorType, authorType))
		if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
			t.Fatalf("autor %q: %v", authorType, err)
		}
	}
	if len(f.messages.all()) != 0 {
		t.Error("eco de sistema/bot foi persistido")
	}
	if f.sender.callCount() != 0 {
		t.Error("eco de sistema/bot foi enviado ao WA")
	}
}

func TestOutboundRedeliveryProducesSingleMessage(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")

	body := crmMessagePayload("crm-dup", "oi")
	for i := 0; i < 3; i++ {
		if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
			t.Fatalf("entrega %d: %v", i+1, err)
		}
	}
	if got := len(f.messages.all()); got != 1 {
		t.Fatalf("redelivery criou %d mensagens", got)
	}
	if f.sender.callCount() != 1 {
		t.Errorf("WA chamado %d vezes para a mesma mensagem", f.sender.callCount())
	}
}

func TestOutboundNoBindingFailsMessageWithoutSend(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, false, "")

	body := crmMessagePayload("crm-1", "oi")
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	msgs := f.messages.all()
	if len(msgs) != 1 {
		t.Fatalf("mensagem deveria ficar registrada, há %d", len(msgs))
	}
	if msgs[0].Status != model.DeliveryFailed {
		t.Errorf("status = %q, esperado failed", msgs[0].Status)
	}
	if msgs[0].FailReason == "" {
		t.Error("failed sem motivo registrado")
	}
	if f.sender.callCount() != 0 {
		t.Error("WA chamado sem vínculo de linha")
	}
}

func TestOutboundUnknownChatAcked(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")

	body := []byte(`{
		"event": "ONIMCONNECTORMESSAGEADD",
		"data": {"CHAT_ID": "chat-inexistente", "MESSAGE_ID": "crm-1", "MESSAGE": "oi", "AUTHOR_TYPE": "operator"}
	}`)
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("chat sem conversa deveria ser reconhecido sem erro: %v", err)
	}
	if len(f.messages.all()) != 0 {
		t.Error("mensagem criada para chat sem conversa")
	}
}

func TestOutboundSendExhaustionAcksAndQueues(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")
	f.sender.errs = []error{
		&wa.RemoteApiError{Status: 503},
		&wa.RemoteApiError{Status: 503},
		&wa.RemoteApiError{Status: 503},
	}

	body := crmMessagePayload("crm-1", "oi")
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("falha de entrega não pode virar erro do webhook: %v", err)
	}

	if f.sender.callCount() != 3 {
		t.Errorf("esperadas 3 tentativas, houve %d", f.sender.callCount())
	}
	msgs := f.messages.all()
	if len(msgs) != 1 || msgs[0].Status != model.DeliveryFailed {
		t.Fatalf("mensagem deveria estar failed: %+v", msgs)
	}
	if f.queue.len() != 1 {
		t.Errorf("fila de reenvio com %d jobs, esperado 1", f.queue.len())
	}
}

func TestOutboundTransientFailuresRecoverWithinBudget(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")
	f.sender.errs = []error{
		&wa.RemoteApiError{Status: 503},
		&wa.RemoteApiError{Status: 503},
		nil,
	}

	body := crmMessagePayload("crm-1", "oi")
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if f.sender.callCount() != 3 {
		t.Errorf("esperadas 3 tentativas, houve %d", f.sender.callCount())
	}
	msgs := f.messages.all()
	if len(msgs) != 1 || msgs[0].Status != model.DeliverySent {
		t.Fatalf("mensagem deveria estar sent após recuperar: %+v", msgs)
	}
	if f.queue.len() != 0 {
		t.Errorf("nada deveria ir para a fila de reenvio, há %d jobs", f.queue.len())
	}
}

func TestOutboundSessionCloseClosesConversation(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	conv := f.seed(ctx, true, "")

	body := []byte(`{
		"event": "ONIMOPENLINESSESSIONCLOSE",
		"data": {"CHAT_ID": "chat-1"}
	}`)
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	got, err := f.conversations.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.ConversationClosed {
		t.Errorf("status = %q, esperado closed", got.Status)
	}
}

func TestOutboundSessionTransferReassignsAgent(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	conv := f.seed(ctx, true, "")

	body := []byte(`{
		"event": "ONIMOPENLINESSESSIONTRANSFER",
		"data": {"CHAT_ID": "chat-1", "AGENT_ID": "99"}
	}`)
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	got, _ := f.conversations.GetByID(ctx, conv.ID)
	if got.AssignedAgent != "99" {
		t.Errorf("agente = %q, esperado 99", got.AssignedAgent)
	}
	if got.Status != model.ConversationOpen {
		t.Errorf("transferência não pode fechar a conversa, status = %q", got.Status)
	}
}

func TestOutboundFileOnlyMessageUsesLinkAsBody(t *testing.T) {
	f := newOutboundFixture(t)
	ctx := context.Background()
	f.seed(ctx, true, "")

	body := []byte(`{
		"event": "ONIMCONNECTORMESSAGEADD",
		"data": {
			"CHAT_ID": "chat-1",
			"MESSAGE_ID": "crm-file",
			"AUTHOR_TYPE": "operator",
			"FILES": [{"link": "https://portal.example/f/laudo.pdf"}]
		}
	}`)
	if err := f.outbound.HandleWebhook(ctx, "t1", body, "application/json", ""); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	msgs := f.messages.all()
	if len(msgs) != 1 {
		t.Fatalf("esperada 1 mensagem, há %d", len(msgs))
	}
	if msgs[0].Body != "https://portal.example/f/laudo.pdf" {
		t.Errorf("corpo = %q", msgs[0].Body)
	}
	if msgs[0].MediaURL != "https://portal.example/f/laudo.pdf" {
		t.Errorf("media url = %q", msgs[0].MediaURL)
	}
}
