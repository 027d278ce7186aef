package relay

import (
	"context"
	"sync"
	"time"

	"github.com/zapline/zapline/internal/pkg/queue"
	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

// Fakes em memória dos repositórios, com a mesma semântica de erro dos
// drivers reais (ErrNotFound / ErrDuplicate).

type fakeInstanceRepo struct {
	mu    sync.Mutex
	items map[string]model.Instance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{items: map[string]model.Instance{}}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.items {
		if other.Label == inst.Label {
			return model.Instance{}, storage.ErrDuplicate
		}
	}
	r.items[inst.ID] = inst
	return inst, nil
}

func (r *fakeInstanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	return inst, nil
}

func (r *fakeInstanceRepo) GetByLabel(ctx context.Context, label string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.items {
		if inst.Label == label {
			return inst, nil
		}
	}
	return model.Instance{}, storage.ErrNotFound
}

func (r *fakeInstanceRepo) GetByTokenHash(ctx context.Context, hash string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.items {
		if inst.TokenHash == hash {
			return inst, nil
		}
	}
	return model.Instance{}, storage.ErrNotFound
}

func (r *fakeInstanceRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Instance
	for _, inst := range r.items {
		if inst.TenantID == tenantID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Instance
	for _, inst := range r.items {
		out = append(out, inst)
	}
	return out, nil
}

func (r *fakeInstanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[inst.ID]; !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	r.items[inst.ID] = inst
	return inst, nil
}

func (r *fakeInstanceRepo) UpdateStatus(ctx context.Context, id string, status model.InstanceStatus, qr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	inst.Status = status
	inst.QRCode = qr
	r.items[id] = inst
	return nil
}

func (r *fakeInstanceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type fakeBindingRepo struct {
	mu    sync.Mutex
	items map[string]model.Binding
}

func newFakeBindingRepo() *fakeBindingRepo {
	return &fakeBindingRepo{items: map[string]model.Binding{}}
}

func (r *fakeBindingRepo) Upsert(ctx context.Context, b model.Binding) (model.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.items {
		if (other.TenantID == b.TenantID && other.LineID == b.LineID) || other.InstanceID == b.InstanceID {
			delete(r.items, id)
		}
	}
	r.items[b.ID] = b
	return b, nil
}

func (r *fakeBindingRepo) GetByLine(ctx context.Context, tenantID, lineID string) (model.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.items {
		if b.TenantID == tenantID && b.LineID == lineID {
			return b, nil
		}
	}
	return model.Binding{}, storage.ErrNotFound
}

func (r *fakeBindingRepo) GetByInstance(ctx context.Context, instanceID string) (model.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.items {
		if b.InstanceID == instanceID {
			return b, nil
		}
	}
	return model.Binding{}, storage.ErrNotFound
}

func (r *fakeBindingRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Binding
	for _, b := range r.items {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBindingRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type fakeContactRepo struct {
	mu    sync.Mutex
	items map[string]model.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{items: map[string]model.Contact{}}
}

func (r *fakeContactRepo) GetOrCreate(ctx context.Context, c model.Contact) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.items {
		if other.TenantID == c.TenantID && other.Phone == c.Phone {
			return other, nil
		}
	}
	c.CreatedAt = time.Now().UTC()
	r.items[c.ID] = c
	return c, nil
}

func (r *fakeContactRepo) GetByID(ctx context.Context, id string) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return model.Contact{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *fakeContactRepo) GetByPhone(ctx context.Context, tenantID, phone string) (model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, nil
		}
	}
	return model.Contact{}, storage.ErrNotFound
}

type fakeConversationRepo struct {
	mu    sync.Mutex
	items map[string]model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{items: map[string]model.Conversation{}}
}

func (r *fakeConversationRepo) Create(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.Status == model.ConversationOpen {
		for _, other := range r.items {
			if other.Status == model.ConversationOpen &&
				other.TenantID == conv.TenantID &&
				other.InstanceID == conv.InstanceID &&
				other.ContactID == conv.ContactID {
				return model.Conversation{}, storage.ErrDuplicate
			}
		}
	}
	conv.CreatedAt = time.Now().UTC()
	r.items[conv.ID] = conv
	return conv, nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return model.Conversation{}, storage.ErrNotFound
	}
	return conv, nil
}

func (r *fakeConversationRepo) GetOpen(ctx context.Context, tenantID, instanceID, contactID string) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.items {
		if conv.Status == model.ConversationOpen &&
			conv.TenantID == tenantID &&
			conv.InstanceID == instanceID &&
			conv.ContactID == contactID {
			return conv, nil
		}
	}
	return model.Conversation{}, storage.ErrNotFound
}

func (r *fakeConversationRepo) GetByCrmChat(ctx context.Context, tenantID, crmChatID string) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.items {
		if conv.TenantID == tenantID && conv.CrmChatID == crmChatID && crmChatID != "" {
			return conv, nil
		}
	}
	return model.Conversation{}, storage.ErrNotFound
}

func (r *fakeConversationRepo) Update(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[conv.ID]; !ok {
		return model.Conversation{}, storage.ErrNotFound
	}
	r.items[conv.ID] = conv
	return conv, nil
}

func (r *fakeConversationRepo) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	conv.Status = model.ConversationClosed
	r.items[id] = conv
	return nil
}

type fakeMessageRepo struct {
	mu    sync.Mutex
	items map[string]model.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{items: map[string]model.Message{}}
}

func (r *fakeMessageRepo) Create(ctx context.Context, msg model.Message) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.items {
		if msg.WaMessageID != "" && other.WaMessageID == msg.WaMessageID {
			return model.Message{}, storage.ErrDuplicate
		}
		if msg.CrmMessageID != "" && other.CrmMessageID == msg.CrmMessageID {
			return model.Message{}, storage.ErrDuplicate
		}
	}
	msg.CreatedAt = time.Now().UTC()
	r.items[msg.ID] = msg
	return msg, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return model.Message{}, storage.ErrNotFound
	}
	return msg, nil
}

func (r *fakeMessageRepo) GetByWaID(ctx context.Context, waMessageID string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.items {
		if msg.WaMessageID == waMessageID && waMessageID != "" {
			return msg, nil
		}
	}
	return model.Message{}, storage.ErrNotFound
}

func (r *fakeMessageRepo) GetByCrmID(ctx context.Context, crmMessageID string) (model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.items {
		if msg.CrmMessageID == crmMessageID && crmMessageID != "" {
			return msg, nil
		}
	}
	return model.Message{}, storage.ErrNotFound
}

func (r *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, msg := range r.items {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus, failReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	msg.Status = status
	msg.FailReason = failReason
	r.items[id] = msg
	return nil
}

func (r *fakeMessageRepo) all() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, msg := range r.items {
		out = append(out, msg)
	}
	return out
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	items map[string]model.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{items: map[string]model.Credential{}}
}

func (r *fakeCredentialRepo) Create(ctx context.Context, cred model.Credential) (model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[cred.ID] = cred
	return cred, nil
}

func (r *fakeCredentialRepo) GetActiveByTenant(ctx context.Context, tenantID string) (model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cred := range r.items {
		if cred.TenantID == tenantID && cred.Active {
			return cred, nil
		}
	}
	return model.Credential{}, storage.ErrNotFound
}

func (r *fakeCredentialRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.items[id]
	if !ok {
		return model.Credential{}, storage.ErrNotFound
	}
	return cred, nil
}

func (r *fakeCredentialRepo) Update(ctx context.Context, cred model.Credential) (model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[cred.ID]; !ok {
		return model.Credential{}, storage.ErrNotFound
	}
	r.items[cred.ID] = cred
	return cred, nil
}

func (r *fakeCredentialRepo) Deactivate(ctx context.Context, id string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	cred.Active = false
	cred.RevokedAt = &revokedAt
	r.items[id] = cred
	return nil
}

type fakeWebhookLogRepo struct {
	mu      sync.Mutex
	entries []model.WebhookLog
}

func newFakeWebhookLogRepo() *fakeWebhookLogRepo {
	return &fakeWebhookLogRepo{}
}

func (r *fakeWebhookLogRepo) Create(ctx context.Context, entry model.WebhookLog) (model.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *fakeWebhookLogRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]model.WebhookLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.WebhookLog
	for _, e := range r.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeWebhookLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *fakeQueue) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *fakeQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
