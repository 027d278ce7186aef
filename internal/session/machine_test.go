package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/zapline/zapline/internal/storage"
	"github.com/zapline/zapline/internal/storage/model"
)

type stubInstanceRepo struct {
	mu    sync.Mutex
	items map[string]model.Instance
}

func newStubInstanceRepo(insts ...model.Instance) *stubInstanceRepo {
	r := &stubInstanceRepo{items: map[string]model.Instance{}}
	for _, inst := range insts {
		r.items[inst.ID] = inst
	}
	return r
}

func (r *stubInstanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[inst.ID] = inst
	return inst, nil
}

func (r *stubInstanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	return inst, nil
}

func (r *stubInstanceRepo) GetByLabel(ctx context.Context, label string) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.items {
		if inst.Label == label {
			return inst, nil
		}
	}
	return model.Instance{}, storage.ErrNotFound
}

func (r *stubInstanceRepo) GetByTokenHash(ctx context.Context, hash string) (model.Instance, error) {
	return model.Instance{}, storage.ErrNotFound
}

func (r *stubInstanceRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.Instance, error) {
	return nil, nil
}

func (r *stubInstanceRepo) List(ctx context.Context) ([]model.Instance, error) { return nil, nil }

func (r *stubInstanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[inst.ID]; !ok {
		return model.Instance{}, storage.ErrNotFound
	}
	r.items[inst.ID] = inst
	return inst, nil
}

func (r *stubInstanceRepo) UpdateStatus(ctx context.Context, id string, status model.InstanceStatus, qr string) error {
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

func (r *stubInstanceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func TestTransitionLegalPaths(t *testing.T) {
	cases := []struct {
		from, to model.InstanceStatus
	}{
		{model.InstanceStatusDisconnected, model.InstanceStatusPendingQR},
		{model.InstanceStatusPendingQR, model.InstanceStatusConnected},
		{model.InstanceStatusPendingQR, model.InstanceStatusError},
		{model.InstanceStatusConnected, model.InstanceStatusDisconnected},
		{model.InstanceStatusConnected, model.InstanceStatusError},
		{model.InstanceStatusDisconnected, model.InstanceStatusError},
		{model.InstanceStatusError, model.InstanceStatusPendingQR},
	}
	ctx := context.Background()
	for _, tc := range cases {
		repo := newStubInstanceRepo(model.Instance{ID: "i1", Status: tc.from})
		m := NewMachine(repo, zap.NewNop())
		if err := m.Transition(ctx, StatusEvent{InstanceID: "i1", Status: tc.to}); err != nil {
			t.Errorf("%s -> %s: %v", tc.from, tc.to, err)
			continue
		}
		inst, _ := repo.GetByID(ctx, "i1")
		if inst.Status != tc.to {
			t.Errorf("%s -> %s: estado final %s", tc.from, tc.to, inst.Status)
		}
	}
}

func TestTransitionIllegalPathsRejected(t *testing.T) {
	cases := []struct {
		from, to model.InstanceStatus
	}{
		{model.InstanceStatusPendingQR, model.InstanceStatusDisconnected},
		{model.InstanceStatusDisconnected, model.InstanceStatusConnected},
		{model.InstanceStatusError, model.InstanceStatusConnected},
		{model.InstanceStatusError, model.InstanceStatusDisconnected},
		{model.InstanceStatusConnected, model.InstanceStatusPendingQR},
	}
	ctx := context.Background()
	for _, tc := range cases {
		repo := newStubInstanceRepo(model.Instance{ID: "i1", Status: tc.from})
		m := NewMachine(repo, zap.NewNop())
		err := m.Transition(ctx, StatusEvent{InstanceID: "i1", Status: tc.to})
		if !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: esperado ErrIllegalTransition, veio %v", tc.from, tc.to, err)
		}
		inst, _ := repo.GetByID(ctx, "i1")
		if inst.Status != tc.from {
			t.Errorf("%s -> %s: transição rejeitada mexeu no estado (%s)", tc.from, tc.to, inst.Status)
		}
	}
}

func TestTransitionSameStateIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newStubInstanceRepo(model.Instance{ID: "i1", Status: model.InstanceStatusConnected})
	m := NewMachine(repo, zap.NewNop())
	if err := m.Transition(ctx, StatusEvent{InstanceID: "i1", Status: model.InstanceStatusConnected}); err != nil {
		t.Fatalf("evento repetido deveria ser no-op: %v", err)
	}
}

func TestTransitionConnectedClearsQR(t *testing.T) {
	ctx := context.Background()
	repo := newStubInstanceRepo(model.Instance{ID: "i1", Status: model.InstanceStatusPendingQR, QRCode: "qr-antigo"})
	m := NewMachine(repo, zap.NewNop())
	if err := m.Transition(ctx, StatusEvent{InstanceID: "i1", Status: model.InstanceStatusConnected}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	inst, _ := repo.GetByID(ctx, "i1")
	if inst.QRCode != "" {
		t.Errorf("QR não foi limpo ao conectar: %q", inst.QRCode)
	}
}

func TestTransitionPendingQRRefreshesMaterial(t *testing.T) {
	ctx := context.Background()
	repo := newStubInstanceRepo(model.Instance{ID: "i1", Status: model.InstanceStatusPendingQR, QRCode: "qr-1"})
	m := NewMachine(repo, zap.NewNop())
	// Mesmo estado, QR novo: o material precisa ser trocado.
	if err := m.Transition(ctx, StatusEvent{InstanceID: "i1", Status: model.InstanceStatusPendingQR, QR: "qr-2"}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	inst, _ := repo.GetByID(ctx, "i1")
	if inst.QRCode != "qr-2" {
		t.Errorf("QR = %q, esperado qr-2", inst.QRCode)
	}
}

func TestMapProviderState(t *testing.T) {
	cases := []struct {
		in   string
		want model.InstanceStatus
		ok   bool
	}{
		{"open", model.InstanceStatusConnected, true},
		{"connected", model.InstanceStatusConnected, true},
		{"close", model.InstanceStatusDisconnected, true},
		{"logged_out", model.InstanceStatusDisconnected, true},
		{"connecting", model.InstanceStatusPendingQR, true},
		{"qr", model.InstanceStatusPendingQR, true},
		{"banana", "", false},
	}
	for _, tc := range cases {
		got, ok := MapProviderState(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("MapProviderState(%q) = (%q, %v), esperado (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
