package session

import (
	"context"
	"fmt"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	items map[registryKey]context.CancelFunc
}

type registryKey struct {
	tenantID   string
	instanceID string
}

func NewRegistry() *Registry {
	return &Registry{
		items: map[registryKey]context.CancelFunc{},
	}
}

// Register guarda o cancel do poller. Chave já registrada é erro.
func (r *Registry) Register(tenantID, instanceID string, cancel context.CancelFunc) error {
	key := registryKey{tenantID: tenantID, instanceID: instanceID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; exists {
		return fmt.Errorf("session: poller já registrado para %s/%s", tenantID, instanceID)
	}
	r.items[key] = cancel
	return nil
}

func (r *Registry) Unregister(tenantID, instanceID string) {
	key := registryKey{tenantID: tenantID, instanceID: instanceID}
	r.mu.Lock()
	cancel, ok := r.items[key]
	delete(r.items, key)
	r.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
}

func (r *Registry) Lookup(tenantID, instanceID string) bool {
	key := registryKey{tenantID: tenantID, instanceID: instanceID}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[key]
	return ok
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, cancel := range r.items {
		if cancel != nil {
			cancel()
		}
		delete(r.items, key)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
