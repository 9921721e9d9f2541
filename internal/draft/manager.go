package draft

import (
	"context"
	"sync"
	"time"

	"bridgeme/internal/kv"
)

// Manager hands out one Autosaver per user, loading the stored draft the
// first time a user is seen.
type Manager struct {
	store    kv.Store
	debounce time.Duration

	mu     sync.Mutex
	savers map[string]*Autosaver
}

func NewManager(store kv.Store, debounce time.Duration) *Manager {
	return &Manager{store: store, debounce: debounce, savers: make(map[string]*Autosaver)}
}

func (m *Manager) For(ctx context.Context, userID string) (*Autosaver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.savers[userID]; ok {
		return a, nil
	}
	a := New(m.store, userID, m.debounce)
	if _, err := a.Load(ctx); err != nil {
		return nil, err
	}
	m.savers[userID] = a
	return a, nil
}

// Close flushes every draft. Used on shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	savers := make([]*Autosaver, 0, len(m.savers))
	for _, a := range m.savers {
		savers = append(savers, a)
	}
	m.savers = make(map[string]*Autosaver)
	m.mu.Unlock()

	for _, a := range savers {
		a.Close(ctx)
	}
}
