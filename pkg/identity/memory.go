package identity

import (
	"context"
	"sync"

	"github.com/taurusgroup/confidential-identities/pkg/keys"
	"github.com/taurusgroup/confidential-identities/pkg/party"
)

// Memory is a Registry backed by a map.
type Memory struct {
	mappings map[keys.PublicKey]party.Party
	mtx      sync.RWMutex
}

var _ Registry = (*Memory)(nil)

// NewMemory returns an empty Memory registry.
func NewMemory() *Memory {
	return &Memory{mappings: make(map[keys.PublicKey]party.Party)}
}

// Resolve implements Registry.
func (m *Memory) Resolve(_ context.Context, key keys.PublicKey) (party.Party, bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	p, ok := m.mappings[key]
	return p, ok, nil
}

// Register implements Registry.
func (m *Memory) Register(_ context.Context, key keys.PublicKey, owner party.Party) (bool, error) {
	if err := (Mapping{Key: key, Owner: owner}).Validate(); err != nil {
		return false, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if existing, ok := m.mappings[key]; ok {
		return existing == owner, nil
	}
	m.mappings[key] = owner
	return true, nil
}

// Mappings implements Registry.
func (m *Memory) Mappings(context.Context) ([]Mapping, error) {
	m.mtx.RLock()
	out := make([]Mapping, 0, len(m.mappings))
	for k, p := range m.mappings {
		out = append(out, Mapping{Key: k, Owner: p})
	}
	m.mtx.RUnlock()
	SortMappings(out)
	return out, nil
}
