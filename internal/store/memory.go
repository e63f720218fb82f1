package store

import (
	"context"
	"sync"

	"golddash/internal/market"
)

// Memory is an in-process Store for tests and no-persistence runs. It
// applies the same newer-timestamp-wins rule as the durable store.
type Memory struct {
	mu   sync.RWMutex
	byID map[market.Quantity]market.Observation
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[market.Quantity]market.Observation)}
}

func (m *Memory) Get(_ context.Context, q market.Quantity) (market.Observation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obs, ok := m.byID[q]
	return obs, ok
}

func (m *Memory) Put(_ context.Context, obs market.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byID[obs.Quantity]; ok && cur.ObservedAt.After(obs.ObservedAt) {
		return nil
	}
	m.byID[obs.Quantity] = obs
	return nil
}
