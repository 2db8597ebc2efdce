// Package claims implements the username claim registry: a short-lived
// reservation set that keeps concurrently running batches from racing each
// other to the same username. The Redis-backed registry shares claims across
// processes; the in-memory one covers a single process.
package claims

import (
	"context"
	"sync"

	"github.com/openlms/provisioner/internal/core/ports"
)

type Memory struct {
	mu    sync.RWMutex
	taken map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{taken: make(map[string]struct{})}
}

var _ ports.ClaimRegistry = (*Memory)(nil)

func (m *Memory) Claimed(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	_, ok := m.taken[username]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Claim(_ context.Context, username string) error {
	m.mu.Lock()
	m.taken[username] = struct{}{}
	m.mu.Unlock()
	return nil
}
