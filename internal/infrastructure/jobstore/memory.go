// Package jobstore provides the in-memory job store. Job state lives only in
// process memory and does not survive a restart; completed jobs are retained
// indefinitely (no TTL or eviction in this design).
package jobstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*domain.Job)}
}

var _ ports.JobStore = (*Memory)(nil)

// Create allocates a job under a fresh opaque id.
func (m *Memory) Create() *domain.Job {
	id := uuid.New().String()
	job := domain.NewJob(id)

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// Get returns the job for id, or domain.ErrJobNotFound.
func (m *Memory) Get(id string) (*domain.Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()

	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}
