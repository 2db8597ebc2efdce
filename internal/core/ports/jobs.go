package ports

import (
	"github.com/openlms/provisioner/internal/core/domain"
)

// JobStore maps job ids to live job state. Jobs are created on submit and
// never evicted; a production deployment would layer a TTL policy on top.
type JobStore interface {
	// Create allocates a job under a fresh opaque id.
	Create() *domain.Job
	// Get returns the job for id, or domain.ErrJobNotFound.
	Get(id string) (*domain.Job, error)
}
