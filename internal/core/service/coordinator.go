package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/api/metrics"
	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

// Coordinator owns one job per batch submission: it launches the background
// worker that drives the row processor over every row and republishes each
// row's terminal state plus aggregate progress onto the job's event queue.
//
// Batches run as independent workers sharing no mutable state beyond the
// claim registry; within a batch, rows are strictly sequential so that
// username reconciliation observes a stable remote state.
type Coordinator struct {
	store      ports.JobStore
	dir        ports.Directory
	reconciler *Reconciler
	processor  *RowProcessor
	log        zerolog.Logger
}

func NewCoordinator(
	store ports.JobStore,
	dir ports.Directory,
	reconciler *Reconciler,
	processor *RowProcessor,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:      store,
		dir:        dir,
		reconciler: reconciler,
		processor:  processor,
		log:        log,
	}
}

// Start accepts a non-empty batch, allocates a job, and launches background
// execution. It returns the job id immediately without waiting on processing.
func (c *Coordinator) Start(rows []domain.Record) (string, error) {
	if len(rows) == 0 {
		return "", domain.ErrEmptyBatch
	}

	job := c.store.Create()
	metrics.JobsActive.Inc()
	c.log.Info().Str("job_id", job.ID).Int("rows", len(rows)).Msg("batch accepted")

	// No cancellation by design: once started, a job runs to completion even
	// if every stream subscriber goes away.
	go c.run(context.Background(), job, rows)

	return job.ID, nil
}

// Job returns the live job for id, or domain.ErrJobNotFound.
func (c *Coordinator) Job(id string) (*domain.Job, error) {
	return c.store.Get(id)
}

// Result returns the final rows and a done flag. Rows are empty until the
// worker finishes; they remain available indefinitely afterwards.
func (c *Coordinator) Result(id string) ([]domain.Record, bool, error) {
	job, err := c.store.Get(id)
	if err != nil {
		return nil, false, err
	}
	return job.Rows(), job.Done(), nil
}

func (c *Coordinator) run(ctx context.Context, job *domain.Job, rows []domain.Record) {
	records := make([]domain.Record, len(rows))
	copy(records, rows)
	total := len(records)

	// The stream must reach done even if the worker itself blows up.
	defer func() {
		if v := recover(); v != nil {
			c.log.Error().Interface("panic", v).Str("job_id", job.ID).Msg("batch worker panicked")
		}
		job.Complete(records)
		job.Publish(domain.Event{Type: domain.EventDone, Data: domain.DonePayload{Percent: 100, Total: total}})
		metrics.JobsActive.Dec()
		c.log.Info().Str("job_id", job.ID).Int("rows", total).Msg("batch finished")
	}()

	c.prepare(records)
	c.reconcileUsernames(ctx, records)
	existing := c.prefetchExisting(ctx, job, records)

	for idx := range records {
		c.processor.Process(ctx, &records[idx], existing)

		job.Publish(domain.Event{Type: domain.EventRowUpdate, Data: domain.RowUpdatePayload{
			Index: idx,
			Row:   records[idx],
		}})
		processed := idx + 1
		job.Publish(domain.Event{Type: domain.EventProgress, Data: domain.ProgressPayload{
			Processed: processed,
			Total:     total,
			Percent:   processed * 100 / total,
		}})
	}
}

// prepare lowercases usernames and runs field validation; failing rows carry
// their reason in Status and are skipped by every later phase.
func (c *Coordinator) prepare(records []domain.Record) {
	for i := range records {
		records[i].Username = strings.ToLower(strings.TrimSpace(records[i].Username))
		if msg := records[i].Validate(); msg != "" {
			records[i].Status = msg
		}
	}
}

// reconcileUsernames resolves every valid row's username against the batch,
// the claim registry, and the remote directory, in row order.
func (c *Coordinator) reconcileUsernames(ctx context.Context, records []domain.Record) {
	batchUsed := make(map[string]struct{})
	for i := range records {
		if records[i].Status != "" {
			continue
		}
		base := records[i].Username
		candidate, note := c.reconciler.Resolve(ctx, base, batchUsed)
		batchUsed[candidate] = struct{}{}
		if candidate != base {
			records[i].Username = candidate
			records[i].RenameNote = note
		}
	}
}

// prefetchExisting looks up every valid row's email in one bulk call and
// returns the hits keyed by lowercase email. A failed lookup degrades to an
// empty map; affected rows then go down the creation path and surface the
// remote rejection there.
func (c *Coordinator) prefetchExisting(ctx context.Context, job *domain.Job, records []domain.Record) map[string]ports.RemoteUser {
	emails := make([]string, 0, len(records))
	for i := range records {
		if records[i].Status == "" {
			emails = append(emails, records[i].Email)
		}
	}

	job.Publish(domain.Event{Type: domain.EventStage, Data: domain.StagePayload{
		Message: fmt.Sprintf("Checking %d emails on the remote directory", len(emails)),
	}})

	existing := make(map[string]ports.RemoteUser)
	if len(emails) == 0 {
		return existing
	}

	found, err := c.dir.UsersByField(ctx, "email", emails)
	if err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID).Msg("existing-user prefetch failed, assuming none exist")
		return existing
	}
	for _, u := range found {
		existing[strings.ToLower(u.Email)] = u
	}
	return existing
}
