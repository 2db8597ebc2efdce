package domain

import (
	"context"
	"sync"
	"time"
)

// EventType identifies one kind of progress-stream event.
type EventType string

const (
	EventHello     EventType = "hello"
	EventStage     EventType = "stage"
	EventRowUpdate EventType = "row_update"
	EventProgress  EventType = "progress"
	EventDone      EventType = "done"
)

// Event is one entry in a job's ordered progress stream. Data is one of the
// payload structs below and marshals directly into the SSE data field.
type Event struct {
	Type EventType
	Data any
}

type StagePayload struct {
	Message string `json:"message"`
}

type RowUpdatePayload struct {
	Index int    `json:"index"`
	Row   Record `json:"row"`
}

type ProgressPayload struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

type DonePayload struct {
	Percent int `json:"percent"`
	Total   int `json:"total"`
}

// Job is one batch submission: an opaque id, the ordered event queue, and the
// final row set once processing completes. A job never leaves process memory.
//
// The queue has a single producer (the batch worker) and a single effective
// consumer: if several subscribers drain the same job, each event is delivered
// to exactly one of them.
type Job struct {
	ID string

	mu     sync.Mutex
	events []Event
	signal chan struct{}
	done   bool
	rows   []Record
}

// NewJob returns an empty job with the given id.
func NewJob(id string) *Job {
	return &Job{
		ID:     id,
		signal: make(chan struct{}, 1),
	}
}

// Publish appends an event to the queue. The queue is unbounded; publishing
// never blocks the worker on a slow or absent consumer.
func (j *Job) Publish(ev Event) {
	j.mu.Lock()
	j.events = append(j.events, ev)
	j.mu.Unlock()

	select {
	case j.signal <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest pending event. When the queue is empty it
// blocks until an event arrives, the timeout elapses, or ctx is cancelled; the
// second return is false when no event was dequeued, letting the caller emit a
// keepalive and retry.
func (j *Job) Pop(ctx context.Context, timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		j.mu.Lock()
		if len(j.events) > 0 {
			ev := j.events[0]
			j.events = j.events[1:]
			j.mu.Unlock()
			return ev, true
		}
		j.mu.Unlock()

		select {
		case <-j.signal:
		case <-timer.C:
			return Event{}, false
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// Pending reports how many events are queued but not yet consumed.
func (j *Job) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.events)
}

// Complete stores the final rows and marks the job done. Results remain
// fetchable indefinitely after completion.
func (j *Job) Complete(rows []Record) {
	j.mu.Lock()
	j.rows = rows
	j.done = true
	j.mu.Unlock()
}

// Done reports whether the batch worker has finished.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// Rows returns the final row set. Empty until the job is done.
func (j *Job) Rows() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rows
}
