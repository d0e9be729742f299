package queue

import "context"

// Priority is a scheduling band. Lower numbers run first.
type Priority int

const (
	PriorityTrades    Priority = 1
	PriorityWatchlist Priority = 2
	PriorityScan      Priority = 3
)

// Job defines a queue job handler.
type Job interface {
	// Name returns the identifier used in logs and metrics.
	Name() string

	// Priority returns the band the job is queued in.
	Priority() Priority

	// Handle runs the job to completion.
	Handle(ctx context.Context) error
}

type funcJob struct {
	name     string
	priority Priority
	fn       func(ctx context.Context) error
}

// NewJob adapts a function into a Job.
func NewJob(name string, priority Priority, fn func(ctx context.Context) error) Job {
	return &funcJob{name: name, priority: priority, fn: fn}
}

func (j *funcJob) Name() string                     { return j.name }
func (j *funcJob) Priority() Priority               { return j.priority }
func (j *funcJob) Handle(ctx context.Context) error { return j.fn(ctx) }
