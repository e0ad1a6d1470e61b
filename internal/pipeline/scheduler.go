package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fanout launches a batch of jobs and reports their outcomes as they settle.
type Fanout interface {
	Schedule(ctx context.Context, jobs []*Job) *Batch
}

// Scheduler runs every job of a batch concurrently, one goroutine per job.
type Scheduler struct {
	runner Runner
}

// NewScheduler returns a scheduler that settles jobs with runner.
func NewScheduler(runner Runner) *Scheduler {
	return &Scheduler{runner: runner}
}

// Batch is a set of in-flight jobs. Outcomes are delivered in completion
// order on a channel buffered to the batch size, so producers never block.
type Batch struct {
	total    int
	outcomes chan Outcome
	done     chan struct{}
}

// Schedule starts all jobs immediately and returns without waiting.
func (s *Scheduler) Schedule(ctx context.Context, jobs []*Job) *Batch {
	b := &Batch{
		total:    len(jobs),
		outcomes: make(chan Outcome, len(jobs)),
		done:     make(chan struct{}),
	}
	var g errgroup.Group
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			b.outcomes <- s.runner.Run(ctx, job)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(b.outcomes)
		close(b.done)
	}()
	return b
}

// Len is the number of outcomes the batch will deliver.
func (b *Batch) Len() int { return b.total }

// Outcomes delivers exactly Len() records and is closed after the last job
// goroutine has returned.
func (b *Batch) Outcomes() <-chan Outcome { return b.outcomes }

// Wait blocks until every job goroutine has returned.
func (b *Batch) Wait() { <-b.done }

// Collect drains the batch and waits for full settlement.
func (b *Batch) Collect() []Outcome {
	out := make([]Outcome, 0, b.total)
	for o := range b.outcomes {
		out = append(out, o)
	}
	b.Wait()
	return out
}

var _ Fanout = (*Scheduler)(nil)
