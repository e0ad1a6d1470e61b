package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storymaker/internal/domain"
	"storymaker/internal/retry"
)

// JobKind enumerates the generation job categories.
type JobKind string

const (
	JobKindStructure  JobKind = "structure"
	JobKindCoverImage JobKind = "cover_image"
	JobKindPartImage  JobKind = "part_image"
)

// JobState enumerates job lifecycle states.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateInFlight  JobState = "in_flight"
	JobStateRetrying  JobState = "retrying"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

func (s JobState) terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// canTransition allows forward moves plus the retrying -> in_flight loop.
func canTransition(from, to JobState) bool {
	switch from {
	case JobStatePending:
		return to == JobStateInFlight || to.terminal()
	case JobStateInFlight:
		return to == JobStateRetrying || to.terminal()
	case JobStateRetrying:
		return to == JobStateInFlight || to.terminal()
	default:
		return false
	}
}

// ReferenceImage is a decoded character photo sent alongside image prompts.
type ReferenceImage struct {
	MIME   string
	Data   []byte
	Width  int
	Height int
}

// StructureRequest is the input of the narrative structure call.
type StructureRequest struct {
	Names         string
	Premise       string
	UniverseName  string
	UniverseStyle string
	Locale        string
}

// ImageRequest is the input of one image synthesis call.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Style       string
	Names       string
	References  []ReferenceImage
}

// Artifact is the successful product of a job: a structure or an image.
type Artifact struct {
	Structure *domain.Structure
	Data      []byte
	MIME      string
	Width     int
	Height    int
	// StorageKey and URL are set once the image has been persisted.
	StorageKey string
	URL        string
}

// StructureProducer generates the narrative skeleton.
type StructureProducer interface {
	GenerateStructure(ctx context.Context, req StructureRequest) (*domain.Structure, error)
}

// ImageProducer generates a single raster image.
type ImageProducer interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*Artifact, error)
}

// ProduceFunc performs one attempt of a job.
type ProduceFunc func(ctx context.Context) (*Artifact, error)

// Job is one independently retryable unit of provider work. Input is
// immutable; state and attempt count are updated by the Runner.
type Job struct {
	ID      string
	Kind    JobKind
	Index   int
	Aspect  string
	produce ProduceFunc

	mu       sync.Mutex
	state    JobState
	attempts int
}

// NewJob wraps an arbitrary produce capability.
func NewJob(id string, kind JobKind, index int, produce ProduceFunc) *Job {
	return &Job{ID: id, Kind: kind, Index: index, produce: produce, state: JobStatePending}
}

// NewStructureJob builds the job that asks for the narrative structure. The
// returned structure is validated on every attempt so a shape mismatch is
// retried like any other failure.
func NewStructureJob(p StructureProducer, req StructureRequest) *Job {
	return NewJob("structure", JobKindStructure, 0, func(ctx context.Context) (*Artifact, error) {
		s, err := p.GenerateStructure(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return &Artifact{Structure: s}, nil
	})
}

// SaveFunc persists an image artifact and fills in its StorageKey/URL.
type SaveFunc func(ctx context.Context, jobID string, a *Artifact) error

// NewImageJob builds an image job. save, when non-nil, runs inside the retried
// attempt so a failed write is retried together with the generation.
func NewImageJob(id string, kind JobKind, index int, p ImageProducer, req ImageRequest, save SaveFunc) *Job {
	j := NewJob(id, kind, index, func(ctx context.Context) (*Artifact, error) {
		a, err := p.GenerateImage(ctx, req)
		if err != nil {
			return nil, err
		}
		if a == nil || len(a.Data) == 0 {
			return nil, domain.ErrNoImageInResponse
		}
		if save != nil {
			if err := save(ctx, id, a); err != nil {
				return nil, fmt.Errorf("persist image: %w", err)
			}
		}
		return a, nil
	})
	j.Aspect = req.AspectRatio
	return j
}

// State returns the current lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Attempts returns how many times the producer has been invoked.
func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

func (j *Job) transition(to JobState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return
	}
	j.state = to
	if to == JobStateInFlight {
		j.attempts++
	}
}

// Outcome is the single settlement record of a job.
type Outcome struct {
	JobID    string
	Kind     JobKind
	Index    int
	Attempts int
	Elapsed  time.Duration
	Artifact *Artifact
	Err      error
}

// Succeeded reports whether the job produced an artifact.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Artifact != nil
}

// RetryHook observes a failed attempt of a specific job.
type RetryHook func(job *Job, attempt int, err error, delay time.Duration)

// Runner executes a job through the backoff retrier and always settles it.
type Runner struct {
	Policy  retry.Policy
	Now     func() time.Time
	OnRetry RetryHook
}

// Run executes the job to settlement. It never panics: a panic raised by the
// producer is converted into a failed Outcome wrapping domain.ErrJobPanicked.
func (r Runner) Run(ctx context.Context, job *Job) (out Outcome) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	out = Outcome{JobID: job.ID, Kind: job.Kind, Index: job.Index}
	defer func() {
		if rec := recover(); rec != nil {
			out.Artifact = nil
			out.Err = fmt.Errorf("%w: job %s: %v", domain.ErrJobPanicked, job.ID, rec)
		}
		if out.Err == nil && out.Artifact == nil {
			out.Err = fmt.Errorf("job %s: %w", job.ID, domain.ErrProvider)
		}
		if out.Err != nil {
			job.transition(JobStateFailed)
		} else {
			job.transition(JobStateSucceeded)
		}
		out.Attempts = job.Attempts()
		out.Elapsed = now().Sub(start)
	}()

	policy := r.Policy
	maxAttempts := policy.Attempts()
	hook := policy.OnFailure
	policy.OnFailure = func(attempt int, err error, delay time.Duration) {
		if attempt < maxAttempts {
			job.transition(JobStateRetrying)
		}
		if r.OnRetry != nil {
			r.OnRetry(job, attempt, err, delay)
		}
		if hook != nil {
			hook(attempt, err, delay)
		}
	}

	artifact, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*Artifact, error) {
		job.transition(JobStateInFlight)
		a, err := job.produce(ctx)
		if err == nil && a == nil {
			err = errors.New("producer returned no artifact")
		}
		return a, err
	})
	out.Artifact = artifact
	out.Err = err
	return out
}
