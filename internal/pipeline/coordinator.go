package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"storymaker/internal/domain"
	"storymaker/internal/infra"
	"storymaker/internal/retry"
)

// State enumerates the coordinator lifecycle.
type State string

const (
	StateStart              State = "start"
	StateStructureGenerated State = "structure_generated"
	StateImagesSettled      State = "images_settled"
	StateFinalized          State = "finalized"
	StateAborted            State = "aborted"
)

// StoryHandle identifies the storage location of a story being produced.
type StoryHandle struct {
	ID     string
	Folder string
}

// Store persists artifacts and the final record. It is optional.
type Store interface {
	CreateStory(ctx context.Context, title string, createdAt time.Time) (StoryHandle, error)
	SaveImage(ctx context.Context, h StoryHandle, imageID string, a *Artifact) error
	SaveRecord(ctx context.Context, rec *domain.StoryRecord) error
	// DiscardStory drops whatever was stored for a story that aborted.
	DiscardStory(ctx context.Context, h StoryHandle) error
}

// Aggregate summarises a settled image batch.
type Aggregate struct {
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Images maps job ids to the URL of every successful image.
func (a Aggregate) Images() map[string]string {
	out := make(map[string]string, a.Succeeded)
	for _, o := range a.Outcomes {
		if o.Succeeded() {
			out[o.JobID] = o.Artifact.URL
		}
	}
	return out
}

// Result is the final state of one pipeline run.
type Result struct {
	State     State
	Structure *domain.Structure
	Aggregate Aggregate
	Record    *domain.StoryRecord
	Err       error
}

// Options configures a Coordinator.
type Options struct {
	Structure StructureProducer
	Images    ImageProducer
	Store     Store
	Fanout    Fanout
	Policy    retry.Policy
	// MinImageSuccesses is the fewest successful images that still finalize
	// the story. Values below 1 mean 1.
	MinImageSuccesses int
	Logger            *infra.Logger
	Now               func() time.Time
}

// Coordinator sequences structure generation, image fan-out and finalization.
type Coordinator struct {
	structure  StructureProducer
	images     ImageProducer
	store      Store
	fanout     Fanout
	runner     Runner
	minSuccess int
	logger     *infra.Logger
	now        func() time.Time
}

// NewCoordinator validates options and applies defaults.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Structure == nil {
		return nil, errors.New("pipeline: structure producer is required")
	}
	if opts.Images == nil {
		return nil, errors.New("pipeline: image producer is required")
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Coordinator{
		structure:  opts.Structure,
		images:     opts.Images,
		store:      opts.Store,
		fanout:     opts.Fanout,
		minSuccess: opts.MinImageSuccesses,
		logger:     logger,
		now:        now,
	}
	if c.minSuccess < 1 {
		c.minSuccess = 1
	}
	c.runner = Runner{
		Policy: opts.Policy,
		Now:    now,
		OnRetry: func(job *Job, attempt int, err error, delay time.Duration) {
			evt := c.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt)
			if delay > 0 {
				evt.Dur("delay", delay).Msg("pipeline: attempt failed, backing off")
				return
			}
			evt.Msg("pipeline: final attempt failed")
		},
	}
	if c.fanout == nil {
		c.fanout = NewScheduler(c.runner)
	}
	return c, nil
}

// Run executes one pipeline for req, streaming events to sink. The returned
// error is non-nil exactly when the run was aborted; in both cases a single
// terminal event has been emitted.
func (c *Coordinator) Run(ctx context.Context, req domain.StoryRequest, sink Sink) (*Result, error) {
	start := c.now()
	rep := NewReporter(sink, c.logger)
	res := &Result{State: StateStart}
	log := c.logger.With().Str("names", req.Names()).Logger()

	var handle StoryHandle
	abort := func(cause error, message string) (*Result, error) {
		res.State = StateAborted
		res.Err = cause
		log.Error().Err(cause).Msg("pipeline: run aborted")
		if c.store != nil && handle.Folder != "" {
			if err := c.store.DiscardStory(context.WithoutCancel(ctx), handle); err != nil {
				log.Warn().Err(err).Str("folder", handle.Folder).Msg("pipeline: partial story left on disk")
			}
		}
		_ = rep.Emit(ErrorEvent{Stage: rep.Stage(), Title: "Generation failed", Message: message, Progress: 0})
		return res, cause
	}

	_ = rep.Emit(StageEvent{Stage: StageInit, Title: "Starting", Message: "Preparing the ingredients...", Progress: 5})
	if err := req.Validate(); err != nil {
		return abort(err, err.Error())
	}
	refs, err := DecodeReferences(req.Characters)
	if err != nil {
		return abort(err, err.Error())
	}
	_ = rep.Emit(StageEvent{Stage: StageInit, Title: "Starting", Message: fmt.Sprintf("Characters loaded: %s", req.Names()), Progress: 10})

	_ = rep.Emit(StageEvent{Stage: StageStructure, Title: "Writing the story", Message: "Drafting an epic narrative...", Progress: 15})
	structOut := c.runner.Run(ctx, NewStructureJob(c.structure, StructureRequest{
		Names:         req.Names(),
		Premise:       req.Premise(),
		UniverseName:  req.Universe.Name,
		UniverseStyle: req.Universe.Style,
		Locale:        req.Locale,
	}))
	if !structOut.Succeeded() {
		cause := fmt.Errorf("%w: %w", domain.ErrStructureGenerationFailed, structOut.Err)
		return abort(cause, fmt.Sprintf("Could not write the story after %d attempts: %v", structOut.Attempts, structOut.Err))
	}
	structure := structOut.Artifact.Structure
	res.Structure = structure
	res.State = StateStructureGenerated
	log.Info().Str("title", structure.Title).Int("attempts", structOut.Attempts).Msg("pipeline: structure generated")

	if c.store != nil {
		handle, err = c.store.CreateStory(ctx, structure.Title, start)
		if err != nil {
			return abort(fmt.Errorf("create story folder: %w", err), "Could not prepare story storage")
		}
	}
	_ = rep.Emit(StoryCreatedEvent{
		Stage:    StageStructure,
		Title:    "Story created!",
		Message:  fmt.Sprintf("Title: %s", structure.Title),
		Progress: 25,
		Elapsed:  roundSeconds(structOut.Elapsed.Seconds()),
		Data: StoryCreatedData{
			Title:   structure.Title,
			Parts:   structure.Parts,
			StoryID: handle.ID,
			Folder:  handle.Folder,
		},
	})

	jobs := c.imageJobs(structure, req, refs, handle)
	rep.BeginImages(jobs)
	agg := c.settleImages(ctx, rep, jobs)
	res.Aggregate = agg
	res.State = StateImagesSettled
	log.Info().Int("succeeded", agg.Succeeded).Int("failed", agg.Failed).Dur("elapsed", agg.Elapsed).Msg("pipeline: images settled")

	if agg.Succeeded < c.minSuccess {
		cause := fmt.Errorf("%w: %d of %d images succeeded", domain.ErrAllImagesFailed, agg.Succeeded, len(jobs))
		msg := fmt.Sprintf("Only %d of %d images were generated; at least %d required. Please try again.", agg.Succeeded, len(jobs), c.minSuccess)
		if agg.Succeeded == 0 {
			msg = fmt.Sprintf("No image could be generated after %d attempts. Please try again.", c.maxAttempts())
		}
		return abort(cause, msg)
	}

	total := c.now().Sub(start)
	record := &domain.StoryRecord{
		ID:          handle.ID,
		Folder:      handle.Folder,
		CreatedAt:   start,
		Title:       structure.Title,
		CoverPrompt: structure.CoverPrompt,
		Parts:       structure.Parts,
		Images:      agg.Images(),
		Universe:    req.Universe,
		Characters:  req.CharacterRefs(),
		TotalTime:   roundSeconds(total.Seconds()),
		Succeeded:   agg.Succeeded,
		Failed:      agg.Failed,
		Locale:      req.Locale,
	}
	if c.store != nil {
		if err := c.store.SaveRecord(ctx, record); err != nil {
			return abort(fmt.Errorf("save story: %w", err), "Could not save the story")
		}
	}
	res.Record = record
	res.State = StateFinalized
	_ = rep.Emit(CompleteEvent{
		Stage:     StageFinalize,
		Title:     "Story complete!",
		Message:   fmt.Sprintf("Your story was created in %.1f seconds!", record.TotalTime),
		Progress:  100,
		TotalTime: record.TotalTime,
		Data:      record,
	})
	log.Info().Str("story_id", record.ID).Float64("total_time", record.TotalTime).Msg("pipeline: story finalized")
	return res, nil
}

func (c *Coordinator) imageJobs(s *domain.Structure, req domain.StoryRequest, refs []ReferenceImage, h StoryHandle) []*Job {
	var save SaveFunc
	if c.store != nil {
		save = func(ctx context.Context, id string, a *Artifact) error {
			return c.store.SaveImage(ctx, h, id, a)
		}
	}
	base := ImageRequest{Style: req.Universe.Style, Names: req.Names(), References: refs}
	if base.Style == "" {
		base.Style = req.Universe.Name
	}

	cover := base
	cover.Prompt = s.CoverPrompt
	cover.AspectRatio = domain.CoverAspectRatio
	jobs := []*Job{NewImageJob("cover", JobKindCoverImage, 0, c.images, cover, save)}
	for i, part := range s.Parts {
		r := base
		r.Prompt = part.ImagePrompt
		r.AspectRatio = domain.PartAspectRatio
		jobs = append(jobs, NewImageJob(fmt.Sprintf("part_%d", i+1), JobKindPartImage, i+1, c.images, r, save))
	}
	return jobs
}

// settleImages drains every outcome in completion order and waits for the
// whole batch before returning. There is no early abort.
func (c *Coordinator) settleImages(ctx context.Context, rep *Reporter, jobs []*Job) Aggregate {
	start := c.now()
	batch := c.fanout.Schedule(ctx, jobs)
	agg := Aggregate{Outcomes: make([]Outcome, 0, batch.Len())}
	for i := 0; i < batch.Len(); i++ {
		o := <-batch.Outcomes()
		agg.Outcomes = append(agg.Outcomes, o)
		if o.Succeeded() {
			agg.Succeeded++
		} else {
			agg.Failed++
			c.logger.Warn().Err(o.Err).Str("job_id", o.JobID).Int("attempts", o.Attempts).Msg("pipeline: image job failed")
		}
		rep.ImageSettled(o)
	}
	batch.Wait()
	agg.Elapsed = c.now().Sub(start)
	return agg
}

func (c *Coordinator) maxAttempts() int {
	return c.runner.Policy.Attempts()
}
