package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"storymaker/internal/infra"
)

// ErrStreamClosed is returned when an event is emitted after the terminal one.
var ErrStreamClosed = errors.New("progress stream already terminated")

const (
	imageProgressBase = 30
	imageProgressSpan = 60
)

// Sink receives encoded-ready events in emission order.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error {
	if f == nil {
		return nil
	}
	return f(e)
}

// MultiSink forwards every event to each sink; the first error is returned
// after all sinks were tried.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Send(e); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// ChannelSink delivers events on ch, giving up when ctx is done.
func ChannelSink(ctx context.Context, ch chan<- Event) Sink {
	return SinkFunc(func(e Event) error {
		select {
		case ch <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reporter turns pipeline progress into an ordered event stream. It keeps
// stage numbers and non-terminal progress from regressing, and lets at most
// one terminal event through.
type Reporter struct {
	mu       sync.Mutex
	sink     Sink
	logger   *infra.Logger
	stage    int
	progress int
	terminal bool
	sinkErr  error

	totalImages int
	settled     int
	positions   map[string]int
}

// NewReporter builds a reporter writing to sink. logger may be nil.
func NewReporter(sink Sink, logger *infra.Logger) *Reporter {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Reporter{sink: sink, logger: logger, positions: map[string]int{}}
}

// Emit appends one event to the stream.
func (r *Reporter) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitLocked(e)
}

func (r *Reporter) emitLocked(e Event) error {
	if r.terminal {
		r.logger.Warn().Str("type", string(e.Type())).Msg("reporter: dropping event after terminal event")
		return ErrStreamClosed
	}
	stage := e.StageNumber()
	if stage < r.stage {
		r.logger.Warn().Int("stage", stage).Int("current", r.stage).Msg("reporter: stage regression clamped")
		stage = r.stage
	}
	progress := e.ProgressValue()
	if !e.Terminal() && progress < r.progress {
		progress = r.progress
	}
	if progress > 100 {
		progress = 100
	}
	e = withStage(e, stage, progress)
	r.stage = stage
	if !e.Terminal() {
		r.progress = progress
	}
	r.terminal = e.Terminal()

	if r.sink == nil || r.sinkErr != nil {
		return r.sinkErr
	}
	if err := r.sink.Send(e); err != nil {
		r.sinkErr = err
		r.logger.Warn().Err(err).Str("type", string(e.Type())).Msg("reporter: sink failed; further events are not delivered")
		return err
	}
	return nil
}

// Stage returns the current stage number.
func (r *Reporter) Stage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Closed reports whether a terminal event has been emitted.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// BeginImages enters the image stage and announces every job up front.
func (r *Reporter) BeginImages(jobs []*Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalImages = len(jobs)
	r.settled = 0
	_ = r.emitLocked(StageEvent{
		Stage:    StageImages,
		Title:    "Generating images",
		Message:  fmt.Sprintf("Creating %d illustrations in parallel...", len(jobs)),
		Progress: imageProgressBase,
	})
	for i, job := range jobs {
		r.positions[job.ID] = i + 1
		_ = r.emitLocked(ImageStartEvent{
			Stage:        StageImages,
			ImageID:      job.ID,
			Message:      fmt.Sprintf("Starting %s...", describeJob(job.Kind, job.Index)),
			Progress:     imageProgressBase,
			CurrentImage: i + 1,
			TotalImages:  len(jobs),
		})
	}
}

// ImageProgress is 30 + settled/total*60.
func ImageProgress(settled, total int) int {
	if total <= 0 {
		return imageProgressBase + imageProgressSpan
	}
	if settled > total {
		settled = total
	}
	return imageProgressBase + settled*imageProgressSpan/total
}

// ImageSettled reports one drained outcome, in the order it was drained.
func (r *Reporter) ImageSettled(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled++
	progress := ImageProgress(r.settled, r.totalImages)
	elapsed := roundSeconds(o.Elapsed.Seconds())
	position := r.positions[o.JobID]
	if o.Succeeded() {
		_ = r.emitLocked(ImageDoneEvent{
			Stage:        StageImages,
			ImageID:      o.JobID,
			Message:      fmt.Sprintf("%s ready!", capitalize(describeJob(o.Kind, o.Index))),
			Progress:     progress,
			Elapsed:      elapsed,
			ImageURL:     o.Artifact.URL,
			CurrentImage: position,
			TotalImages:  r.totalImages,
		})
		return
	}
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}
	_ = r.emitLocked(ImageErrorEvent{
		Stage:        StageImages,
		ImageID:      o.JobID,
		Message:      fmt.Sprintf("Failed to generate %s", o.JobID),
		Progress:     progress,
		Elapsed:      elapsed,
		Error:        errText,
		CurrentImage: position,
		TotalImages:  r.totalImages,
	})
}

func describeJob(kind JobKind, index int) string {
	switch kind {
	case JobKindCoverImage:
		return "cover"
	case JobKindPartImage:
		return fmt.Sprintf("chapter %d", index)
	default:
		return string(kind)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func roundSeconds(s float64) float64 {
	return float64(int64(s*10+0.5)) / 10
}
