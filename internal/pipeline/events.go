package pipeline

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates progress events on the wire.
type EventType string

const (
	EventStage        EventType = "stage"
	EventStoryCreated EventType = "story_created"
	EventImageStart   EventType = "image_start"
	EventImageDone    EventType = "image_done"
	EventImageError   EventType = "image_error"
	EventError        EventType = "error"
	EventComplete     EventType = "complete"
)

// Pipeline stages. Stage numbers never decrease within a run.
const (
	StageInit      = 1
	StageStructure = 2
	StageImages    = 3
	StageFinalize  = 4
)

// Event is the closed set of progress events. Only types in this package
// implement it.
type Event interface {
	Type() EventType
	StageNumber() int
	ProgressValue() int
	Terminal() bool
	wire() wireEvent
}

type StageEvent struct {
	Stage    int
	Title    string
	Message  string
	Progress int
}

// StoryCreatedData is the payload sent once the structure is known.
type StoryCreatedData struct {
	Title   string `json:"title"`
	Parts   any    `json:"parts"`
	StoryID string `json:"storyId"`
	Folder  string `json:"folder"`
}

type StoryCreatedEvent struct {
	Stage    int
	Title    string
	Message  string
	Progress int
	Elapsed  float64
	Data     StoryCreatedData
}

type ImageStartEvent struct {
	Stage        int
	ImageID      string
	Message      string
	Progress     int
	CurrentImage int
	TotalImages  int
}

type ImageDoneEvent struct {
	Stage        int
	ImageID      string
	Message      string
	Progress     int
	Elapsed      float64
	ImageURL     string
	CurrentImage int
	TotalImages  int
}

type ImageErrorEvent struct {
	Stage        int
	ImageID      string
	Message      string
	Progress     int
	Elapsed      float64
	Error        string
	CurrentImage int
	TotalImages  int
}

type ErrorEvent struct {
	Stage    int
	Title    string
	Message  string
	Progress int
}

type CompleteEvent struct {
	Stage     int
	Title     string
	Message   string
	Progress  int
	TotalTime float64
	Data      any
}

func (e StageEvent) Type() EventType        { return EventStage }
func (e StoryCreatedEvent) Type() EventType { return EventStoryCreated }
func (e ImageStartEvent) Type() EventType   { return EventImageStart }
func (e ImageDoneEvent) Type() EventType    { return EventImageDone }
func (e ImageErrorEvent) Type() EventType   { return EventImageError }
func (e ErrorEvent) Type() EventType        { return EventError }
func (e CompleteEvent) Type() EventType     { return EventComplete }

func (e StageEvent) StageNumber() int        { return e.Stage }
func (e StoryCreatedEvent) StageNumber() int { return e.Stage }
func (e ImageStartEvent) StageNumber() int   { return e.Stage }
func (e ImageDoneEvent) StageNumber() int    { return e.Stage }
func (e ImageErrorEvent) StageNumber() int   { return e.Stage }
func (e ErrorEvent) StageNumber() int        { return e.Stage }
func (e CompleteEvent) StageNumber() int     { return e.Stage }

func (e StageEvent) ProgressValue() int        { return e.Progress }
func (e StoryCreatedEvent) ProgressValue() int { return e.Progress }
func (e ImageStartEvent) ProgressValue() int   { return e.Progress }
func (e ImageDoneEvent) ProgressValue() int    { return e.Progress }
func (e ImageErrorEvent) ProgressValue() int   { return e.Progress }
func (e ErrorEvent) ProgressValue() int        { return e.Progress }
func (e CompleteEvent) ProgressValue() int     { return e.Progress }

func (StageEvent) Terminal() bool        { return false }
func (StoryCreatedEvent) Terminal() bool { return false }
func (ImageStartEvent) Terminal() bool   { return false }
func (ImageDoneEvent) Terminal() bool    { return false }
func (ImageErrorEvent) Terminal() bool   { return false }
func (ErrorEvent) Terminal() bool        { return true }
func (CompleteEvent) Terminal() bool     { return true }

// wireEvent is the JSON object observers receive.
type wireEvent struct {
	Type         EventType `json:"type"`
	Stage        int       `json:"stage"`
	Title        string    `json:"title,omitempty"`
	Message      string    `json:"message,omitempty"`
	Progress     int       `json:"progress"`
	ImageID      string    `json:"imageId,omitempty"`
	Elapsed      *float64  `json:"elapsed,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CurrentImage int       `json:"currentImage,omitempty"`
	TotalImages  int       `json:"totalImages,omitempty"`
	Data         any       `json:"data,omitempty"`
	Error        string    `json:"error,omitempty"`
	TotalTime    *float64  `json:"totalTime,omitempty"`
}

func (e StageEvent) wire() wireEvent {
	return wireEvent{Type: EventStage, Stage: e.Stage, Title: e.Title, Message: e.Message, Progress: e.Progress}
}

func (e StoryCreatedEvent) wire() wireEvent {
	elapsed := e.Elapsed
	return wireEvent{Type: EventStoryCreated, Stage: e.Stage, Title: e.Title, Message: e.Message, Progress: e.Progress, Elapsed: &elapsed, Data: e.Data}
}

func (e ImageStartEvent) wire() wireEvent {
	return wireEvent{Type: EventImageStart, Stage: e.Stage, ImageID: e.ImageID, Message: e.Message, Progress: e.Progress, CurrentImage: e.CurrentImage, TotalImages: e.TotalImages}
}

func (e ImageDoneEvent) wire() wireEvent {
	elapsed := e.Elapsed
	return wireEvent{Type: EventImageDone, Stage: e.Stage, ImageID: e.ImageID, Message: e.Message, Progress: e.Progress, Elapsed: &elapsed, ImageURL: e.ImageURL, CurrentImage: e.CurrentImage, TotalImages: e.TotalImages}
}

func (e ImageErrorEvent) wire() wireEvent {
	elapsed := e.Elapsed
	return wireEvent{Type: EventImageError, Stage: e.Stage, ImageID: e.ImageID, Message: e.Message, Progress: e.Progress, Elapsed: &elapsed, Error: e.Error, CurrentImage: e.CurrentImage, TotalImages: e.TotalImages}
}

func (e ErrorEvent) wire() wireEvent {
	return wireEvent{Type: EventError, Stage: e.Stage, Title: e.Title, Message: e.Message, Progress: e.Progress}
}

func (e CompleteEvent) wire() wireEvent {
	total := e.TotalTime
	return wireEvent{Type: EventComplete, Stage: e.Stage, Title: e.Title, Message: e.Message, Progress: e.Progress, TotalTime: &total, Data: e.Data}
}

// withStage returns a copy of e carrying the given stage and progress.
func withStage(e Event, stage, progress int) Event {
	switch v := e.(type) {
	case StageEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case StoryCreatedEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case ImageStartEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case ImageDoneEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case ImageErrorEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case ErrorEvent:
		v.Stage, v.Progress = stage, progress
		return v
	case CompleteEvent:
		v.Stage, v.Progress = stage, progress
		return v
	default:
		panic(fmt.Sprintf("pipeline: unknown event %T", e))
	}
}

// Encode marshals an event into its wire JSON object.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e.wire())
}
