package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"storymaker/internal/catalog"
	"storymaker/internal/domain"
	"storymaker/internal/infra"
	"storymaker/internal/pipeline"
)

// StoryRunner runs one generation pipeline, streaming events to sink.
type StoryRunner interface {
	Run(ctx context.Context, req domain.StoryRequest, sink pipeline.Sink) (*pipeline.Result, error)
}

// StoryReader reads finalized stories.
type StoryReader interface {
	List(ctx context.Context, limit int) ([]domain.StoryRecord, error)
	Get(ctx context.Context, prefix string) (*domain.StoryRecord, error)
	Archive(ctx context.Context, prefix string) ([]byte, *domain.StoryRecord, error)
}

type App struct {
	Runner  StoryRunner
	Stories StoryReader
	Catalog *catalog.Catalog
	Logger  *infra.Logger
	Now     func() time.Time

	// MaxRequestBytes bounds the create-story body, photos included.
	MaxRequestBytes int64
}

const defaultMaxRequestBytes = 32 << 20

func NewApp(runner StoryRunner, stories StoryReader, cat *catalog.Catalog, logger *infra.Logger) *App {
	if logger == nil {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	if cat == nil {
		cat = catalog.Builtin()
	}
	return &App{
		Runner:          runner,
		Stories:         stories,
		Catalog:         cat,
		Logger:          logger,
		Now:             time.Now,
		MaxRequestBytes: defaultMaxRequestBytes,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) errorJSON(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) log() *infra.Logger {
	if a.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return a.Logger
}
