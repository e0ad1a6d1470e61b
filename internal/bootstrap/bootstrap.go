// Package bootstrap assembles the story pipeline from configuration. Both the
// API server and the terminal runner build their services through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"

	"storymaker/internal/infra"
	"storymaker/internal/pipeline"
	"storymaker/internal/providers/genai"
	"storymaker/internal/providers/image"
	"storymaker/internal/providers/prompt"
	"storymaker/internal/retry"
	"storymaker/internal/storage"
	"storymaker/internal/story"
)

// LoadEnv reads .env from the working directory and its parent. Variables
// already set in the environment win; missing files are ignored.
func LoadEnv() {
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")
}

// Services is the wired pipeline plus the resources that must be closed.
type Services struct {
	Coordinator *pipeline.Coordinator
	Stories     *story.Store
	Gemini      *genai.Client

	closers []func()
}

// Build wires the Gemini client, story store and coordinator. The Postgres
// index is attached only when DATABASE_URL is set; a database that cannot be
// reached is logged and skipped so stories still land on disk.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		TextModel:  cfg.GeminiStoryModel,
		ImageModel: cfg.GeminiImageModel,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if client.Synthetic() {
		logger.Warn().Msg("GEMINI_API_KEY not set; using synthetic story and images")
	}

	files, err := storage.NewFileStore(cfg.StoriesDir)
	if err != nil {
		return nil, fmt.Errorf("stories dir: %w", err)
	}

	svc := &Services{Gemini: client}
	var index story.Index
	pool, err := infra.NewDBPool(ctx, cfg)
	switch {
	case errors.Is(err, infra.ErrNoDatabase):
	case err != nil:
		logger.Warn().Err(err).Msg("story index disabled: database unavailable")
	default:
		svc.closers = append(svc.closers, pool.Close)
		pg := story.NewPGIndex(infra.NewSQLRunner(pool, *logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Warn().Err(err).Msg("story index disabled: schema setup failed")
		} else {
			index = pg
		}
	}

	stories, err := story.NewStore(files, story.Options{
		URLPrefix: cfg.PublicBasePath,
		Index:     index,
		Logger:    logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Stories = stories

	coord, err := pipeline.NewCoordinator(pipeline.Options{
		Structure: prompt.NewStoryWriter(client),
		Images:    image.NewIllustrator(client),
		Store:     stories,
		Policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		MinImageSuccesses: cfg.MinImageSuccesses,
		Logger:            logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Coordinator = coord
	return svc, nil
}

// Close releases the database pool, if any.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
