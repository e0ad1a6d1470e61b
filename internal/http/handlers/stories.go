package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"storymaker/internal/domain"
	"storymaker/internal/middleware"
	"storymaker/internal/pipeline"
)

const maxListLimit = 500

// CreateStory runs the pipeline for the posted request and streams every
// progress event as server-sent events.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.errorJSON(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	limit := a.MaxRequestBytes
	if limit <= 0 {
		limit = defaultMaxRequestBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req domain.StoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.errorJSON(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		a.errorJSON(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Locale) == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}
	req.Universe = a.Catalog.Resolve(req.Universe)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := a.log().With().
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("locale", req.Locale).
		Logger()
	res, err := a.Runner.Run(r.Context(), req, newSSESink(w, flusher))
	if err != nil {
		log.Warn().Err(err).Msg("create story: pipeline aborted")
		return
	}
	if res != nil && res.Record != nil {
		log.Info().Str("story_id", res.Record.ID).Int("images", res.Record.Succeeded).Msg("create story: done")
	}
}

// newSSESink writes each event as one `data: <json>` frame and flushes it.
func newSSESink(w http.ResponseWriter, f http.Flusher) pipeline.Sink {
	return pipeline.SinkFunc(func(e pipeline.Event) error {
		payload, err := pipeline.Encode(e)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		f.Flush()
		return nil
	})
}

func (a *App) ListStories(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			a.errorJSON(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	stories, err := a.Stories.List(r.Context(), limit)
	if err != nil {
		a.log().Error().Err(err).Msg("list stories failed")
		a.errorJSON(w, http.StatusInternalServerError, "could not list stories")
		return
	}
	if stories == nil {
		stories = []domain.StoryRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"stories": stories})
}

func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Stories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storyError(w, err)
		return
	}
	a.json(w, http.StatusOK, rec)
}

// ArchiveStory downloads the story folder as a zip.
func (a *App) ArchiveStory(w http.ResponseWriter, r *http.Request) {
	data, rec, err := a.Stories.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.storyError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, rec.Folder))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) storyError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.errorJSON(w, http.StatusNotFound, "story not found")
		return
	}
	a.log().Error().Err(err).Msg("story lookup failed")
	a.errorJSON(w, http.StatusInternalServerError, "could not load story")
}
