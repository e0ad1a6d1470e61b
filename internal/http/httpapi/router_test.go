package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"storymaker/internal/domain"
	"storymaker/internal/http/handlers"
	"storymaker/internal/pipeline"
)

type nopRunner struct{ calls int }

func (n *nopRunner) Run(ctx context.Context, req domain.StoryRequest, sink pipeline.Sink) (*pipeline.Result, error) {
	n.calls++
	_ = sink.Send(pipeline.ErrorEvent{Stage: 1, Title: "Generation failed", Message: "nope"})
	return &pipeline.Result{}, domain.ErrInvalidRequest
}

type emptyReader struct{}

func (emptyReader) List(context.Context, int) ([]domain.StoryRecord, error) { return nil, nil }
func (emptyReader) Get(context.Context, string) (*domain.StoryRecord, error) {
	return nil, domain.ErrNotFound
}
func (emptyReader) Archive(context.Context, string) ([]byte, *domain.StoryRecord, error) {
	return nil, nil, domain.ErrNotFound
}

func newTestRouter(t *testing.T, runner *nopRunner, dir string) http.Handler {
	t.Helper()
	app := handlers.NewApp(runner, emptyReader{}, nil, nil)
	return NewRouter(app, Options{
		Logger:          zerolog.New(io.Discard),
		AllowedOrigins:  []string{"*"},
		DefaultLocale:   "en",
		RateLimitPerMin: 1,
		StoriesDir:      dir,
		PublicBasePath:  "/historias",
	})
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t, &nopRunner{}, t.TempDir())
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/universes", http.StatusOK},
		{http.MethodGet, "/api/openapi.json", http.StatusOK},
		{http.MethodGet, "/api/stories", http.StatusOK},
		{http.MethodGet, "/api/stories/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/stories/unknown/archive", http.StatusNotFound},
		{http.MethodGet, "/api/create-story", http.StatusMethodNotAllowed},
		{http.MethodGet, "/historias/", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestRouterServesStoryFiles(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "20250309_140507_aaaa1111_Moon")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, "cover.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := newTestRouter(t, &nopRunner{}, dir)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/historias/20250309_140507_aaaa1111_Moon/cover.png", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "png-bytes" {
		t.Fatalf("static = %d %q", rr.Code, rr.Body.String())
	}
}

func TestCreateStoryIsRateLimited(t *testing.T) {
	runner := &nopRunner{}
	h := newTestRouter(t, runner, t.TempDir())
	body := `{"characters":[{"name":"Ana"}],"universe":{"name":"Oz"}}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/create-story", strings.NewReader(body))
		req.RemoteAddr = "203.0.113.7:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}
	first := send()
	if first.Code != http.StatusOK || !strings.HasPrefix(first.Body.String(), "data: ") {
		t.Fatalf("first = %d %q", first.Code, first.Body.String())
	}
	if first.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
	if second := send(); second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health should not be rate limited: %d", rr.Code)
	}
}

func TestDocsPointAtMountedDocument(t *testing.T) {
	h := newTestRouter(t, &nopRunner{}, t.TempDir())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, APIPrefix+"/docs", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `spec-url="/api/openapi.json"`) {
		t.Fatalf("docs = %d %s", rr.Code, rr.Body.String())
	}
}
