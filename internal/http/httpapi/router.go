package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storymaker/internal/http/handlers"
	"storymaker/internal/infra"
	"storymaker/internal/middleware"
)

// Options carries the router settings that come from configuration.
type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	RateLimitPerMin int
	// StoriesDir is served under PublicBasePath when both are set.
	StoriesDir     string
	PublicBasePath string
}

// APIPrefix is where the JSON API is mounted.
const APIPrefix = "/api"

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", app.Health)
		r.Get("/universes", app.Universes)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs(APIPrefix+"/openapi.json"))

		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).
			Post("/create-story", app.CreateStory)

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", app.ListStories)
			r.Get("/{id}", app.GetStory)
			r.Get("/{id}/archive", app.ArchiveStory)
		})
	})

	if opts.StoriesDir != "" && opts.PublicBasePath != "" {
		base := "/" + strings.Trim(opts.PublicBasePath, "/")
		files := http.StripPrefix(base+"/", http.FileServer(http.Dir(opts.StoriesDir)))
		r.Get(base+"/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			files.ServeHTTP(w, r)
		})
	}

	return r
}
