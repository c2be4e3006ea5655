package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/foamcrew/foamcrew/internal/actions"
	"github.com/foamcrew/foamcrew/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	ActionHandler *actions.Handler
	Metrics       *observability.Metrics

	// MediaRoot is served read-only under the media base URL so
	// clients can fetch stored work orders, PDFs, and photos.
	MediaRoot    string
	MediaBaseURL string
}

// NewRouter constructs the chi.Router for the action API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", params.ActionHandler.MountRoutes)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.MediaRoot != "" {
		base := params.MediaBaseURL
		if base == "" {
			base = "/media"
		}
		fileServer := http.StripPrefix(base+"/", http.FileServer(http.Dir(params.MediaRoot)))
		r.Handle(base+"/*", mediaCacheHandler(fileServer))
	}

	return r
}

// mediaCacheHandler wraps the media file server with Cache-Control
// headers. Stored documents are immutable once written, so a long
// browser cache is safe.
func mediaCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		next.ServeHTTP(w, r)
	})
}
