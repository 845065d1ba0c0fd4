package dashboard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the page, instance, refresh and snapshot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/", h.handlePage)
	r.Get("/charts/{canvasID}", h.handleInstance)
	r.Get("/charts/{canvasID}/snapshot.svg", h.handleSVG)
	r.Get("/charts/{canvasID}/snapshot.png", h.handlePNG)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/charts/{canvasID}/refresh", h.handleRefresh)
		gr.Post("/demo/randomize", h.handleRandomize)
	})
}

// MountStreams registers long-lived SSE routes. They must sit outside any
// timeout or compression middleware.
func (h *Handler) MountStreams(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/charts/{canvasID}/stream", h.handleStream)
}
