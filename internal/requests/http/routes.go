// Package requesthttp exposes monitored requests and their samples over HTTP.
package requesthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the request endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(30, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/requests", h.handleList)
	r.Get("/requests/{id}/data", h.handleData)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/requests", h.handleCreate)
		gr.Get("/requests/{id}/data.csv", h.handleCSV)
		gr.Post("/requests/{id}/samples", h.handleRecordSample)
		gr.Post("/requests/{id}/probe", h.handleProbe)
	})
}
