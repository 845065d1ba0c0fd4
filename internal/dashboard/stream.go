package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	ds "github.com/starfederation/datastar-go/datastar"

	"github.com/pingboard/pingboard/internal/chart"
	"github.com/pingboard/pingboard/internal/platform/httpx"
	"github.com/pingboard/pingboard/internal/refresher"
)

// handleStream pushes every render of a canvas to the browser. The current
// instance is replayed first so a fresh page needs no extra request.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	if !h.charts.Attached(canvasID) {
		httpx.Problem(w, http.StatusNotFound, "Canvas Not Found", "canvas "+canvasID+" is not attached")
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	events := make(chan refresher.RenderEvent, h.cfg.StreamBuffer)
	unsubscribe := h.charts.Subscribe(func(ev refresher.RenderEvent) {
		if ev.Canvas != canvasID {
			return
		}
		// Slow clients drop events; the next one carries the latest chart anyway.
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	sse := ds.NewSSE(w, r)
	ctx := r.Context()
	logger := h.logger.With(slog.String("canvas", canvasID))

	if inst, ok := h.charts.Instance(canvasID); ok {
		if err := h.push(sse, inst); err != nil {
			logger.Debug("chart stream closed", slog.Any("error", err))
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			inst, ok := h.charts.Instance(ev.Canvas)
			if !ok || inst.ID() != ev.InstanceID {
				// Superseded or destroyed before we got to it.
				continue
			}
			if err := h.push(sse, inst); err != nil {
				logger.Debug("chart stream closed", slog.Any("error", err))
				return
			}
		}
	}
}

func (h *Handler) push(sse *ds.ServerSentEventGenerator, inst chart.Instance) error {
	script, err := renderScript(inst)
	if err != nil {
		return err
	}
	if err := sse.ExecuteScript(script); err != nil {
		return err
	}
	html, err := h.views.Fragment("partials/chart_status.html", newStatus(inst))
	if err != nil {
		return err
	}
	return sse.PatchElements(html)
}

func (h *Handler) patchStatus(w http.ResponseWriter, r *http.Request, canvasID string, inst chart.Instance, renderErr error) {
	status := statusView{Canvas: canvasID}
	if inst != nil {
		status = newStatus(inst)
	}
	if renderErr != nil {
		status.Error = renderErr.Error()
	}
	html, err := h.views.Fragment("partials/chart_status.html", status)
	if err != nil {
		h.logger.Error("render chart status", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sse := ds.NewSSE(w, r)
	if err := sse.PatchElements(html); err != nil {
		h.logger.Debug("patch chart status", slog.Any("error", err))
	}
}

func renderScript(inst chart.Instance) (string, error) {
	id, err := json.Marshal(inst.CanvasID())
	if err != nil {
		return "", err
	}
	option := inst.Option()
	if len(option) == 0 {
		return "", fmt.Errorf("dashboard: instance %s has no option", inst.ID())
	}
	return fmt.Sprintf("window.pingboard && window.pingboard.render(%s, %s);", id, option), nil
}

func isDatastar(r *http.Request) bool {
	return r.Header.Get("Datastar-Request") == "true"
}
