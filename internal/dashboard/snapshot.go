package dashboard

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pingboard/pingboard/internal/chart"
	"github.com/pingboard/pingboard/internal/chart/png"
	"github.com/pingboard/pingboard/internal/chart/svg"
	"github.com/pingboard/pingboard/internal/platform/httpx"
)

func (h *Handler) handleSVG(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.snapshotInstance(w, r)
	if !ok {
		return
	}
	width, height := snapshotSize(r, svg.DefaultWidth, svg.DefaultHeight)
	doc, err := svg.Line(width, height, inst.Config(), svg.LineOpts{
		Title:       canvasTitle(inst.CanvasID()),
		Description: strconv.Itoa(inst.Config().Len()) + " points",
		ShowDots:    true,
	})
	if err != nil {
		h.logger.Error("render svg snapshot", slog.String("canvas", inst.CanvasID()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(doc))
}

func (h *Handler) handlePNG(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.snapshotInstance(w, r)
	if !ok {
		return
	}
	width, height := snapshotSize(r, png.DefaultWidth, png.DefaultHeight)
	var buf bytes.Buffer
	if err := png.Render(&buf, width, height, inst.Config()); err != nil {
		if errors.Is(err, png.ErrEmptySeries) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Empty Chart", err.Error())
			return
		}
		h.logger.Error("render png snapshot", slog.String("canvas", inst.CanvasID()), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) snapshotInstance(w http.ResponseWriter, r *http.Request) (chart.Instance, bool) {
	canvasID := chi.URLParam(r, "canvasID")
	inst, ok := h.charts.Instance(canvasID)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no chart rendered on canvas "+canvasID)
		return nil, false
	}
	return inst, true
}

const maxSnapshotSide = 4096

func snapshotSize(r *http.Request, width, height int) (int, int) {
	if v, err := strconv.Atoi(r.URL.Query().Get("w")); err == nil && v > 0 && v <= maxSnapshotSide {
		width = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("h")); err == nil && v > 0 && v <= maxSnapshotSide {
		height = v
	}
	return width, height
}
