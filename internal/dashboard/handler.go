// Package dashboard serves the chart page, chart instances, snapshots and the
// live SSE stream on top of the refresher.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	ds "github.com/starfederation/datastar-go/datastar"

	"github.com/pingboard/pingboard/internal/chart"
	"github.com/pingboard/pingboard/internal/chart/demo"
	"github.com/pingboard/pingboard/internal/platform/httpx"
	"github.com/pingboard/pingboard/internal/refresher"
	"github.com/pingboard/pingboard/internal/view"
)

// DemoCanvas hosts the randomised demo chart.
const DemoCanvas = "demo"

const refreshTimeout = 10 * time.Second

// Charts is the refresher contract used by the dashboard.
type Charts interface {
	FetchAndRenderTo(ctx context.Context, canvasID, endpoint string) (chart.Instance, error)
	RenderConfig(canvasID string, cfg chart.Config) (chart.Instance, error)
	Instance(canvasID string) (chart.Instance, bool)
	Attached(canvasID string) bool
	Canvases() []string
	Bindings() map[string]string
	Subscribe(fn func(refresher.RenderEvent)) func()
}

// Config carries the dashboard defaults.
type Config struct {
	DefaultEndpoint string
	StreamBuffer    int
}

// Handler serves dashboard routes.
type Handler struct {
	logger *slog.Logger
	views  *view.Engine
	charts Charts
	demo   *demo.Randomizer
	cfg    Config
}

// NewHandler constructs a dashboard handler. randomizer may be nil when the
// demo canvas is not used.
func NewHandler(logger *slog.Logger, views *view.Engine, charts Charts, randomizer *demo.Randomizer, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 8
	}
	return &Handler{logger: logger, views: views, charts: charts, demo: randomizer, cfg: cfg}
}

type canvasView struct {
	ID          string
	Title       string
	Endpoint    string
	Signals     string
	Refreshable bool
	Option      string
	Status      statusView
}

type statusView struct {
	Canvas     string
	Points     int
	Rendered   bool
	RenderedAt time.Time
	Error      string
}

type instanceView struct {
	ID         string          `json:"id"`
	Canvas     string          `json:"canvas"`
	Endpoint   string          `json:"endpoint,omitempty"`
	Points     int             `json:"points"`
	RenderedAt time.Time       `json:"rendered_at"`
	Option     json.RawMessage `json:"option"`
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	bindings := h.charts.Bindings()
	canvases := h.charts.Canvases()
	views := make([]canvasView, 0, len(canvases))
	for _, id := range canvases {
		cv := canvasView{
			ID:          id,
			Title:       canvasTitle(id),
			Endpoint:    h.cfg.DefaultEndpoint,
			Refreshable: id != DemoCanvas,
			Status:      statusView{Canvas: id},
		}
		if ep, ok := bindings[id]; ok {
			cv.Endpoint = ep
		}
		signals, err := json.Marshal(refreshSignals{Endpoint: cv.Endpoint})
		if err != nil {
			h.logger.Error("encode signals", slog.String("canvas", id), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		cv.Signals = string(signals)
		if inst, ok := h.charts.Instance(id); ok {
			cv.Option = string(inst.Option())
			cv.Status = newStatus(inst)
		}
		views = append(views, cv)
	}
	err := h.views.Render(w, "pages/dashboard.html", view.TemplateData{
		Title:       "Dashboard",
		CurrentPath: r.URL.Path,
		Data:        map[string]any{"Canvases": views},
	})
	if err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleInstance(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	inst, ok := h.charts.Instance(canvasID)
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no chart rendered on canvas "+canvasID)
		return
	}
	httpx.JSON(w, http.StatusOK, h.instanceView(inst))
}

type refreshSignals struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	canvasID := chi.URLParam(r, "canvasID")
	endpoint := r.URL.Query().Get("endpoint")
	streaming := isDatastar(r)
	if streaming && endpoint == "" {
		var sig refreshSignals
		if err := ds.ReadSignals(r, &sig); err == nil {
			endpoint = sig.Endpoint
		}
	}
	if endpoint == "" {
		endpoint = h.cfg.DefaultEndpoint
	}

	if !sameOrigin(endpoint) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Endpoint", "endpoint must be a path on this server")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	inst, err := h.charts.FetchAndRenderTo(ctx, canvasID, endpoint)
	if streaming {
		h.patchStatus(w, r, canvasID, inst, err)
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.instanceView(inst))
}

func (h *Handler) handleRandomize(w http.ResponseWriter, r *http.Request) {
	if h.demo == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "demo chart disabled")
		return
	}
	inst, err := h.charts.RenderConfig(DemoCanvas, h.demo.Config())
	if isDatastar(r) {
		h.patchStatus(w, r, DemoCanvas, inst, err)
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.instanceView(inst))
}

func (h *Handler) instanceView(inst chart.Instance) instanceView {
	return instanceView{
		ID:         inst.ID(),
		Canvas:     inst.CanvasID(),
		Endpoint:   h.charts.Bindings()[inst.CanvasID()],
		Points:     inst.Config().Len(),
		RenderedAt: inst.CreatedAt(),
		Option:     inst.Option(),
	}
}

func newStatus(inst chart.Instance) statusView {
	return statusView{
		Canvas:     inst.CanvasID(),
		Points:     inst.Config().Len(),
		Rendered:   true,
		RenderedAt: inst.CreatedAt(),
	}
}

// sameOrigin accepts only a path on this server. Quotes, backslashes, angle
// brackets and control characters are refused since the endpoint is echoed
// back into the dashboard.
func sameOrigin(endpoint string) bool {
	if !strings.HasPrefix(endpoint, "/") || strings.HasPrefix(endpoint, "//") {
		return false
	}
	if strings.ContainsAny(endpoint, "'\"\\<>`") {
		return false
	}
	for _, r := range endpoint {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	u, err := url.Parse(endpoint)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func canvasTitle(id string) string {
	switch id {
	case refresher.DefaultCanvas:
		return "Response time"
	case DemoCanvas:
		return "Demo"
	default:
		return id
	}
}
