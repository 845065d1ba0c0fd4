// Package echarts binds chart configs to go-echarts line charts.
package echarts

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"

	"github.com/pingboard/pingboard/internal/chart"
)

// Library creates go-echarts instances and tracks the live ones.
type Library struct {
	mu   sync.Mutex
	live map[string]*Instance
	now  func() time.Time
}

// NewLibrary constructs an empty library.
func NewLibrary() *Library {
	return &Library{live: make(map[string]*Instance), now: time.Now}
}

// Create renders cfg into a go-echarts option and registers the instance.
func (l *Library) Create(canvasID string, cfg chart.Config) (chart.Instance, error) {
	if canvasID == "" {
		return nil, fmt.Errorf("echarts: canvas id required")
	}
	option, err := BuildOption(cfg)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		id:      uuid.NewString(),
		canvas:  canvasID,
		cfg:     cfg.Clone(),
		option:  option,
		created: l.now().UTC(),
		lib:     l,
	}
	l.mu.Lock()
	l.live[inst.id] = inst
	l.mu.Unlock()
	return inst, nil
}

// Live returns the number of instances not yet destroyed.
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// LiveOn returns the number of live instances bound to canvasID.
func (l *Library) LiveOn(canvasID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, inst := range l.live {
		if inst.canvas == canvasID {
			n++
		}
	}
	return n
}

func (l *Library) release(id string) {
	l.mu.Lock()
	delete(l.live, id)
	l.mu.Unlock()
}

// Instance is a go-echarts chart bound to a canvas.
type Instance struct {
	id      string
	canvas  string
	cfg     chart.Config
	option  json.RawMessage
	created time.Time
	lib     *Library

	once      sync.Once
	mu        sync.RWMutex
	destroyed bool
}

func (i *Instance) ID() string           { return i.id }
func (i *Instance) CanvasID() string     { return i.canvas }
func (i *Instance) Config() chart.Config { return i.cfg.Clone() }
func (i *Instance) CreatedAt() time.Time { return i.created }

// Option returns a copy of the echarts option JSON.
func (i *Instance) Option() json.RawMessage {
	out := make(json.RawMessage, len(i.option))
	copy(out, i.option)
	return out
}

// Destroy unregisters the instance from its library.
func (i *Instance) Destroy() {
	i.once.Do(func() {
		i.mu.Lock()
		i.destroyed = true
		i.mu.Unlock()
		if i.lib != nil {
			i.lib.release(i.id)
		}
	})
}

func (i *Instance) Destroyed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.destroyed
}

// BuildOption maps a chart config onto an echarts option document.
func BuildOption(cfg chart.Config) (json.RawMessage, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(cfg.Tooltip.Enabled)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	if cfg.Scales != nil {
		line.SetGlobalOptions(
			charts.WithXAxisOpts(opts.XAxis{Type: string(cfg.Scales.X.Type), Name: cfg.Scales.X.TitleText()}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: cfg.Scales.Y.TitleText()}),
		)
	}

	line.SetXAxis(cfg.Labels)
	for _, ds := range cfg.Datasets {
		items := make([]opts.LineData, len(ds.Data))
		for i, v := range ds.Data {
			items[i] = opts.LineData{Value: v}
		}
		line.AddSeries(ds.Label, items,
			charts.WithLineStyleOpts(opts.LineStyle{Color: ds.BorderColor}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: ds.PointBackgroundColor}),
			charts.WithAreaStyleOpts(opts.AreaStyle{Color: ds.BackgroundColor}),
		)
	}
	line.Validate()

	raw, err := json.Marshal(line.JSON())
	if err != nil {
		return nil, fmt.Errorf("echarts: marshal option: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("echarts: decode option: %w", err)
	}
	if cfg.Scales != nil {
		decorateAxes(doc, cfg.Scales)
	}
	if cfg.Interaction != nil {
		decorateInteraction(doc, cfg.Interaction)
	}
	pruneEmpty(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("echarts: encode option: %w", err)
	}
	return out, nil
}

func decorateAxes(doc map[string]any, scales *chart.Scales) {
	for key, axis := range map[string]chart.Axis{"xAxis": scales.X, "yAxis": scales.Y} {
		entry := firstAxis(doc, key)
		if axis.Grid != nil {
			entry["splitLine"] = map[string]any{
				"show":      true,
				"lineStyle": map[string]any{"color": axis.Grid.Color, "width": axis.Grid.LineWidth},
			}
		}
		if axis.HideEdgeTicks {
			label, _ := entry["axisLabel"].(map[string]any)
			if label == nil {
				label = map[string]any{}
			}
			label["showMinLabel"] = false
			label["showMaxLabel"] = false
			entry["axisLabel"] = label
		}
	}
}

func decorateInteraction(doc map[string]any, in *chart.Interaction) {
	if in.Pan.Enabled {
		doc["dataZoom"] = []any{map[string]any{
			"type":             "inside",
			"xAxisIndex":       0,
			"filterMode":       "none",
			"moveOnMouseMove":  in.Pan.ModifierKey,
			"zoomOnMouseWheel": in.Zoom.Wheel,
		}}
	}
	if in.Zoom.Drag {
		doc["toolbox"] = map[string]any{
			"show": true,
			"feature": map[string]any{
				"dataZoom": map[string]any{"yAxisIndex": "none"},
				"restore":  map[string]any{},
			},
		}
	}
}

// pruneEmpty drops the empty components go-echarts always emits, such as
// "title" and "toolbox".
func pruneEmpty(doc map[string]any) {
	for key, v := range doc {
		if m, ok := v.(map[string]any); ok && len(m) == 0 {
			delete(doc, key)
		}
	}
}

func firstAxis(doc map[string]any, key string) map[string]any {
	switch v := doc[key].(type) {
	case []any:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return m
			}
		}
		m := map[string]any{}
		doc[key] = []any{m}
		return m
	case map[string]any:
		return v
	default:
		m := map[string]any{}
		doc[key] = []any{m}
		return m
	}
}
