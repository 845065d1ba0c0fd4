package chart

import (
	"fmt"
	"strings"
)

// TypeLine is the only chart type produced by BuildConfig.
const TypeLine = "line"

// Variant selects how much presentation is attached to a config.
type Variant string

const (
	// VariantBasic renders the dataset with default axes and tooltips.
	VariantBasic Variant = "basic"
	// VariantEnhanced adds typed axes, edge tick suppression, grid styling,
	// axis titles and modifier-gated pan/zoom, and disables tooltips.
	VariantEnhanced Variant = "enhanced"
)

// ParseVariant maps a configuration string to a Variant.
func ParseVariant(value string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(value))) {
	case "", VariantEnhanced:
		return VariantEnhanced, nil
	case VariantBasic:
		return VariantBasic, nil
	default:
		return "", fmt.Errorf("chart: unknown variant %q", value)
	}
}

// Presentation holds the static styling applied to every render.
type Presentation struct {
	DatasetLabel    string
	BackgroundColor string
	BorderColor     string
	PointColor      string
	XAxisName       string
	YAxisName       string
	GridColor       string
	PanModifier     string
}

// DefaultPresentation returns the response-time styling.
func DefaultPresentation() Presentation {
	return Presentation{
		DatasetLabel:    "Response Time (ms)",
		BackgroundColor: "rgba(100, 100, 225, 0.25)",
		BorderColor:     "rgba(50, 50, 175, 1)",
		PointColor:      "rgba(102, 126, 234, 1)",
		XAxisName:       "Time",
		YAxisName:       "Response Time (ms)",
		GridColor:       "rgba(0, 0, 0, 0.05)",
		PanModifier:     "shift",
	}
}

// Options is passed to BuildConfig on every render.
type Options struct {
	Variant      Variant
	Presentation Presentation
}

// DefaultOptions returns enhanced options with the default presentation.
func DefaultOptions() Options {
	return Options{Variant: VariantEnhanced, Presentation: DefaultPresentation()}
}

// Config is a chart description handed to a charting library.
type Config struct {
	Type        string       `json:"type"`
	Labels      []string     `json:"labels"`
	Datasets    []Dataset    `json:"datasets"`
	Scales      *Scales      `json:"scales,omitempty"`
	Interaction *Interaction `json:"interaction,omitempty"`
	Tooltip     Tooltip      `json:"tooltip"`
}

// Dataset is one plotted series.
type Dataset struct {
	Label                string    `json:"label"`
	Data                 []float64 `json:"data"`
	BackgroundColor      string    `json:"backgroundColor"`
	BorderColor          string    `json:"borderColor,omitempty"`
	PointBackgroundColor string    `json:"pointBackgroundColor,omitempty"`
}

// AxisType names the scale used by an axis.
type AxisType string

const (
	AxisCategory AxisType = "category"
	AxisLinear   AxisType = "linear"
)

// Axis describes one scale of an enhanced config.
type Axis struct {
	Type          AxisType `json:"type"`
	Name          string   `json:"name"`
	Grid          *Grid    `json:"grid,omitempty"`
	HideEdgeTicks bool     `json:"hideEdgeTicks,omitempty"`
}

// TitleText is the axis title callback; it shows the axis name.
func (a Axis) TitleText() string {
	return a.Name
}

// Grid styles the grid lines drawn for an axis.
type Grid struct {
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
}

// Scales groups the two axes.
type Scales struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

// Interaction configures pan and zoom behaviour.
type Interaction struct {
	Pan  Pan  `json:"pan"`
	Zoom Zoom `json:"zoom"`
}

// Pan is only active while ModifierKey is held.
type Pan struct {
	Enabled     bool   `json:"enabled"`
	Mode        string `json:"mode"`
	ModifierKey string `json:"modifierKey"`
}

// Zoom restricts zooming to drag selection along Mode.
type Zoom struct {
	Drag  bool   `json:"drag"`
	Wheel bool   `json:"wheel"`
	Mode  string `json:"mode"`
}

// Tooltip toggles hover tooltips.
type Tooltip struct {
	Enabled bool `json:"enabled"`
}

// Len returns the number of points in the first dataset.
func (c Config) Len() int {
	if len(c.Datasets) == 0 {
		return 0
	}
	return len(c.Datasets[0].Data)
}

// Clone returns a deep copy so callers cannot reach a live instance's slices.
func (c Config) Clone() Config {
	out := c
	if c.Labels != nil {
		out.Labels = append(make([]string, 0, len(c.Labels)), c.Labels...)
	}
	if c.Datasets != nil {
		out.Datasets = make([]Dataset, len(c.Datasets))
		for i, ds := range c.Datasets {
			if ds.Data != nil {
				ds.Data = append(make([]float64, 0, len(ds.Data)), ds.Data...)
			}
			out.Datasets[i] = ds
		}
	}
	if c.Scales != nil {
		scales := *c.Scales
		scales.X.Grid = cloneGrid(scales.X.Grid)
		scales.Y.Grid = cloneGrid(scales.Y.Grid)
		out.Scales = &scales
	}
	if c.Interaction != nil {
		in := *c.Interaction
		out.Interaction = &in
	}
	return out
}

func cloneGrid(g *Grid) *Grid {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}

// Enhanced reports whether the config carries enhanced axes.
func (c Config) Enhanced() bool {
	return c.Scales != nil
}

// BuildConfig reshapes a payload into a fresh Config. The payload slices are
// copied so later changes to the payload never reach the config.
func BuildConfig(payload DataPayload, opts Options) Config {
	p := opts.Presentation
	data := make([]float64, len(payload.X))
	copy(data, payload.X)

	cfg := Config{
		Type:   TypeLine,
		Labels: payload.Labels(),
		Datasets: []Dataset{{
			Label:                p.DatasetLabel,
			Data:                 data,
			BackgroundColor:      p.BackgroundColor,
			BorderColor:          p.BorderColor,
			PointBackgroundColor: p.PointColor,
		}},
		Tooltip: Tooltip{Enabled: true},
	}
	if opts.Variant != VariantEnhanced {
		return cfg
	}

	grid := &Grid{Color: p.GridColor, LineWidth: 1}
	cfg.Scales = &Scales{
		X: Axis{Type: AxisCategory, Name: p.XAxisName, Grid: grid},
		Y: Axis{Type: AxisLinear, Name: p.YAxisName, Grid: grid, HideEdgeTicks: true},
	}
	cfg.Interaction = &Interaction{
		Pan:  Pan{Enabled: true, Mode: "x", ModifierKey: p.PanModifier},
		Zoom: Zoom{Drag: true, Wheel: false, Mode: "x"},
	}
	cfg.Tooltip = Tooltip{Enabled: false}
	return cfg
}
