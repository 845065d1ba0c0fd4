// Package png renders chart configs as PNG snapshots with go-chart.
package png

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/pingboard/pingboard/internal/chart"
)

// ErrEmptySeries is returned when the config has no points to draw.
var ErrEmptySeries = errors.New("png: series is empty")

// Size defaults for snapshots.
const (
	DefaultWidth  = 960
	DefaultHeight = 360
	tickCount     = 5
)

// Render writes cfg as a PNG to w.
func Render(w io.Writer, width, height int, cfg chart.Config) error {
	if cfg.Len() == 0 {
		return ErrEmptySeries
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	ds := cfg.Datasets[0]

	xs := make([]float64, len(ds.Data))
	ys := make([]float64, len(ds.Data))
	copy(ys, ds.Data)
	xTicks := make([]gochart.Tick, 0, len(ds.Data))
	for i := range ds.Data {
		xs[i] = float64(i)
		if i < len(cfg.Labels) {
			xTicks = append(xTicks, gochart.Tick{Value: float64(i), Label: cfg.Labels[i]})
		}
	}
	// go-chart rejects a zero-width x range, and derives the range from the
	// ticks when they are set.
	if len(xs) == 1 {
		xs = append(xs, 1)
		ys = append(ys, ys[0])
		xTicks = append(xTicks, gochart.Tick{Value: 1})
	}
	if len(xTicks) < 2 {
		xTicks = nil
	}

	minY, maxY := 0.0, 0.0
	for _, v := range ys {
		minY = min(minY, v)
		maxY = max(maxY, v)
	}
	if maxY <= minY {
		maxY = minY + 1
	}
	values := chart.Ticks(minY, maxY, tickCount)
	var labels []string
	if cfg.Scales != nil && cfg.Scales.Y.HideEdgeTicks {
		labels = chart.TickLabels(values)
	} else {
		labels = make([]string, len(values))
		for i, v := range values {
			labels[i] = chart.FormatTick(v)
		}
	}
	yTicks := make([]gochart.Tick, len(values))
	for i, v := range values {
		yTicks[i] = gochart.Tick{Value: v, Label: labels[i]}
	}

	gridStyle := gochart.Style{StrokeColor: parseColor("rgba(0, 0, 0, 0.05)"), StrokeWidth: 1}
	xAxis := gochart.XAxis{Ticks: xTicks, Range: &gochart.ContinuousRange{Min: 0, Max: xs[len(xs)-1]}}
	yAxis := gochart.YAxis{Range: &gochart.ContinuousRange{Min: minY, Max: maxY}, Ticks: yTicks}
	if cfg.Scales != nil {
		xAxis.Name = cfg.Scales.X.TitleText()
		yAxis.Name = cfg.Scales.Y.TitleText()
		if g := cfg.Scales.Y.Grid; g != nil {
			gridStyle = gochart.Style{StrokeColor: parseColor(g.Color), StrokeWidth: g.LineWidth}
		}
		yAxis.GridMajorStyle = gridStyle
		yAxis.GridLines = gridLines(values)
	}

	graph := gochart.Chart{
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		XAxis:      xAxis,
		YAxis:      yAxis,
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				Name:    ds.Label,
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: parseColor(ds.BorderColor),
					StrokeWidth: 2,
					FillColor:   parseColor(ds.BackgroundColor),
					DotColor:    parseColor(ds.PointBackgroundColor),
					DotWidth:    3,
				},
			},
		},
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	if err := graph.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("png: render: %w", err)
	}
	return nil
}

func gridLines(values []float64) []gochart.GridLine {
	lines := make([]gochart.GridLine, len(values))
	for i, v := range values {
		lines[i] = gochart.GridLine{Value: v}
	}
	return lines
}

// parseColor understands #rgb, #rrggbb and rgb()/rgba() notations. Unknown
// input yields the zero colour, which go-chart treats as unset.
func parseColor(value string) drawing.Color {
	value = strings.TrimSpace(strings.ToLower(value))
	switch {
	case strings.HasPrefix(value, "#"):
		return drawing.ColorFromHex(strings.TrimPrefix(value, "#"))
	case strings.HasPrefix(value, "rgb"):
		open := strings.IndexByte(value, '(')
		end := strings.LastIndexByte(value, ')')
		if open < 0 || end <= open {
			return drawing.Color{}
		}
		parts := strings.Split(value[open+1:end], ",")
		if len(parts) < 3 {
			return drawing.Color{}
		}
		channel := func(s string) uint8 {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return 0
			}
			return uint8(max(0, min(255, n)))
		}
		c := drawing.Color{R: channel(parts[0]), G: channel(parts[1]), B: channel(parts[2]), A: 255}
		if len(parts) == 4 {
			a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err == nil {
				c.A = uint8(max(0, min(1, a)) * 255)
			}
		}
		return c
	default:
		return drawing.Color{}
	}
}
