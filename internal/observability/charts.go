package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChartMetrics mencatat hasil setiap siklus fetch-and-render.
type ChartMetrics struct {
	renders  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	live     prometheus.Gauge
}

func newChartMetrics(registerer prometheus.Registerer) *ChartMetrics {
	renders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pingboard_chart_renders_total",
		Help: "Jumlah render chart berdasarkan canvas dan hasil.",
	}, []string{"canvas", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pingboard_chart_render_duration_seconds",
		Help:    "Durasi fetch, decode dan render chart per canvas.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"canvas"})
	live := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pingboard_chart_live_instances",
		Help: "Jumlah instance chart yang masih hidup.",
	})
	registerer.MustRegister(renders, duration, live)
	return &ChartMetrics{renders: renders, duration: duration, live: live}
}

// ObserveRender mencatat satu percobaan render.
func (c *ChartMetrics) ObserveRender(canvas, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(canvas, outcome).Inc()
	c.duration.WithLabelValues(canvas).Observe(elapsed.Seconds())
}

// SetLiveInstances memperbarui gauge instance hidup.
func (c *ChartMetrics) SetLiveInstances(n int) {
	if c == nil {
		return
	}
	c.live.Set(float64(n))
}
