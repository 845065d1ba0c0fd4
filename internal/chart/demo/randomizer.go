// Package demo produces random in-memory charts for the dashboard demo canvas.
package demo

import (
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/pingboard/pingboard/internal/chart"
)

// Bounds of generated values, inclusive.
const (
	MinValue = 5
	MaxValue = 50
)

const (
	datasetLabel = "Data One"
	datasetColor = "#f87979"
	points       = 2
	datasets     = 2
)

// Randomizer builds configs with random labels and values.
type Randomizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomizer uses rng, or a randomly seeded source when rng is nil.
func NewRandomizer(rng *rand.Rand) *Randomizer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Randomizer{rng: rng}
}

// Config returns a basic line config with two datasets of two points.
func (r *Randomizer) Config() chart.Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	labels := make([]string, points)
	for i := range labels {
		labels[i] = strconv.Itoa(r.intn())
	}
	sets := make([]chart.Dataset, datasets)
	for i := range sets {
		data := make([]float64, points)
		for j := range data {
			data[j] = float64(r.intn())
		}
		sets[i] = chart.Dataset{Label: datasetLabel, BackgroundColor: datasetColor, Data: data}
	}
	return chart.Config{
		Type:     chart.TypeLine,
		Labels:   labels,
		Datasets: sets,
		Tooltip:  chart.Tooltip{Enabled: true},
	}
}

func (r *Randomizer) intn() int {
	return MinValue + r.rng.IntN(MaxValue-MinValue+1)
}
