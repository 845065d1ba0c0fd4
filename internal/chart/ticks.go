package chart

import (
	"fmt"
	"math"
)

// TickVisible reports whether the tick at index of count ticks keeps its
// label. The first and last ticks are hidden on the enhanced y axis.
func TickVisible(index, count int) bool {
	return index > 0 && index < count-1
}

// TickLabels formats values as axis labels, blanking the edge labels.
func TickLabels(values []float64) []string {
	labels := make([]string, len(values))
	for i, v := range values {
		if TickVisible(i, len(values)) {
			labels[i] = FormatTick(v)
		}
	}
	return labels
}

// Ticks returns count+1 evenly spaced values from min to max inclusive.
func Ticks(min, max float64, count int) []float64 {
	if count <= 0 {
		return nil
	}
	out := make([]float64, count+1)
	for i := range out {
		out[i] = min + (max-min)*float64(i)/float64(count)
	}
	return out
}

// FormatTick shortens large values with a k/M/B suffix.
func FormatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", v/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	default:
		if math.Abs(v-math.Round(v)) < 1e-9 {
			return fmt.Sprintf("%.0f", v)
		}
		return fmt.Sprintf("%.2f", v)
	}
}
