package demo

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShapeAndRange(t *testing.T) {
	r := NewRandomizer(rand.New(rand.NewPCG(1, 2)))
	for n := 0; n < 200; n++ {
		cfg := r.Config()
		require.Len(t, cfg.Labels, 2)
		require.Len(t, cfg.Datasets, 2)
		for _, label := range cfg.Labels {
			v, err := strconv.Atoi(label)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, MinValue)
			assert.LessOrEqual(t, v, MaxValue)
		}
		for _, ds := range cfg.Datasets {
			assert.Equal(t, "Data One", ds.Label)
			assert.Equal(t, "#f87979", ds.BackgroundColor)
			require.Len(t, ds.Data, 2)
			for _, v := range ds.Data {
				assert.GreaterOrEqual(t, v, float64(MinValue))
				assert.LessOrEqual(t, v, float64(MaxValue))
			}
		}
	}
}

func TestSeededRandomizerIsDeterministic(t *testing.T) {
	a := NewRandomizer(rand.New(rand.NewPCG(7, 7))).Config()
	b := NewRandomizer(rand.New(rand.NewPCG(7, 7))).Config()
	assert.Equal(t, a, b)
}
