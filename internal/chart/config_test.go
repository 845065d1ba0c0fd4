package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() DataPayload {
	return DataPayload{X: []float64{10, 20, 15}, Y: []Label{"t1", "t2", "t3"}}
}

func TestBuildConfigEnhanced(t *testing.T) {
	cfg := BuildConfig(samplePayload(), DefaultOptions())

	assert.Equal(t, TypeLine, cfg.Type)
	assert.Equal(t, []string{"t1", "t2", "t3"}, cfg.Labels)
	require.Len(t, cfg.Datasets, 1)
	ds := cfg.Datasets[0]
	assert.Equal(t, []float64{10, 20, 15}, ds.Data)
	assert.Equal(t, "Response Time (ms)", ds.Label)
	assert.Equal(t, "rgba(100, 100, 225, 0.25)", ds.BackgroundColor)
	assert.Equal(t, "rgba(50, 50, 175, 1)", ds.BorderColor)
	assert.Equal(t, "rgba(102, 126, 234, 1)", ds.PointBackgroundColor)

	require.NotNil(t, cfg.Scales)
	assert.Equal(t, AxisCategory, cfg.Scales.X.Type)
	assert.Equal(t, AxisLinear, cfg.Scales.Y.Type)
	assert.True(t, cfg.Scales.Y.HideEdgeTicks)
	assert.Equal(t, "Time", cfg.Scales.X.TitleText())
	require.NotNil(t, cfg.Interaction)
	assert.Equal(t, "x", cfg.Interaction.Pan.Mode)
	assert.Equal(t, "shift", cfg.Interaction.Pan.ModifierKey)
	assert.True(t, cfg.Interaction.Zoom.Drag)
	assert.False(t, cfg.Interaction.Zoom.Wheel)
	assert.False(t, cfg.Tooltip.Enabled)
	assert.True(t, cfg.Enhanced())
}

func TestBuildConfigBasic(t *testing.T) {
	cfg := BuildConfig(samplePayload(), Options{Variant: VariantBasic, Presentation: DefaultPresentation()})
	assert.Nil(t, cfg.Scales)
	assert.Nil(t, cfg.Interaction)
	assert.True(t, cfg.Tooltip.Enabled)
	assert.False(t, cfg.Enhanced())
}

func TestBuildConfigCopiesPayload(t *testing.T) {
	p := samplePayload()
	cfg := BuildConfig(p, DefaultOptions())
	p.X[0] = 999
	p.Y[0] = "changed"
	assert.Equal(t, 10.0, cfg.Datasets[0].Data[0])
	assert.Equal(t, "t1", cfg.Labels[0])
}

func TestBuildConfigEmpty(t *testing.T) {
	cfg := BuildConfig(DataPayload{}, DefaultOptions())
	assert.Empty(t, cfg.Labels)
	assert.Zero(t, cfg.Len())
}

func TestConfigCloneIsDeep(t *testing.T) {
	cfg := BuildConfig(DataPayload{X: []float64{1, 2}, Y: []Label{"a", "b"}}, DefaultOptions())
	cp := cfg.Clone()
	require.Equal(t, cfg, cp)

	cp.Labels[0] = "z"
	cp.Datasets[0].Data[0] = 99
	cp.Scales.Y.Grid.Color = "red"
	cp.Interaction.Pan.ModifierKey = "alt"

	assert.Equal(t, "a", cfg.Labels[0])
	assert.Equal(t, 1.0, cfg.Datasets[0].Data[0])
	assert.Equal(t, DefaultPresentation().GridColor, cfg.Scales.Y.Grid.Color)
	assert.Equal(t, "shift", cfg.Interaction.Pan.ModifierKey)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantEnhanced, v)
	v, err = ParseVariant(" Basic ")
	require.NoError(t, err)
	assert.Equal(t, VariantBasic, v)
	_, err = ParseVariant("fancy")
	assert.Error(t, err)
}

func TestDefaultPresentationIsFresh(t *testing.T) {
	a := DefaultPresentation()
	a.DatasetLabel = "mutated"
	assert.Equal(t, "Response Time (ms)", DefaultPresentation().DatasetLabel)
}
