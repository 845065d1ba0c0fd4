package svg

// LineOpts customises the line chart renderer. Colours left empty fall back
// to the dataset colours of the config.
type LineOpts struct {
	Title       string
	Description string
	AxisColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
}

// Defaults for the snapshot renderer.
const (
	DefaultWidth   = 720
	DefaultHeight  = 240
	DefaultPadding = 32.0
	DefaultTicks   = 5
)
