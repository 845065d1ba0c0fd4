package chart

import (
	"encoding/json"
	"time"
)

// Instance is a live chart owned by a charting library and bound to one
// canvas. Destroy releases it; calling Destroy twice is a no-op.
type Instance interface {
	ID() string
	CanvasID() string
	Config() Config
	Option() json.RawMessage
	CreatedAt() time.Time
	Destroy()
	Destroyed() bool
}

// Library creates chart instances on canvases.
type Library interface {
	Create(canvasID string, cfg Config) (Instance, error)
}
