// Package requests stores monitored HTTP requests and their response time
// samples, and serves the recent samples as chart payloads.
package requests

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pingboard/pingboard/internal/platform/httpx"
)

// LabelLayout formats sample times as chart labels.
const LabelLayout = "15:04:05"

// Errors returned by the package. They wrap the httpx sentinels so handlers
// can map them directly.
var (
	ErrNotFound   = fmt.Errorf("requests: request %w", httpx.ErrNotFound)
	ErrInvalid    = fmt.Errorf("requests: sample %w", httpx.ErrValidation)
	ErrNotActive  = fmt.Errorf("requests: request inactive: %w", httpx.ErrValidation)
	ErrDuplicated = fmt.Errorf("requests: %w", httpx.ErrDuplicate)
)

// MonitoredRequest is an HTTP endpoint probed on a schedule.
type MonitoredRequest struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Sample is one timed probe of a monitored request.
type Sample struct {
	ID         uuid.UUID `json:"id"`
	RequestID  int64     `json:"request_id"`
	ResponseMS float64   `json:"response_ms"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// SampleInput is the payload accepted by RecordSample.
type SampleInput struct {
	RequestID  int64     `json:"-" validate:"required,gt=0"`
	ResponseMS float64   `json:"response_ms" validate:"gte=0,lte=3600000"`
	StatusCode int       `json:"status_code" validate:"omitempty,gte=100,lte=599"`
	Error      string    `json:"error" validate:"max=512"`
	ObservedAt time.Time `json:"observed_at"`
}

// RequestInput registers a new monitored request.
type RequestInput struct {
	Name   string `json:"name" validate:"required,max=120"`
	URL    string `json:"url" validate:"required,url"`
	Method string `json:"method" validate:"omitempty,oneof=GET HEAD POST"`
}

// ListFilter narrows ListRequests.
type ListFilter struct {
	ActiveOnly bool
}
