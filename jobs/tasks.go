package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRequestsProbe times monitored requests and records samples.
	TaskRequestsProbe = "requests:probe"
	// TaskSeriesWarmup pre-populates the series cache for active requests.
	TaskSeriesWarmup = "requests:series_warmup"
)

// ProbePayload selects the request to probe. A zero RequestID probes every
// active request.
type ProbePayload struct {
	RequestID int64 `json:"request_id,omitempty"`
}

// NewProbeTask constructs a probe task.
func NewProbeTask(requestID int64) (*asynq.Task, error) {
	data, err := json.Marshal(ProbePayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRequestsProbe, data), nil
}

// SeriesWarmupPayload is reserved for future scoping; it is empty today.
type SeriesWarmupPayload struct{}

// NewSeriesWarmupTask constructs a warmup task.
func NewSeriesWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(SeriesWarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSeriesWarmup, data), nil
}
