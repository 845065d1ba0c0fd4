package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pingboard/pingboard/internal/jobs"
	"github.com/pingboard/pingboard/internal/requests"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Prober runs probes for the job.
type Prober interface {
	ProbeAll(ctx context.Context, requestID int64) (requests.ProbeReport, error)
}

// ProbeJob times monitored requests and records their samples.
type ProbeJob struct {
	Prober  Prober
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewProbeJob wires dependencies for the probe handler.
func NewProbeJob(prober Prober, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProbeJob {
	return &ProbeJob{
		Prober:  prober,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes probe tasks.
func (j *ProbeJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Prober == nil {
		return errors.New("requests probe: handler not configured")
	}
	var payload ProbePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRequestsProbe)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("request_id", payload.RequestID))
	start := j.now()
	report, err := j.Prober.ProbeAll(ctx, payload.RequestID)
	if errors.Is(err, requests.ErrNotFound) {
		logger.Warn("probe target missing")
		return asynq.SkipRetry
	}
	if err != nil {
		logger.Error("probe requests", slog.Any("error", err))
		return err
	}
	j.metrics().AddProbes(report.Probed, report.Failed)
	logger.Info("completed probe run",
		slog.Int("probed", report.Probed),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *ProbeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRequestsProbe))
	}
	return slog.Default().With(slog.String("job", TaskRequestsProbe))
}

func (j *ProbeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ProbeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
