package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pingboard/pingboard/internal/chart"
	jobmetrics "github.com/pingboard/pingboard/internal/jobs"
)

// SeriesLoader loads chart series through the cache.
type SeriesLoader interface {
	Series(ctx context.Context, requestID int64) (chart.DataPayload, error)
}

// SeriesWarmupJob pre-populates the series cache for requests with samples.
type SeriesWarmupJob struct {
	Series  SeriesLoader
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSeriesWarmupJob wires dependencies for the warmup handler.
func NewSeriesWarmupJob(series SeriesLoader, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SeriesWarmupJob {
	return &SeriesWarmupJob{
		Series:  series,
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes series warmup tasks.
func (j *SeriesWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil {
		return errors.New("series warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskSeriesWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	ids, err := j.fetchScopes(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load warmup scopes", slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		logger.Info("no requests discovered for warmup")
		return nil
	}

	start := j.now()
	warmed := 0
	for _, id := range ids {
		scopeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := j.Series.Series(scopeCtx, id)
		cancel()
		if err != nil {
			resultErr = err
			logger.Error("warm series", slog.Int64("request_id", id), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}
	logger.Info("completed series warmup", slog.Int("requests", warmed), slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *SeriesWarmupJob) fetchScopes(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, errors.New("series warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT s.request_id
FROM request_samples s
JOIN monitored_requests r ON r.id = s.request_id
WHERE r.is_active
ORDER BY s.request_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *SeriesWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSeriesWarmup))
	}
	return slog.Default().With(slog.String("job", TaskSeriesWarmup))
}

func (j *SeriesWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SeriesWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
