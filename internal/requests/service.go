package requests

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pingboard/pingboard/internal/chart"
)

// DefaultSeriesLimit is the number of samples plotted when unset.
const DefaultSeriesLimit = 50

// Store exposes the persistence the service relies on.
type Store interface {
	GetRequest(ctx context.Context, id int64) (MonitoredRequest, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]MonitoredRequest, error)
	CreateRequest(ctx context.Context, in RequestInput) (MonitoredRequest, error)
	RecentSamples(ctx context.Context, requestID int64, limit int) ([]Sample, error)
	InsertSample(ctx context.Context, s Sample) error
}

// Doer performs HTTP requests for probes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes the service.
type Config struct {
	SeriesLimit  int
	ProbeTimeout time.Duration
	Location     *time.Location
	Client       Doer
	Logger       *slog.Logger
}

// Service coordinates sample storage with the cache layer.
type Service struct {
	store    Store
	cache    *Cache
	limit    int
	timeout  time.Duration
	loc      *time.Location
	client   Doer
	logger   *slog.Logger
	validate *validator.Validate
	group    singleflight.Group
	now      func() time.Time
}

// NewService wires a Store with a Cache helper.
func NewService(store Store, cache *Cache, cfg Config) *Service {
	s := &Service{
		store:    store,
		cache:    cache,
		limit:    cfg.SeriesLimit,
		timeout:  cfg.ProbeTimeout,
		loc:      cfg.Location,
		client:   cfg.Client,
		logger:   cfg.Logger,
		validate: validator.New(),
		now:      time.Now,
	}
	if s.limit <= 0 {
		s.limit = DefaultSeriesLimit
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Series returns the most recent samples of a request as a chart payload,
// oldest first. Concurrent loads of the same key share one query.
func (s *Service) Series(ctx context.Context, requestID int64) (chart.DataPayload, error) {
	key, err := s.cache.BuildKey(ctx, keySeries(requestID, s.limit)...)
	if err != nil {
		return chart.DataPayload{}, fmt.Errorf("requests: build series key: %w", err)
	}
	res := s.group.DoChan(key, func() (any, error) {
		var payload chart.DataPayload
		err := s.cache.FetchJSON(ctx, key, &payload, func(ctx context.Context) (any, error) {
			return s.loadSeries(ctx, requestID)
		})
		return payload, err
	})
	select {
	case <-ctx.Done():
		return chart.DataPayload{}, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return chart.DataPayload{}, r.Err
		}
		return r.Val.(chart.DataPayload), nil
	}
}

func (s *Service) loadSeries(ctx context.Context, requestID int64) (chart.DataPayload, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return chart.DataPayload{}, err
	}
	samples, err := s.store.RecentSamples(ctx, requestID, s.limit)
	if err != nil {
		return chart.DataPayload{}, fmt.Errorf("requests: recent samples: %w", err)
	}
	slices.Reverse(samples)
	payload := chart.DataPayload{
		X: make([]float64, len(samples)),
		Y: make([]chart.Label, len(samples)),
	}
	for i, sample := range samples {
		payload.X[i] = sample.ResponseMS
		payload.Y[i] = chart.Label(sample.ObservedAt.In(s.loc).Format(LabelLayout))
	}
	return payload, nil
}

// Samples returns the raw recent samples, oldest first.
func (s *Service) Samples(ctx context.Context, requestID int64) ([]Sample, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	samples, err := s.store.RecentSamples(ctx, requestID, s.limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(samples)
	return samples, nil
}

// RecordSample validates and stores a sample, then invalidates cached series.
func (s *Service) RecordSample(ctx context.Context, in SampleInput) (Sample, error) {
	if err := s.validate.Struct(in); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := s.store.GetRequest(ctx, in.RequestID); err != nil {
		return Sample{}, err
	}
	observed := in.ObservedAt
	if observed.IsZero() {
		observed = s.now()
	}
	sample := Sample{
		ID:         uuid.New(),
		RequestID:  in.RequestID,
		ResponseMS: in.ResponseMS,
		StatusCode: in.StatusCode,
		Error:      strings.TrimSpace(in.Error),
		ObservedAt: observed.UTC(),
	}
	if err := s.store.InsertSample(ctx, sample); err != nil {
		return Sample{}, fmt.Errorf("requests: insert sample: %w", err)
	}
	if _, err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("series cache bump failed", slog.Int64("request_id", in.RequestID), slog.Any("error", err))
	}
	return sample, nil
}

// ListRequests returns the monitored requests.
func (s *Service) ListRequests(ctx context.Context, filter ListFilter) ([]MonitoredRequest, error) {
	return s.store.ListRequests(ctx, filter)
}

// GetRequest loads one monitored request.
func (s *Service) GetRequest(ctx context.Context, id int64) (MonitoredRequest, error) {
	return s.store.GetRequest(ctx, id)
}

// CreateRequest validates and registers a monitored request.
func (s *Service) CreateRequest(ctx context.Context, in RequestInput) (MonitoredRequest, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if in.Method == "" {
		in.Method = http.MethodGet
	}
	if err := s.validate.Struct(in); err != nil {
		return MonitoredRequest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.store.CreateRequest(ctx, in)
}
