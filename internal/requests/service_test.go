package requests

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingboard/pingboard/internal/chart"
	"github.com/pingboard/pingboard/internal/platform/httpx"
)

type memStore struct {
	mu          sync.Mutex
	requests    map[int64]MonitoredRequest
	samples     []Sample
	recentCalls int
	insertErr   error
}

func newMemStore(reqs ...MonitoredRequest) *memStore {
	m := &memStore{requests: make(map[int64]MonitoredRequest)}
	for _, r := range reqs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *memStore) GetRequest(_ context.Context, id int64) (MonitoredRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return MonitoredRequest{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRequests(_ context.Context, filter ListFilter) ([]MonitoredRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MonitoredRequest
	for _, r := range m.requests {
		if filter.ActiveOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateRequest(_ context.Context, in RequestInput) (MonitoredRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.Name == in.Name {
			return MonitoredRequest{}, ErrDuplicated
		}
	}
	r := MonitoredRequest{ID: int64(len(m.requests) + 1), Name: in.Name, URL: in.URL, Method: in.Method, Active: true}
	m.requests[r.ID] = r
	return r, nil
}

func (m *memStore) RecentSamples(_ context.Context, requestID int64, limit int) ([]Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentCalls++
	var out []Sample
	for i := len(m.samples) - 1; i >= 0 && len(out) < limit; i-- {
		if m.samples[i].RequestID == requestID {
			out = append(out, m.samples[i])
		}
	}
	return out, nil
}

func (m *memStore) InsertSample(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.samples = append(m.samples, s)
	return nil
}

func newTestService(t *testing.T, store Store, cfg Config) (*Service, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(store, NewCache(client, time.Minute), cfg), client
}

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSeriesOrdersOldestFirst(t *testing.T) {
	store := newMemStore(MonitoredRequest{ID: 1, Name: "api", Active: true})
	svc, _ := newTestService(t, store, Config{SeriesLimit: 2})
	for i, ms := range []float64{10, 20, 15} {
		_, err := svc.RecordSample(context.Background(), SampleInput{RequestID: 1, ResponseMS: ms, ObservedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	payload, err := svc.Series(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 15}, payload.X)
	assert.Equal(t, []chart.Label{"10:00:01", "10:00:02"}, payload.Y)
}

func TestSeriesCachesUntilBump(t *testing.T) {
	store := newMemStore(MonitoredRequest{ID: 1, Name: "api", Active: true})
	svc, _ := newTestService(t, store, Config{})
	ctx := context.Background()

	_, err := svc.Series(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Series(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.recentCalls)

	_, err = svc.RecordSample(ctx, SampleInput{RequestID: 1, ResponseMS: 42, ObservedAt: base})
	require.NoError(t, err)
	payload, err := svc.Series(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.recentCalls)
	assert.Equal(t, []float64{42}, payload.X)
}

func TestSeriesEmpty(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(MonitoredRequest{ID: 1, Name: "api"}), Config{})
	payload, err := svc.Series(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, payload.Len())
	require.NoError(t, payload.Validate())
}

func TestSeriesNotFound(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), Config{})
	_, err := svc.Series(context.Background(), 9)
	assert.True(t, errors.Is(err, httpx.ErrNotFound))
}

func TestRecordSampleValidation(t *testing.T) {
	store := newMemStore(MonitoredRequest{ID: 1, Name: "api"})
	svc, _ := newTestService(t, store, Config{})
	cases := []SampleInput{
		{RequestID: 0, ResponseMS: 1},
		{RequestID: 1, ResponseMS: -1},
		{RequestID: 1, ResponseMS: 1, StatusCode: 42},
	}
	for _, in := range cases {
		_, err := svc.RecordSample(context.Background(), in)
		assert.True(t, errors.Is(err, httpx.ErrValidation), "input %+v: %v", in, err)
	}
	assert.Empty(t, store.samples)
}

func TestRecordSampleAssignsIDAndTime(t *testing.T) {
	store := newMemStore(MonitoredRequest{ID: 1, Name: "api"})
	svc, client := newTestService(t, store, Config{})
	svc.WithNow(func() time.Time { return base })

	sample, err := svc.RecordSample(context.Background(), SampleInput{RequestID: 1, ResponseMS: 12.5, StatusCode: 200})
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, [16]byte(sample.ID))
	assert.Equal(t, base, sample.ObservedAt)

	ver, err := client.Get(context.Background(), cacheVersionKey).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)
}

func TestRecordSampleStoreError(t *testing.T) {
	store := newMemStore(MonitoredRequest{ID: 1, Name: "api"})
	store.insertErr = errors.New("db down")
	svc, _ := newTestService(t, store, Config{})
	_, err := svc.RecordSample(context.Background(), SampleInput{RequestID: 1, ResponseMS: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestCreateRequest(t *testing.T) {
	svc, _ := newTestService(t, newMemStore(), Config{})
	req, err := svc.CreateRequest(context.Background(), RequestInput{Name: " api ", URL: "https://example.com/health"})
	require.NoError(t, err)
	assert.Equal(t, "api", req.Name)
	assert.Equal(t, "GET", req.Method)

	_, err = svc.CreateRequest(context.Background(), RequestInput{Name: "bad", URL: "not a url"})
	assert.True(t, errors.Is(err, httpx.ErrValidation))
	_, err = svc.CreateRequest(context.Background(), RequestInput{Name: "api", URL: "https://example.com"})
	assert.True(t, errors.Is(err, httpx.ErrDuplicate))
}
