package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingboard/pingboard/internal/chart/demo"
	"github.com/pingboard/pingboard/internal/chart/echarts"
	"github.com/pingboard/pingboard/internal/refresher"
	"github.com/pingboard/pingboard/internal/view"
)

type fixture struct {
	router    chi.Router
	handler   *Handler
	refresher *refresher.Refresher
	lib       *echarts.Library
	status    atomic.Int32
	body      atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.status.Store(http.StatusOK)
	f.body.Store(`{"x":[10,20,15],"y":["t1","t2","t3"]}`)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(f.status.Load()))
		_, _ = w.Write([]byte(f.body.Load().(string)))
	}))
	t.Cleanup(upstream.Close)
	base, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	views, err := view.NewEngine()
	require.NoError(t, err)

	f.lib = echarts.NewLibrary()
	f.refresher = refresher.New(f.lib,
		refresher.WithBaseURL(base),
		refresher.WithHTTPClient(upstream.Client()),
		refresher.WithCanvases(refresher.DefaultCanvas, DemoCanvas),
	)
	f.handler = NewHandler(nil, views, f.refresher, demo.NewRandomizer(nil), Config{DefaultEndpoint: "/requests/1/data"})

	r := chi.NewRouter()
	f.handler.MountStreams(r)
	f.handler.MountRoutes(r)
	f.router = r
	return f
}

func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeInstance(t *testing.T, rr *httptest.ResponseRecorder) instanceView {
	t.Helper()
	var out instanceView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestRefreshRendersAndExposesInstance(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/charts/chart/refresh", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	created := decodeInstance(t, rr)
	assert.Equal(t, "chart", created.Canvas)
	assert.Equal(t, 3, created.Points)
	assert.Equal(t, "/requests/1/data", created.Endpoint)
	assert.NotEmpty(t, created.Option)

	rr = f.do(http.MethodGet, "/charts/chart", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created.ID, decodeInstance(t, rr).ID)
}

func TestRefreshTwiceKeepsOneInstance(t *testing.T) {
	f := newFixture(t)

	first := decodeInstance(t, f.do(http.MethodPost, "/charts/chart/refresh", nil))
	second := decodeInstance(t, f.do(http.MethodPost, "/charts/chart/refresh?endpoint=/other", nil))

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "/other", second.Endpoint)
	assert.Equal(t, 1, f.lib.LiveOn("chart"))
}

func TestRefreshErrors(t *testing.T) {
	t.Run("upstream failure maps to bad gateway", func(t *testing.T) {
		f := newFixture(t)
		f.status.Store(http.StatusInternalServerError)
		rr := f.do(http.MethodPost, "/charts/chart/refresh", nil)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("malformed body maps to bad gateway", func(t *testing.T) {
		f := newFixture(t)
		f.body.Store(`<html>nope</html>`)
		rr := f.do(http.MethodPost, "/charts/chart/refresh", nil)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, 0, f.lib.LiveOn("chart"))
	})

	t.Run("unknown canvas", func(t *testing.T) {
		f := newFixture(t)
		rr := f.do(http.MethodPost, "/charts/missing/refresh", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("foreign endpoint rejected", func(t *testing.T) {
		f := newFixture(t)
		for _, ep := range []string{
			"http://example.com/data",
			"//example.com/data",
			"data",
			"/requests/1/data?a='+alert(document.domain)+'",
			`/requests/1/data?a="x"`,
			`/requests\1`,
			"/requests/<script>",
		} {
			rr := f.do(http.MethodPost, "/charts/chart/refresh?endpoint="+url.QueryEscape(ep), nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, ep)
		}
	})
}

func TestRefreshKeepsPreviousChartOnFailure(t *testing.T) {
	f := newFixture(t)
	first := decodeInstance(t, f.do(http.MethodPost, "/charts/chart/refresh", nil))

	f.status.Store(http.StatusBadGateway)
	rr := f.do(http.MethodPost, "/charts/chart/refresh", nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	rr = f.do(http.MethodGet, "/charts/chart", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, first.ID, decodeInstance(t, rr).ID)
}

func TestInstanceNotFound(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/charts/chart", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRandomizeRendersDemo(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/demo/randomize", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	inst := decodeInstance(t, rr)
	assert.Equal(t, DemoCanvas, inst.Canvas)
	assert.Equal(t, 2, inst.Points)
	assert.Empty(t, inst.Endpoint)

	_, bound := f.refresher.Bindings()[DemoCanvas]
	assert.False(t, bound)
}

func TestDatastarRefreshPatchesStatus(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/charts/chart/refresh", http.Header{"Datastar-Request": {"true"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/event-stream")
	body := rr.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, `id="status-chart"`)
	assert.Contains(t, body, "3 points")

	f.status.Store(http.StatusInternalServerError)
	rr = f.do(http.MethodPost, "/charts/chart/refresh", http.Header{"Datastar-Request": {"true"}})
	assert.Contains(t, rr.Body.String(), "Refresh failed")
}

func TestPageListsCanvases(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/charts/chart/refresh", nil)

	rr := f.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `id="chart"`)
	assert.Contains(t, body, `id="demo"`)
	assert.Contains(t, body, "data-option=")
	assert.Contains(t, body, "/charts/demo/stream")
}

func TestPageEncodesBoundEndpointAsJSON(t *testing.T) {
	f := newFixture(t)
	endpoint := "/requests/1/data?a=1&b=2"
	rr := f.do(http.MethodPost, "/charts/chart/refresh?endpoint="+url.QueryEscape(endpoint), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	m := regexp.MustCompile(`data-signals="([^"]*)"`).FindStringSubmatch(rr.Body.String())
	require.Len(t, m, 2)

	var sig refreshSignals
	require.NoError(t, json.Unmarshal([]byte(html.UnescapeString(m[1])), &sig))
	assert.Equal(t, endpoint, sig.Endpoint)
}

func TestSnapshots(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodGet, "/charts/chart/snapshot.svg", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	f.do(http.MethodPost, "/charts/chart/refresh", nil)

	rr = f.do(http.MethodGet, "/charts/chart/snapshot.svg", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/svg+xml", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "<svg"))

	rr = f.do(http.MethodGet, "/charts/chart/snapshot.png?w=400&h=200", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "\x89PNG"))
}

func TestPNGSnapshotOfEmptyChart(t *testing.T) {
	f := newFixture(t)
	f.body.Store(`{"x":[],"y":[]}`)
	f.do(http.MethodPost, "/charts/chart/refresh", nil)

	rr := f.do(http.MethodGet, "/charts/chart/snapshot.png", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(http.MethodGet, "/charts/chart/snapshot.svg", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPNGSnapshotOfSingleSample(t *testing.T) {
	f := newFixture(t)
	f.body.Store(`{"x":[120],"y":["12:00"]}`)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/charts/chart/refresh", nil).Code)

	rr := f.do(http.MethodGet, "/charts/chart/snapshot.png", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Body.String(), "\x89PNG"))
}

func TestStreamPushesRenders(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/charts/chart/refresh", nil)

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/charts/chart/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var (
		mu      sync.Mutex
		scripts int
	)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "window.pingboard") {
				mu.Lock()
				scripts++
				mu.Unlock()
			}
		}
	}()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return scripts
	}

	require.Eventually(t, func() bool { return count() >= 1 }, 2*time.Second, 10*time.Millisecond, "replay of current chart")

	f.do(http.MethodPost, "/charts/chart/refresh", nil)
	require.Eventually(t, func() bool { return count() >= 2 }, 2*time.Second, 10*time.Millisecond, "push after refresh")

	// Renders of other canvases stay off this stream.
	f.do(http.MethodPost, "/demo/randomize", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, count())
}

func TestStreamUnknownCanvas(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/charts/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type fakeInvalidations struct {
	mu sync.Mutex
	fn func(int64)
}

func (f *fakeInvalidations) Subscribe(_ context.Context, fn func(int64)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	return nil
}

func (f *fakeInvalidations) bump(v int64) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(v)
}

func TestAutoRefreshRerendersBoundCanvases(t *testing.T) {
	f := newFixture(t)
	first := decodeInstance(t, f.do(http.MethodPost, "/charts/chart/refresh", nil))
	f.do(http.MethodPost, "/demo/randomize", nil)
	demoBefore, ok := f.refresher.Instance(DemoCanvas)
	require.True(t, ok)

	source := &fakeInvalidations{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.handler.AutoRefresh(ctx, source))

	f.body.Store(`{"x":[1,2,3,4],"y":["a","b","c","d"]}`)
	source.bump(2)

	require.Eventually(t, func() bool {
		inst, ok := f.refresher.Instance(refresher.DefaultCanvas)
		return ok && inst.ID() != first.ID && inst.Config().Len() == 4
	}, 2*time.Second, 10*time.Millisecond)

	demoAfter, ok := f.refresher.Instance(DemoCanvas)
	require.True(t, ok)
	assert.Equal(t, demoBefore.ID(), demoAfter.ID(), "demo canvas has no endpoint to refresh")
	assert.Equal(t, 1, f.lib.LiveOn(refresher.DefaultCanvas))
}
