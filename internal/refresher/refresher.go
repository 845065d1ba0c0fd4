// Package refresher fetches chart payloads and keeps exactly one chart
// instance per canvas, destroying the previous instance before creating the
// next one.
package refresher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/pingboard/pingboard/internal/chart"
)

// DefaultCanvas is the canvas targeted by Render and FetchAndRender.
const DefaultCanvas = "chart"

const maxBodyBytes = 4 << 20

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives refresh metrics.
type Recorder interface {
	ObserveRender(canvas, outcome string, elapsed time.Duration)
	SetLiveInstances(n int)
}

// RenderEvent describes a successful render.
type RenderEvent struct {
	Canvas     string
	InstanceID string
	Endpoint   string
	Points     int
	RenderedAt time.Time
	Config     chart.Config
}

type binding struct {
	instance chart.Instance
	endpoint string
}

// Refresher owns the canvas to instance map.
type Refresher struct {
	lib     chart.Library
	client  Doer
	base    *url.URL
	opts    chart.Options
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time

	mu       sync.Mutex
	canvases map[string]*binding

	subsMu  sync.RWMutex
	subs    map[int]func(RenderEvent)
	nextSub int
}

// Option customises a Refresher.
type Option func(*Refresher)

// WithHTTPClient sets the client used for fetches.
func WithHTTPClient(client Doer) Option {
	return func(r *Refresher) {
		if client != nil {
			r.client = client
		}
	}
}

// WithBaseURL resolves relative endpoints against base.
func WithBaseURL(base *url.URL) Option {
	return func(r *Refresher) { r.base = base }
}

// WithChartOptions sets the variant and presentation used by BuildConfig.
func WithChartOptions(opts chart.Options) Option {
	return func(r *Refresher) { r.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Refresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorder reports render outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Refresher) { r.metrics = rec }
}

// WithCanvases attaches the given canvases instead of DefaultCanvas.
func WithCanvases(ids ...string) Option {
	return func(r *Refresher) {
		r.canvases = make(map[string]*binding, len(ids))
		for _, id := range ids {
			if id != "" {
				r.canvases[id] = &binding{}
			}
		}
	}
}

// New constructs a Refresher drawing on lib. DefaultCanvas is attached
// unless WithCanvases says otherwise.
func New(lib chart.Library, opts ...Option) *Refresher {
	r := &Refresher{
		lib:      lib,
		client:   &http.Client{Timeout: 10 * time.Second},
		opts:     chart.DefaultOptions(),
		logger:   slog.Default(),
		now:      time.Now,
		canvases: map[string]*binding{DefaultCanvas: {}},
		subs:     make(map[int]func(RenderEvent)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchAndRender fetches endpoint and renders it on DefaultCanvas.
func (r *Refresher) FetchAndRender(ctx context.Context, endpoint string) (chart.Instance, error) {
	return r.FetchAndRenderTo(ctx, DefaultCanvas, endpoint)
}

// FetchAndRenderTo fetches endpoint, decodes the payload and renders it on
// canvasID. Every call is a full fetch, decode, destroy and create cycle.
func (r *Refresher) FetchAndRenderTo(ctx context.Context, canvasID, endpoint string) (chart.Instance, error) {
	start := r.now()
	if !r.Attached(canvasID) {
		err := &Error{Kind: ErrCanvasMissing, Canvas: canvasID, Endpoint: endpoint}
		r.finish(canvasID, start, err)
		return nil, err
	}
	payload, err := r.fetch(ctx, canvasID, endpoint)
	if err != nil {
		r.finish(canvasID, start, err)
		return nil, err
	}
	return r.render(canvasID, chart.BuildConfig(payload, r.opts), endpoint, start)
}

// Render renders payload on DefaultCanvas.
func (r *Refresher) Render(payload chart.DataPayload) (chart.Instance, error) {
	return r.RenderTo(DefaultCanvas, payload)
}

// RenderTo renders payload on canvasID.
func (r *Refresher) RenderTo(canvasID string, payload chart.DataPayload) (chart.Instance, error) {
	start := r.now()
	if err := payload.Validate(); err != nil {
		wrapped := &Error{Kind: ErrDecode, Canvas: canvasID, Err: err}
		r.finish(canvasID, start, wrapped)
		return nil, wrapped
	}
	return r.render(canvasID, chart.BuildConfig(payload, r.opts), "", start)
}

// RenderConfig renders a prebuilt config on canvasID.
func (r *Refresher) RenderConfig(canvasID string, cfg chart.Config) (chart.Instance, error) {
	return r.render(canvasID, cfg, "", r.now())
}

func (r *Refresher) render(canvasID string, cfg chart.Config, endpoint string, start time.Time) (chart.Instance, error) {
	r.mu.Lock()
	b, ok := r.canvases[canvasID]
	if !ok {
		r.mu.Unlock()
		err := &Error{Kind: ErrCanvasMissing, Canvas: canvasID, Endpoint: endpoint}
		r.finish(canvasID, start, err)
		return nil, err
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	inst, err := r.lib.Create(canvasID, cfg)
	if err != nil {
		r.mu.Unlock()
		wrapped := &Error{Kind: ErrRender, Canvas: canvasID, Endpoint: endpoint, Err: err}
		r.finish(canvasID, start, wrapped)
		return nil, wrapped
	}
	b.instance = inst
	if endpoint != "" {
		b.endpoint = endpoint
	}
	live := r.liveLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetLiveInstances(live)
	}
	r.finish(canvasID, start, nil)
	r.publish(RenderEvent{
		Canvas:     canvasID,
		InstanceID: inst.ID(),
		Endpoint:   endpoint,
		Points:     cfg.Len(),
		RenderedAt: inst.CreatedAt(),
		Config:     inst.Config(),
	})
	return inst, nil
}

func (r *Refresher) fetch(ctx context.Context, canvasID, endpoint string) (chart.DataPayload, error) {
	target, err := r.resolve(endpoint)
	if err != nil {
		return chart.DataPayload{}, &Error{Kind: ErrFetch, Canvas: canvasID, Endpoint: endpoint, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return chart.DataPayload{}, &Error{Kind: ErrFetch, Canvas: canvasID, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return chart.DataPayload{}, &Error{Kind: ErrFetch, Canvas: canvasID, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return chart.DataPayload{}, &Error{
			Kind:     ErrFetch,
			Canvas:   canvasID,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	payload, err := chart.DecodePayload(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return chart.DataPayload{}, &Error{Kind: ErrDecode, Canvas: canvasID, Endpoint: endpoint, Err: err}
	}
	return payload, nil
}

func (r *Refresher) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if r.base != nil {
		ref = r.base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return "", fmt.Errorf("endpoint %q is not absolute and no base url is configured", endpoint)
	}
	return ref.String(), nil
}

func (r *Refresher) finish(canvasID string, start time.Time, err error) {
	elapsed := r.now().Sub(start)
	if r.metrics != nil {
		r.metrics.ObserveRender(canvasID, Outcome(err), elapsed)
	}
	if err != nil {
		r.logger.Warn("chart refresh failed",
			slog.String("canvas", canvasID),
			slog.String("outcome", Outcome(err)),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		return
	}
	r.logger.Debug("chart rendered", slog.String("canvas", canvasID), slog.Duration("elapsed", elapsed))
}

// AttachCanvas makes canvasID available for rendering.
func (r *Refresher) AttachCanvas(canvasID string) error {
	if canvasID == "" {
		return fmt.Errorf("refresher: canvas id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.canvases[canvasID]; !ok {
		r.canvases[canvasID] = &binding{}
	}
	return nil
}

// DetachCanvas destroys the canvas instance and forgets the canvas. It
// reports whether the canvas was attached.
func (r *Refresher) DetachCanvas(canvasID string) bool {
	r.mu.Lock()
	b, ok := r.canvases[canvasID]
	if ok {
		if b.instance != nil {
			b.instance.Destroy()
		}
		delete(r.canvases, canvasID)
	}
	live := r.liveLocked()
	r.mu.Unlock()
	if ok && r.metrics != nil {
		r.metrics.SetLiveInstances(live)
	}
	return ok
}

// Attached reports whether canvasID exists.
func (r *Refresher) Attached(canvasID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.canvases[canvasID]
	return ok
}

// Canvases lists attached canvases in name order.
func (r *Refresher) Canvases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.canvases))
	for id := range r.canvases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instance returns the live instance on canvasID.
func (r *Refresher) Instance(canvasID string) (chart.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.canvases[canvasID]
	if !ok || b.instance == nil {
		return nil, false
	}
	return b.instance, true
}

// Live returns the number of canvases holding an instance.
func (r *Refresher) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked()
}

func (r *Refresher) liveLocked() int {
	n := 0
	for _, b := range r.canvases {
		if b.instance != nil {
			n++
		}
	}
	return n
}

// Bindings maps each canvas to the endpoint of its last successful fetch.
func (r *Refresher) Bindings() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for id, b := range r.canvases {
		if b.endpoint != "" {
			out[id] = b.endpoint
		}
	}
	return out
}

// Subscribe registers fn for render events and returns a function that
// removes it. fn runs on the rendering goroutine and must not block.
func (r *Refresher) Subscribe(fn func(RenderEvent)) func() {
	r.subsMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subsMu.Unlock()
	return func() {
		r.subsMu.Lock()
		delete(r.subs, id)
		r.subsMu.Unlock()
	}
}

func (r *Refresher) publish(ev RenderEvent) {
	r.subsMu.RLock()
	fns := make([]func(RenderEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subsMu.RUnlock()
	for _, fn := range fns {
		e := ev
		e.Config = ev.Config.Clone()
		fn(e)
	}
}

// Close destroys every live instance. Canvases stay attached.
func (r *Refresher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.canvases {
		if b.instance != nil {
			b.instance.Destroy()
			b.instance = nil
		}
	}
	if r.metrics != nil {
		r.metrics.SetLiveInstances(0)
	}
}
