package requesthttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pingboard/pingboard/internal/chart"
	"github.com/pingboard/pingboard/internal/platform/httpx"
	"github.com/pingboard/pingboard/internal/requests"
)

const requestTimeout = 3 * time.Second

// Service is the data contract used by the handler.
type Service interface {
	Series(ctx context.Context, requestID int64) (chart.DataPayload, error)
	Samples(ctx context.Context, requestID int64) ([]requests.Sample, error)
	RecordSample(ctx context.Context, in requests.SampleInput) (requests.Sample, error)
	ListRequests(ctx context.Context, filter requests.ListFilter) ([]requests.MonitoredRequest, error)
	GetRequest(ctx context.Context, id int64) (requests.MonitoredRequest, error)
	CreateRequest(ctx context.Context, in requests.RequestInput) (requests.MonitoredRequest, error)
}

// ProbeEnqueuer schedules an asynchronous probe.
type ProbeEnqueuer interface {
	EnqueueProbe(ctx context.Context, requestID int64) (string, error)
}

// Handler serves the monitored request endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	probes  ProbeEnqueuer
	csvPool sync.Pool
}

// NewHandler constructs the requests HTTP handler. probes may be nil, in
// which case the probe endpoint reports 503.
func NewHandler(logger *slog.Logger, service Service, probes ProbeEnqueuer) *Handler {
	h := &Handler{logger: logger, service: service, probes: probes}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	filter := requests.ListFilter{ActiveOnly: r.URL.Query().Get("active") == "true"}
	list, err := h.service.ListRequests(ctx, filter)
	if err != nil {
		h.respondError(w, "list requests", err)
		return
	}
	if list == nil {
		list = []requests.MonitoredRequest{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in requests.RequestInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	req, err := h.service.CreateRequest(ctx, in)
	if err != nil {
		h.respondError(w, "create request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	payload, err := h.service.Series(ctx, id)
	if err != nil {
		h.respondError(w, "load series", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	samples, err := h.service.Samples(ctx, id)
	if err != nil {
		h.respondError(w, "load samples", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := requests.WriteSamplesCSV(buf, samples); err != nil {
		h.respondError(w, "write samples csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"request-%d-samples.csv\"", id))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var in requests.SampleInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	in.RequestID = id
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sample, err := h.service.RecordSample(ctx, in)
	if err != nil {
		h.respondError(w, "record sample", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sample)
}

func (h *Handler) handleProbe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if h.probes == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "probe queue not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if _, err := h.service.GetRequest(ctx, id); err != nil {
		h.respondError(w, "load request", err)
		return
	}
	taskID, err := h.probes.EnqueueProbe(ctx, id)
	if err != nil {
		h.respondError(w, "enqueue probe", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, httpx.ErrNotFound), errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrDuplicate):
	default:
		h.logError(context, err)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}
