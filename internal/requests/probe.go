package requests

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const probeConcurrency = 4

// ProbeReport summarises a probe run.
type ProbeReport struct {
	Probed int `json:"probed"`
	Failed int `json:"failed"`
}

// Probe times one request and records the resulting sample. Transport
// failures are recorded with their error text and still count as a sample.
func (s *Service) Probe(ctx context.Context, req MonitoredRequest) (Sample, error) {
	if !req.Active {
		return Sample{}, ErrNotActive
	}
	// The sample is stored on the caller's context so a timed out probe is
	// still recorded.
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(probeCtx, method, req.URL, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("requests: build probe %d: %w", req.ID, err)
	}
	start := s.now()
	resp, err := s.client.Do(httpReq)
	input := SampleInput{RequestID: req.ID, ObservedAt: start}
	if err != nil {
		input.Error = truncateRunes(err.Error(), maxErrorRunes)
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		input.StatusCode = resp.StatusCode
	}
	input.ResponseMS = float64(s.now().Sub(start).Microseconds()) / 1000
	return s.RecordSample(ctx, input)
}

// ProbeAll probes the request with id, or every active request when id is 0.
func (s *Service) ProbeAll(ctx context.Context, id int64) (ProbeReport, error) {
	var targets []MonitoredRequest
	if id > 0 {
		req, err := s.store.GetRequest(ctx, id)
		if err != nil {
			return ProbeReport{}, err
		}
		targets = append(targets, req)
	} else {
		list, err := s.store.ListRequests(ctx, ListFilter{ActiveOnly: true})
		if err != nil {
			return ProbeReport{}, fmt.Errorf("requests: list active: %w", err)
		}
		targets = list
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for _, target := range targets {
		g.Go(func() error {
			sample, err := s.Probe(gctx, target)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				s.logger.Warn("probe failed", slog.Int64("request_id", target.ID), slog.Any("error", err))
				return nil
			}
			if sample.Error != "" {
				failed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return ProbeReport{Probed: len(targets), Failed: int(failed.Load())}, err
}

// maxErrorRunes matches the validate tag on SampleInput.Error.
const maxErrorRunes = 512

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// rune. Invalid bytes are replaced first.
func truncateRunes(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
