package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pingboard/pingboard/internal/refresher"
)

// Invalidations delivers data version bumps. *requests.Cache satisfies it.
type Invalidations interface {
	Subscribe(ctx context.Context, fn func(version int64)) error
}

// AutoRefresh re-renders every bound canvas whenever the data version is
// bumped. Bumps that arrive while a refresh is running are coalesced into a
// single follow-up refresh. It returns once the subscription is confirmed.
func (h *Handler) AutoRefresh(ctx context.Context, source Invalidations) error {
	if source == nil {
		return nil
	}
	kick := make(chan struct{}, 1)
	if err := source.Subscribe(ctx, func(version int64) {
		select {
		case kick <- struct{}{}:
		default:
		}
	}); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				h.RefreshBound(ctx)
			}
		}
	}()
	return nil
}

// RefreshBound re-fetches every canvas that has a bound endpoint. Canvases
// refresh concurrently; failures are logged and leave the previous chart.
func (h *Handler) RefreshBound(ctx context.Context) {
	bindings := h.charts.Bindings()
	var wg sync.WaitGroup
	for canvasID, endpoint := range bindings {
		wg.Add(1)
		go func(canvasID, endpoint string) {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
			start := time.Now()
			if _, err := h.charts.FetchAndRenderTo(rctx, canvasID, endpoint); err != nil {
				h.logger.Debug("auto refresh skipped",
					slog.String("canvas", canvasID),
					slog.String("outcome", refresher.Outcome(err)))
				return
			}
			h.logger.Debug("auto refresh", slog.String("canvas", canvasID), slog.Duration("elapsed", time.Since(start)))
		}(canvasID, endpoint)
	}
	wg.Wait()
}
