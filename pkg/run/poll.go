package run

import (
	"context"
	"time"
)

// DefaultPollInterval is the fixed re-fetch cadence of the polling fallback.
const DefaultPollInterval = time.Second

// StatusSource fetches the current state of a run.
type StatusSource interface {
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Poll re-fetches run status on a fixed interval until a terminal status is
// observed, then stops and returns the final run. It is the fallback for
// contexts without a live stream. onRun, if non-nil, observes every fetched
// state including the terminal one.
func Poll(ctx context.Context, source StatusSource, runID string, interval time.Duration, onRun func(Run)) (Run, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := source.GetRun(ctx, runID)
		if err != nil {
			return Run{}, err
		}
		if onRun != nil {
			onRun(r)
		}
		if r.Status.Terminal() {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return r, ctx.Err()
		case <-ticker.C:
		}
	}
}
