package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"weave/internal/db"
	"weave/pkg/executor"
	"weave/pkg/logger"
	"weave/pkg/run"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// maxStreamReconnects bounds stream revival per delivery; polling keeps the
// run tracked after that.
const maxStreamReconnects = 5

// TrackRunMsg is the payload published to track_queue when a run is created.
type TrackRunMsg struct {
	RunID         string `json:"run_id"`
	CompositionID string `json:"composition_id"`
}

// ProcessTrack follows one run to completion. Lifecycle fields come from
// polling the executor; log text comes from the event stream. Either source
// alone is enough to finish the job, so a broken stream degrades to
// poll-only tracking instead of failing the message.
func ProcessTrack(
	ctx context.Context,
	conn *pgxpool.Pool,
	exec *executor.Client,
	body string,
) error {
	var msg TrackRunMsg
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal track message: %w", err)
	}
	if msg.RunID == "" {
		return fmt.Errorf("track message has no run_id")
	}

	q := db.New(conn)

	stored, err := q.GetRun(ctx, msg.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", msg.RunID, err)
	}
	if run.Status(stored.Status).Terminal() {
		logger.Debug("[Track] Run already terminal", "run_id", msg.RunID, "status", stored.Status)
		return nil
	}

	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make(chan run.StreamState, 16)
	tracker := run.NewTracker(msg.RunID, exec, func(u run.Update) {
		if err := q.UpdateRunOutput(trackCtx, db.UpdateRunOutputParams{
			PublicID: msg.RunID,
			Output:   u.Log,
		}); err != nil && trackCtx.Err() == nil {
			logger.Error("[Track] Failed to persist run output", "run_id", msg.RunID, "err", err)
		}
		select {
		case states <- u.State:
		default:
		}
	})
	// A redelivered message resumes with whatever was persisted so far.
	tracker.SeedLog(stored.Output)

	if err := tracker.Connect(trackCtx); err != nil {
		logger.Warn("[Track] Log stream unavailable, tracking by polling only", "run_id", msg.RunID, "err", err)
	}
	defer tracker.Close()

	g, gctx := errgroup.WithContext(trackCtx)

	g.Go(func() error {
		defer cancel()
		_, err := run.Poll(gctx, exec, msg.RunID, run.DefaultPollInterval, func(r run.Run) {
			persistRunState(gctx, q, r)
		})
		if err != nil {
			return fmt.Errorf("failed to poll run %s: %w", msg.RunID, err)
		}
		return nil
	})

	// Revive the stream on transport errors while the run is still going.
	// The poller above decides when the job is done.
	g.Go(func() error {
		attempts := 0
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-states:
				if s != run.StreamError {
					continue
				}
				if attempts >= maxStreamReconnects {
					logger.Warn("[Track] Giving up on log stream", "run_id", msg.RunID, "attempts", attempts)
					return nil
				}
				attempts++
				if err := tracker.Reconnect(gctx); err != nil && gctx.Err() == nil {
					logger.Warn("[Track] Log stream reconnect failed", "run_id", msg.RunID, "attempt", attempts, "err", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	// The stream may have delivered log lines after the last output write.
	if log := tracker.Log(); log != "" {
		if err := q.UpdateRunOutput(ctx, db.UpdateRunOutputParams{
			PublicID: msg.RunID,
			Output:   log,
		}); err != nil {
			logger.Error("[Track] Failed to persist final run output", "run_id", msg.RunID, "err", err)
		}
	}

	logger.Info("[Track] Run tracking finished", "run_id", msg.RunID)
	return nil
}

func persistRunState(ctx context.Context, q *db.Queries, r run.Run) {
	var metrics []byte
	if r.Metrics != nil {
		metrics, _ = json.Marshal(r.Metrics)
	}

	_, err := q.UpdateRunState(ctx, db.UpdateRunStateParams{
		PublicID:    r.ID,
		Status:      string(r.Status),
		Error:       r.Error,
		Metrics:     metrics,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("[Track] Failed to persist run state", "run_id", r.ID, "err", err)
	}
}
