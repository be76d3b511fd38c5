package routes

import (
	"net/http"
	"time"

	"weave/internal/db"
	"weave/internal/server/middleware"
	serverutil "weave/internal/server/util"
	"weave/pkg/logger"
	"weave/pkg/run"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// GetRunsHandler lists the runs of a composition, newest first.
func GetRunsHandler(c echo.Context) error {
	type getRunsParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getRunsResponse struct {
		Message string   `json:"message"`
		Runs    []db.Run `json:"runs"`
	}

	params := new(getRunsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunsResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	runs, err := q.ListRunsForComposition(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to list runs", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRunsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunsResponse{
		Message: "OK",
		Runs:    runs,
	})
}

// GetRunHandler returns a single run including its accumulated output.
func GetRunHandler(c echo.Context) error {
	type getRunParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type getRunResponse struct {
		Message string  `json:"message"`
		Run     *db.Run `json:"run,omitempty"`
	}

	params := new(getRunParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRunResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	stored, err := q.GetRun(ctx, params.RunID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, getRunResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, getRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getRunResponse{
		Message: "OK",
		Run:     &stored,
	})
}

// StreamRunLogsHandler relays run progress as server-sent events. It replays
// the persisted log buffer immediately, then follows the worker's writes
// until the run is terminal. The worker owns the upstream subscription;
// this endpoint only watches the database, so any number of editors can
// stream the same run.
func StreamRunLogsHandler(c echo.Context) error {
	type streamParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type logEvent struct {
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	}

	type completeEvent struct {
		Status string `json:"status"`
	}

	params := new(streamParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	stored, err := q.GetRun(ctx, params.RunID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Run not found"})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	if stored.Output != "" {
		if err := serverutil.WriteSSEEvent(c, "log", logEvent{
			Content:   stored.Output,
			Timestamp: stored.UpdatedAt,
		}); err != nil {
			return err
		}
	}
	if run.Status(stored.Status).Terminal() {
		return serverutil.WriteSSEEvent(c, "complete", completeEvent{Status: stored.Status})
	}

	ticker := time.NewTicker(run.DefaultPollInterval)
	defer ticker.Stop()

	lastOutput := stored.Output
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := q.GetRun(ctx, params.RunID)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Failed to poll run", "run_id", params.RunID, "err", err)
				continue
			}

			if current.Output != lastOutput {
				lastOutput = current.Output
				if err := serverutil.WriteSSEEvent(c, "log", logEvent{
					Content:   current.Output,
					Timestamp: current.UpdatedAt,
				}); err != nil {
					return err
				}
			}

			if run.Status(current.Status).Terminal() {
				return serverutil.WriteSSEEvent(c, "complete", completeEvent{Status: current.Status})
			}
		}
	}
}
