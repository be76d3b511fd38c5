package routes

import (
	"encoding/json"
	"net/http"

	"weave/internal/db"
	"weave/internal/queue"
	"weave/internal/server/middleware"
	"weave/internal/util"
	"weave/pkg/codegen"
	"weave/pkg/flow"
	"weave/pkg/logger"
	"weave/pkg/run"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// CreateRunHandler compiles a composition, submits the code to the executor
// and queues a tracking job for the worker.
func CreateRunHandler(c echo.Context) error {
	type createRunBody struct {
		ID      string           `param:"id" validate:"required"`
		Options *codegen.Options `json:"options"`
	}

	type createRunResponse struct {
		Message  string   `json:"message"`
		Run      *db.Run  `json:"run,omitempty"`
		Warnings []string `json:"warnings,omitempty"`
	}

	data := new(createRunBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRunResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	q := db.New(app.DBConn)

	composition, err := q.GetComposition(ctx, data.ID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, createRunResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to get composition", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	var snap flow.Snapshot
	if err := json.Unmarshal(composition.Snapshot, &snap); err != nil {
		logger.Error("Failed to unmarshal snapshot", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	opts := codegen.DefaultOptions()
	if data.Options != nil {
		opts = *data.Options
	}

	generated, compileErr := safeCompile(snap, opts)
	if compileErr != nil {
		logger.Error("Compilation failed", "id", data.ID, "err", compileErr)
		return c.JSON(http.StatusUnprocessableEntity, createRunResponse{
			Message: "Compilation failed",
		})
	}

	created, err := app.Executor.CreateRun(ctx, data.ID, generated.Code)
	if err != nil {
		logger.Error("Failed to create run", "id", data.ID, "err", err)
		return c.JSON(http.StatusBadGateway, createRunResponse{
			Message: "Executor unavailable",
		})
	}

	status := created.Status
	if status == "" {
		status = run.StatusQueued
	}

	stored, err := q.CreateRun(ctx, db.CreateRunParams{
		PublicID:      created.ID,
		CompositionID: data.ID,
		Status:        string(status),
	})
	if err != nil {
		logger.Error("Failed to persist run", "run_id", created.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createRunResponse{
			Message: "Internal server error",
		})
	}

	msg := queue.TrackRunMsg{
		RunID:         created.ID,
		CompositionID: data.ID,
	}
	msgBytes, _ := json.Marshal(msg)
	publishErr := util.RetryErr(3, func() error {
		return queue.PublishFIFO(app.Queue, queue.TrackQueue, msgBytes)
	})
	if publishErr != nil {
		logger.Error("Failed to publish to track_queue", "run_id", created.ID, "err", publishErr)
	}

	return c.JSON(http.StatusOK, createRunResponse{
		Message:  "Run created successfully",
		Run:      &stored,
		Warnings: generated.Warnings,
	})
}

// CancelRunHandler forwards a cancellation request. The executor decides
// whether the run actually stops; the response carries whatever status it
// reports.
func CancelRunHandler(c echo.Context) error {
	type cancelRunParams struct {
		RunID string `param:"run_id" validate:"required"`
	}

	type cancelRunResponse struct {
		Message string  `json:"message"`
		Run     *db.Run `json:"run,omitempty"`
	}

	params := new(cancelRunParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, cancelRunResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, cancelRunResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	q := db.New(app.DBConn)

	stored, err := q.GetRun(ctx, params.RunID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, cancelRunResponse{
				Message: "Run not found",
			})
		}
		logger.Error("Failed to get run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, cancelRunResponse{
			Message: "Internal server error",
		})
	}

	if !run.Status(stored.Status).Cancellable() {
		return c.JSON(http.StatusConflict, cancelRunResponse{
			Message: "Run is not cancellable",
			Run:     &stored,
		})
	}

	reported, err := app.Executor.CancelRun(ctx, params.RunID)
	if err != nil {
		logger.Error("Failed to cancel run", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusBadGateway, cancelRunResponse{
			Message: "Executor unavailable",
		})
	}

	var metrics []byte
	if reported.Metrics != nil {
		metrics, _ = json.Marshal(reported.Metrics)
	}
	updated, err := q.UpdateRunState(ctx, db.UpdateRunStateParams{
		PublicID:    params.RunID,
		Status:      string(reported.Status),
		Error:       reported.Error,
		Metrics:     metrics,
		StartedAt:   reported.StartedAt,
		CompletedAt: reported.CompletedAt,
	})
	if err != nil {
		logger.Error("Failed to persist run state", "run_id", params.RunID, "err", err)
		return c.JSON(http.StatusInternalServerError, cancelRunResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, cancelRunResponse{
		Message: "Cancellation requested",
		Run:     &updated,
	})
}
