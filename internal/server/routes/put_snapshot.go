package routes

import (
	"encoding/json"
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/pkg/flow"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// UpdateSnapshotHandler replaces the persisted snapshot of a composition.
// The incoming snapshot is rebuilt through the graph store first, so every
// structural invariant (unique ids, valid endpoints, single writer per
// input, acyclicity) holds before anything is written.
func UpdateSnapshotHandler(c echo.Context) error {
	type updateSnapshotBody struct {
		ID       string        `param:"id" validate:"required"`
		Snapshot flow.Snapshot `json:"snapshot"`
	}

	type updateSnapshotResponse struct {
		Message     string          `json:"message"`
		Composition *db.Composition `json:"composition,omitempty"`
	}

	data := new(updateSnapshotBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, updateSnapshotResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, updateSnapshotResponse{
			Message: "Invalid request body",
		})
	}

	comp, err := flow.FromSnapshot(data.Snapshot)
	if err != nil {
		return c.JSON(http.StatusBadRequest, updateSnapshotResponse{
			Message: "Invalid snapshot: " + err.Error(),
		})
	}

	snapBytes, err := json.Marshal(comp.Snapshot())
	if err != nil {
		logger.Error("Failed to marshal snapshot", "err", err)
		return c.JSON(http.StatusInternalServerError, updateSnapshotResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.UpdateCompositionSnapshot(ctx, db.UpdateCompositionSnapshotParams{
		PublicID: data.ID,
		Snapshot: snapBytes,
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, updateSnapshotResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to update snapshot", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, updateSnapshotResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, updateSnapshotResponse{
		Message:     "Snapshot saved successfully",
		Composition: &composition,
	})
}
