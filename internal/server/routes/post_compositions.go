package routes

import (
	"encoding/json"
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/internal/util"
	"weave/pkg/flow"
	"weave/pkg/logger"

	"github.com/labstack/echo/v4"
)

// emptySnapshot is what a fresh composition starts from.
var emptySnapshot = flow.Snapshot{Nodes: []flow.Node{}, Edges: []flow.Edge{}}

// CreateCompositionHandler creates a composition, optionally seeded with a
// snapshot. The snapshot is rebuilt through the graph store so malformed
// graphs never reach the database.
func CreateCompositionHandler(c echo.Context) error {
	type createCompositionBody struct {
		Name     string         `json:"name" validate:"required"`
		Snapshot *flow.Snapshot `json:"snapshot"`
	}

	type createCompositionResponse struct {
		Message     string          `json:"message"`
		Composition *db.Composition `json:"composition,omitempty"`
	}

	data := new(createCompositionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createCompositionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createCompositionResponse{
			Message: "Invalid request body",
		})
	}

	snap := emptySnapshot
	if data.Snapshot != nil {
		comp, err := flow.FromSnapshot(*data.Snapshot)
		if err != nil {
			return c.JSON(http.StatusBadRequest, createCompositionResponse{
				Message: "Invalid snapshot: " + err.Error(),
			})
		}
		snap = comp.Snapshot()
	}

	snapBytes, err := json.Marshal(snap)
	if err != nil {
		logger.Error("Failed to marshal snapshot", "err", err)
		return c.JSON(http.StatusInternalServerError, createCompositionResponse{
			Message: "Internal server error",
		})
	}

	publicID, err := util.NewID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createCompositionResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.CreateComposition(ctx, db.CreateCompositionParams{
		PublicID: publicID,
		Name:     data.Name,
		Snapshot: snapBytes,
	})
	if err != nil {
		logger.Error("Failed to create composition", "err", err)
		return c.JSON(http.StatusInternalServerError, createCompositionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createCompositionResponse{
		Message:     "Composition created successfully",
		Composition: &composition,
	})
}
