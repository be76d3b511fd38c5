package routes

import (
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/internal/storage"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// DeleteCompositionHandler deletes a composition, its runs (cascaded by the
// database) and its exported scripts in object storage.
func DeleteCompositionHandler(c echo.Context) error {
	type deleteCompositionParams struct {
		ID string `param:"id" validate:"required"`
	}

	type deleteCompositionResponse struct {
		Message string `json:"message"`
	}

	params := new(deleteCompositionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteCompositionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, deleteCompositionResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	if _, err := q.GetComposition(ctx, params.ID); err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, deleteCompositionResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to get composition", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteCompositionResponse{
			Message: "Internal server error",
		})
	}

	if err := q.DeleteComposition(ctx, params.ID); err != nil {
		logger.Error("Failed to delete composition", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, deleteCompositionResponse{
			Message: "Internal server error",
		})
	}

	s3Client := c.(*middleware.AppContext).App.S3
	if err := storage.DeleteFolder(ctx, s3Client, storage.CompositionPrefix(params.ID)); err != nil {
		// The row is gone; leftover exports are only storage garbage.
		logger.Error("Failed to delete composition exports", "id", params.ID, "err", err)
	}

	return c.JSON(http.StatusOK, deleteCompositionResponse{
		Message: "Composition deleted successfully",
	})
}
