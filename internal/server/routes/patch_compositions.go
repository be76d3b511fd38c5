package routes

import (
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// RenameCompositionHandler renames a composition.
func RenameCompositionHandler(c echo.Context) error {
	type renameCompositionBody struct {
		ID   string `param:"id" validate:"required"`
		Name string `json:"name" validate:"required"`
	}

	type renameCompositionResponse struct {
		Message     string          `json:"message"`
		Composition *db.Composition `json:"composition,omitempty"`
	}

	data := new(renameCompositionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, renameCompositionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, renameCompositionResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.RenameComposition(ctx, db.RenameCompositionParams{
		PublicID: data.ID,
		Name:     data.Name,
	})
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, renameCompositionResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to rename composition", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, renameCompositionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, renameCompositionResponse{
		Message:     "Composition updated successfully",
		Composition: &composition,
	})
}
