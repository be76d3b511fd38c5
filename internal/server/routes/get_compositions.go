package routes

import (
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// GetCompositionsHandler lists all compositions, newest change first.
func GetCompositionsHandler(c echo.Context) error {
	type getCompositionsResponse struct {
		Message      string           `json:"message"`
		Compositions []db.Composition `json:"compositions"`
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	compositions, err := q.ListCompositions(ctx)
	if err != nil {
		logger.Error("Failed to list compositions", "err", err)
		return c.JSON(http.StatusInternalServerError, getCompositionsResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCompositionsResponse{
		Message:      "OK",
		Compositions: compositions,
	})
}

// GetCompositionHandler returns a single composition with its snapshot.
func GetCompositionHandler(c echo.Context) error {
	type getCompositionParams struct {
		ID string `param:"id" validate:"required"`
	}

	type getCompositionResponse struct {
		Message     string          `json:"message"`
		Composition *db.Composition `json:"composition,omitempty"`
	}

	params := new(getCompositionParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCompositionResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getCompositionResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.GetComposition(ctx, params.ID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, getCompositionResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to get composition", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, getCompositionResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getCompositionResponse{
		Message:     "OK",
		Composition: &composition,
	})
}
