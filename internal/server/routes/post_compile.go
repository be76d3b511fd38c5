package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/pkg/codegen"
	"weave/pkg/flow"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// CompileCompositionHandler compiles the persisted snapshot of a
// composition into source code. A compiler panic must never take the
// editor session down with it, so it degrades to an empty result with the
// failure recorded.
func CompileCompositionHandler(c echo.Context) error {
	type compileBody struct {
		ID      string           `param:"id" validate:"required"`
		Options *codegen.Options `json:"options"`
	}

	type compileResponse struct {
		Message   string             `json:"message"`
		Generated *codegen.Generated `json:"generated,omitempty"`
		Failed    bool               `json:"failed,omitempty"`
	}

	data := new(compileBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, compileResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, compileResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.GetComposition(ctx, data.ID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, compileResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to get composition", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, compileResponse{
			Message: "Internal server error",
		})
	}

	var snap flow.Snapshot
	if err := json.Unmarshal(composition.Snapshot, &snap); err != nil {
		logger.Error("Failed to unmarshal snapshot", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, compileResponse{
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
		empty := codegen.Generated{}
		return c.JSON(http.StatusOK, compileResponse{
			Message:   "Compilation failed",
			Generated: &empty,
			Failed:    true,
		})
	}

	return c.JSON(http.StatusOK, compileResponse{
		Message:   "OK",
		Generated: &generated,
	})
}

// safeCompile converts compiler panics into errors.
func safeCompile(snap flow.Snapshot, opts codegen.Options) (generated codegen.Generated, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compiler panic: %v", r)
		}
	}()
	generated = codegen.Compile(snap, opts)
	return generated, nil
}
