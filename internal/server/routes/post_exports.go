package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"weave/internal/db"
	"weave/internal/server/middleware"
	"weave/internal/storage"
	"weave/internal/util"
	"weave/pkg/codegen"
	"weave/pkg/flow"
	"weave/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// CreateExportHandler compiles a composition, uploads the script to object
// storage and returns a presigned download link.
func CreateExportHandler(c echo.Context) error {
	type createExportBody struct {
		ID      string           `param:"id" validate:"required"`
		Options *codegen.Options `json:"options"`
	}

	type createExportResponse struct {
		Message     string   `json:"message"`
		Key         string   `json:"key,omitempty"`
		DownloadURL string   `json:"download_url,omitempty"`
		Warnings    []string `json:"warnings,omitempty"`
	}

	data := new(createExportBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createExportResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createExportResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	conn := c.(*middleware.AppContext).App.DBConn
	q := db.New(conn)

	composition, err := q.GetComposition(ctx, data.ID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, createExportResponse{
				Message: "Composition not found",
			})
		}
		logger.Error("Failed to get composition", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createExportResponse{
			Message: "Internal server error",
		})
	}

	var snap flow.Snapshot
	if err := json.Unmarshal(composition.Snapshot, &snap); err != nil {
		logger.Error("Failed to unmarshal snapshot", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createExportResponse{
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
		return c.JSON(http.StatusUnprocessableEntity, createExportResponse{
			Message: "Compilation failed",
		})
	}

	exportID, err := util.NewID()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createExportResponse{
			Message: "Internal server error",
		})
	}

	s3Client := c.(*middleware.AppContext).App.S3
	key, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) (string, error) {
		return storage.PutScript(ctx, s3Client, data.ID, exportID, generated.Code)
	})
	if err != nil {
		logger.Error("Failed to upload export", "id", data.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, createExportResponse{
			Message: "Internal server error",
		})
	}

	link, err := storage.GenerateDownloadLink(ctx, s3Client, key)
	if err != nil {
		logger.Error("Failed to generate download link", "key", key, "err", err)
		return c.JSON(http.StatusInternalServerError, createExportResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, createExportResponse{
		Message:     "Export created successfully",
		Key:         key,
		DownloadURL: link,
		Warnings:    generated.Warnings,
	})
}
