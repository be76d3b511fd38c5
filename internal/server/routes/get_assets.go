package routes

import (
	"net/http"

	"weave/internal/server/middleware"
	"weave/pkg/executor"
	"weave/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetAssetsHandler proxies the executor's program and model catalog so the
// editor can build its node palette.
func GetAssetsHandler(c echo.Context) error {
	type getAssetsResponse struct {
		Message string           `json:"message"`
		Assets  []executor.Asset `json:"assets"`
	}

	ctx := c.Request().Context()
	exec := c.(*middleware.AppContext).App.Executor

	assets, err := exec.ListAssets(ctx)
	if err != nil {
		logger.Error("Failed to list assets", "err", err)
		return c.JSON(http.StatusBadGateway, getAssetsResponse{
			Message: "Executor unavailable",
		})
	}

	return c.JSON(http.StatusOK, getAssetsResponse{
		Message: "OK",
		Assets:  assets,
	})
}
