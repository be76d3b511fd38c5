package server

import (
	"weave/internal/server/middleware"
	"weave/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Composition routes
	apiRoutes.GET("/compositions", routes.GetCompositionsHandler)
	apiRoutes.GET("/compositions/:id", routes.GetCompositionHandler)
	apiRoutes.POST("/compositions", routes.CreateCompositionHandler, middleware.RequirePermission("composition.create"))
	apiRoutes.PATCH("/compositions/:id", routes.RenameCompositionHandler, middleware.RequirePermission("composition.update"))
	apiRoutes.DELETE("/compositions/:id", routes.DeleteCompositionHandler, middleware.RequirePermission("composition.delete"))
	apiRoutes.PUT("/compositions/:id/snapshot", routes.UpdateSnapshotHandler, middleware.RequirePermission("composition.update"))

	// Editing support routes
	apiRoutes.POST("/compositions/validate-edge", routes.ValidateEdgeHandler)
	apiRoutes.POST("/compositions/:id/compile", routes.CompileCompositionHandler)
	apiRoutes.POST("/compositions/:id/exports", routes.CreateExportHandler, middleware.RequirePermission("export.create"))

	// Run routes
	apiRoutes.GET("/compositions/:id/runs", routes.GetRunsHandler)
	apiRoutes.POST("/compositions/:id/runs", routes.CreateRunHandler, middleware.RequirePermission("run.create"))
	apiRoutes.GET("/runs/:run_id", routes.GetRunHandler)
	apiRoutes.GET("/runs/:run_id/logs", routes.StreamRunLogsHandler)
	apiRoutes.POST("/runs/:run_id/cancel", routes.CancelRunHandler, middleware.RequirePermission("run.cancel"))

	// Catalog and schema routes
	apiRoutes.GET("/assets", routes.GetAssetsHandler)
	apiRoutes.GET("/schema/composition", routes.GetSchemaHandler)
}
