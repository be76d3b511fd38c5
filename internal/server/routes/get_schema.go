package routes

import (
	"net/http"

	"weave/pkg/flow"

	"github.com/invopop/jsonschema"
	"github.com/labstack/echo/v4"
)

// GetSchemaHandler exposes the JSON schema of a composition snapshot so
// editors and external tooling can validate documents before submitting
// them.
func GetSchemaHandler(c echo.Context) error {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&flow.Snapshot{})
	return c.JSON(http.StatusOK, schema)
}
