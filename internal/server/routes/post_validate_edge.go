package routes

import (
	"net/http"

	"weave/pkg/flow"

	"github.com/labstack/echo/v4"
)

// ValidateEdgeHandler checks a candidate connection against a snapshot
// without committing anything. Editors call this while a wire is being
// dragged.
func ValidateEdgeHandler(c echo.Context) error {
	type validateEdgeBody struct {
		Snapshot  flow.Snapshot  `json:"snapshot"`
		Candidate flow.Candidate `json:"candidate"`
	}

	type validateEdgeResponse struct {
		Message string       `json:"message"`
		Result  *flow.Result `json:"result,omitempty"`
	}

	data := new(validateEdgeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, validateEdgeResponse{
			Message: "Invalid request body",
		})
	}

	comp, err := flow.FromSnapshot(data.Snapshot)
	if err != nil {
		return c.JSON(http.StatusBadRequest, validateEdgeResponse{
			Message: "Invalid snapshot: " + err.Error(),
		})
	}

	result := comp.ValidateEdge(data.Candidate)
	return c.JSON(http.StatusOK, validateEdgeResponse{
		Message: "OK",
		Result:  &result,
	})
}
