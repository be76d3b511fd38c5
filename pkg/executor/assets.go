package executor

import (
	"context"
	"fmt"
	"net/http"

	"weave/pkg/flow"
)

// Asset is one selectable program or model from the executor's catalog,
// carrying the slot metadata used to seed new nodes.
type Asset struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Version  string        `json:"version"`
	Category flow.Category `json:"category"`
	Inputs   []flow.Slot   `json:"inputs"`
	Outputs  []flow.Slot   `json:"outputs"`
}

// ListAssets fetches the asset catalog.
func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var out struct {
		Assets []Asset `json:"assets"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/assets", nil, &out); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return out.Assets, nil
}
