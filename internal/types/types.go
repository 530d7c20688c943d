package types

import (
	"paretodesk/internal/design"
	"paretodesk/internal/selection"
)

// OptimizeRequest is forwarded to the optimizer service.
type OptimizeRequest struct {
	Load           float64 `json:"load" validate:"gt=0"`
	Material       string  `json:"material" validate:"required"`
	PopulationSize int     `json:"pop_size" validate:"gte=4,lte=500"`
	Generations    int     `json:"n_gen" validate:"gte=1,lte=1000"`
}

// WithDefaults fills the fields the optimizer service defaults when absent.
func (r OptimizeRequest) WithDefaults() OptimizeRequest {
	if r.Material == "" {
		r.Material = "PLA"
	}
	if r.PopulationSize == 0 {
		r.PopulationSize = 40
	}
	if r.Generations == 0 {
		r.Generations = 50
	}
	return r
}

// ActivateRequest is a point activation from the rendering surface.
type ActivateRequest struct {
	DesignID         *int `json:"design_id" binding:"required"`
	CompareRequested bool `json:"compare_requested"`
}

// ClientMessage is an inbound websocket frame.
type ClientMessage struct {
	Type             string `json:"type"`
	DesignID         *int   `json:"design_id,omitempty"`
	CompareRequested bool   `json:"compare_requested,omitempty"`
}

// Inbound websocket message types.
const (
	MessageActivate         = "activate"
	MessageToggleComparison = "toggle_comparison"
)

type WSEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"ts,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// CatalogView is the active Pareto front as served to clients.
type CatalogView struct {
	design.Meta
	Designs []design.Design `json:"designs"`
}

// SelectionSnapshot is the selection state plus the comparison on display.
type SelectionSnapshot struct {
	selection.State
	Comparison *design.ComparisonResult `json:"comparison,omitempty"`
}

type StatusSnapshot struct {
	Status       string          `json:"status"`
	RunID        string          `json:"run_id,omitempty"`
	Material     string          `json:"material,omitempty"`
	Designs      int             `json:"designs"`
	Runs         int             `json:"runs"`
	LastRunMs    int64           `json:"last_run_ms"`
	Selection    selection.State `json:"selection"`
	Materials    int             `json:"materials"`
	OptimizerURL string          `json:"optimizer_url,omitempty"`
}
