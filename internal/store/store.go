package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/projection"
)

// ErrViewNotFound is returned when a view ID does not exist.
var ErrViewNotFound = eris.New("store: view not found")

// LayerState records one layer's visibility inside a saved view.
type LayerState struct {
	LayerID string `json:"layer_id"`
	Visible bool   `json:"visible"`
}

// View is a named snapshot of the map: temporal position, style, camera
// and per-layer visibility. Ruleset versions record which classifier
// thresholds were current when the view was saved, so stale views can be
// flagged after a threshold change.
type View struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Year            int                 `json:"year"`
	Scenario        projection.Scenario `json:"scenario"`
	StyleID         string              `json:"style_id"`
	Camera          backend.Camera      `json:"camera"`
	Layers          []LayerState        `json:"layers"`
	RulesetVersions map[string]int      `json:"ruleset_versions,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ViewFilter specifies criteria for listing views.
type ViewFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store persists saved views.
type Store interface {
	SaveView(ctx context.Context, v View) (*View, error)
	GetView(ctx context.Context, id string) (*View, error)
	ListViews(ctx context.Context, filter ViewFilter) ([]View, error)
	DeleteView(ctx context.Context, id string) error

	Migrate(ctx context.Context) error
	Close() error
}
