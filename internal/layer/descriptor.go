// Package layer holds the declarative registry of desired visual layers.
// The registry stores intent only; reconciliation against the live backend
// happens in internal/reconcile.
package layer

import (
	"maps"
	"slices"

	"github.com/paulmach/orb/geojson"
)

// OrderIntent names where a layer wants to sit in the stack. Candidates
// are tried in order against the backend's actual layer list; label-layer
// IDs vary by active style, so several candidates plus a fallback are the
// norm. An empty intent means "on top".
type OrderIntent struct {
	// Candidates are layer IDs to insert before, first existing one wins.
	Candidates []string
}

// Before returns an intent with the given candidates.
func Before(candidates ...string) OrderIntent {
	return OrderIntent{Candidates: candidates}
}

// Descriptor declares one desired layer and the source feeding it.
// Feature collections are treated as immutable: a data change is a new
// collection, never an in-place edit.
type Descriptor struct {
	ID       string
	SourceID string

	// SourceType is "geojson" for inline data or "vector"/"raster" for
	// tile sources referenced by TileURL.
	SourceType string
	Data       *geojson.FeatureCollection
	TileURL    string

	// LayerType is the backend layer type: fill, line, circle, symbol.
	LayerType string
	Paint     map[string]any
	Layout    map[string]any

	Visible bool
	Before  OrderIntent

	// Selectable layers participate in the selection state machine;
	// Group names their selection group.
	Selectable bool
	Group      string
}

// clone returns a copy safe to hand to readers. The feature collection
// pointer is shared on purpose: collections are immutable by contract and
// snapshotting them byte-for-byte is the reconciler's job.
func (d Descriptor) clone() Descriptor {
	d.Paint = maps.Clone(d.Paint)
	d.Layout = maps.Clone(d.Layout)
	d.Before.Candidates = slices.Clone(d.Before.Candidates)
	return d
}
