package reconcile

import (
	"github.com/paulmach/orb/geojson"

	"github.com/climate-studio/atlas/internal/backend"
)

// styleSnapshot is everything a style swap destroys that the registry
// alone cannot rebuild: the viewport and the last live payload of every
// managed data source. Descriptors survive in the registry; live payloads
// (remote refreshes, year re-derivations) only exist in backend memory.
type styleSnapshot struct {
	camera   backend.Camera
	payloads map[string]*geojson.FeatureCollection
}

// captureSnapshot reads the backend's current state. Must be called
// before the swap request is issued, never after.
func (r *Reconciler) captureSnapshot() *styleSnapshot {
	snap := &styleSnapshot{
		camera:   r.b.Camera(),
		payloads: make(map[string]*geojson.FeatureCollection),
	}
	seen := make(map[string]bool)
	for _, a := range r.applied {
		if a.sourceID == "" || seen[a.sourceID] {
			continue
		}
		seen[a.sourceID] = true
		if fc, ok := r.b.GetData(a.sourceID); ok && fc != nil {
			snap.payloads[a.sourceID] = fc
		}
	}
	return snap
}
