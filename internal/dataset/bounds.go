package dataset

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Bounds is a lat/lng viewport rectangle.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Zero reports whether the bounds are unset.
func (b Bounds) Zero() bool {
	return b.North == 0 && b.South == 0 && b.East == 0 && b.West == 0
}

// Bound converts to an orb bound (min=SW, max=NE).
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// FilterBounds returns a new collection containing only features whose
// geometry intersects the viewport. Zero bounds pass everything through.
func FilterBounds(fc *geojson.FeatureCollection, b Bounds) *geojson.FeatureCollection {
	if b.Zero() {
		return fc
	}
	view := b.Bound()
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.Bound().Intersects(view) {
			out.Append(f)
		}
	}
	return out
}
