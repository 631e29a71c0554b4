package dataset

import (
	"github.com/paulmach/orb/geojson"

	"github.com/climate-studio/atlas/internal/projection"
)

// Derive produces a new feature collection for one year and scenario.
// Input entities are never mutated; every output feature is a fresh
// object carrying the interpolated value, its class label and color,
// so downstream consumers can pointer-compare collections to detect
// payload changes.
func Derive(c *Collection, year int, scen projection.Scenario) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, e := range c.Entities {
		f := geojson.NewFeature(e.Feature.Geometry)
		f.ID = e.ID
		for k, v := range e.Feature.Properties {
			f.Properties[k] = v
		}
		for prop, m := range e.Metrics {
			if v, ok := m.ValueAt(scen, year); ok {
				f.Properties[prop+"_value"] = v
			}
			cls := m.ClassAt(scen, year)
			f.Properties[prop+"_class"] = cls.Label
			f.Properties[prop+"_color"] = cls.Color
			if prop == c.Meta.Primary {
				f.Properties["class"] = cls.Label
				f.Properties["color"] = cls.Color
			}
		}
		out.Append(f)
	}
	return out
}
