package view

import (
	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/layer"
)

// labelAnchors are "insert before" candidates so data layers render under
// the style's label layers. IDs vary by style, hence the list.
var labelAnchors = []string{"waterway-label", "settlement-label", "road-label"}

// descriptorFor builds the layer declaration for a dataset. Colors are
// data-driven off the "color" property stamped by Derive; highlight state
// rides on feature-state so selection never rewrites the payload.
func descriptorFor(meta dataset.Meta, layerID, sourceID string) layer.Descriptor {
	d := layer.Descriptor{
		ID:         layerID,
		SourceID:   sourceID,
		SourceType: "geojson",
		LayerType:  meta.LayerType,
		Visible:    true,
		Before:     layer.Before(labelAnchors...),
		Selectable: meta.Group != "",
		Group:      meta.Group,
	}

	selectedCase := func(on, off any) []any {
		return []any{"case",
			[]any{"boolean", []any{"feature-state", "selected"}, false}, on,
			[]any{"boolean", []any{"feature-state", "hover"}, false}, off,
			off,
		}
	}

	switch meta.LayerType {
	case "fill":
		d.Paint = map[string]any{
			"fill-color": []any{"get", "color"},
			"fill-opacity": []any{"case",
				[]any{"boolean", []any{"feature-state", "selected"}, false}, 0.85,
				[]any{"boolean", []any{"feature-state", "hover"}, false}, 0.7,
				0.55,
			},
			"fill-outline-color": "#1e293b",
		}
	case "line":
		d.Paint = map[string]any{
			"line-color": []any{"get", "color"},
			"line-width": selectedCase(4.5, 2.5),
		}
		d.Layout = map[string]any{
			"line-cap":  "round",
			"line-join": "round",
		}
	case "circle":
		d.Paint = map[string]any{
			"circle-color":        []any{"get", "color"},
			"circle-radius":       selectedCase(9.0, 6.0),
			"circle-stroke-width": 1.5,
			"circle-stroke-color": "#f8fafc",
		}
	}

	return d
}
