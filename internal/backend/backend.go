// Package backend defines the narrow capability set the engine needs from
// a rendering backend. The real map library lives outside this module;
// everything here can be satisfied by a recording fake in tests.
package backend

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// Errors the engine branches on. ErrNotReady is transient: the backend
// becomes available asynchronously after load or a style swap. ErrAuth is
// fatal for the view.
var (
	ErrNotReady      = eris.New("backend: not ready")
	ErrSourceExists  = eris.New("backend: source already exists")
	ErrLayerExists   = eris.New("backend: layer already exists")
	ErrMissingSource = eris.New("backend: layer references missing source")
	ErrAuth          = eris.New("backend: authentication failed")
)

// SourceSpec describes a data source. GeoJSON sources carry their payload
// inline; tile sources reference a URL template.
type SourceSpec struct {
	Type string                     `json:"type"` // "geojson", "vector", "raster"
	Data *geojson.FeatureCollection `json:"data,omitempty"`
	URL  string                     `json:"url,omitempty"`
}

// LayerSpec describes one visual layer bound to a source.
type LayerSpec struct {
	ID     string         `json:"id"`
	Source string         `json:"source"`
	Type   string         `json:"type"` // "fill", "line", "circle", "symbol"
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
}

// Camera is the viewport: center, zoom, bearing, pitch.
type Camera struct {
	Center  orb.Point `json:"center"`
	Zoom    float64   `json:"zoom"`
	Bearing float64   `json:"bearing"`
	Pitch   float64   `json:"pitch"`
}

// PointerEvent is a click or hover hit. FeatureID is empty when the
// pointer event landed on no feature of the layer.
type PointerEvent struct {
	LayerID   string
	SourceID  string
	FeatureID string
	LngLat    orb.Point
}

// Backend is the capability set of the external rendering library. All
// mutation is funneled through the reconciler; no other code path may
// create sources or layers.
type Backend interface {
	Ready() bool

	AddSource(id string, spec SourceSpec) error
	RemoveSource(id string) error
	HasSource(id string) bool
	SetData(sourceID string, fc *geojson.FeatureCollection) error
	GetData(sourceID string) (*geojson.FeatureCollection, bool)

	AddLayer(spec LayerSpec, beforeID string) error
	RemoveLayer(id string) error
	HasLayer(id string) bool
	LayerIDs() []string
	SetPaintProperty(layerID, prop string, value any) error
	SetLayoutProperty(layerID, prop string, value any) error

	SetFeatureState(sourceID, featureID string, state map[string]any) error
	// RemoveFeatureState clears one feature-state key, or every key when
	// key is empty.
	RemoveFeatureState(sourceID, featureID, key string) error

	QueryRenderedFeatures(at orb.Point, layerIDs []string) []PointerEvent

	SetStyle(styleURL string) error
	Camera() Camera
	SetCamera(Camera) error
}

// Events is the backend's event surface. Handlers run on the UI event
// loop; registration is not required to be concurrency-safe.
type Events interface {
	OnLoad(fn func())
	OnStyleLoad(fn func())
	OnClick(fn func(ev PointerEvent))
	OnMouseEnter(layerID string, fn func(ev PointerEvent))
	OnMouseLeave(layerID string, fn func(ev PointerEvent))
	OnMoveEnd(fn func(cam Camera))
}
