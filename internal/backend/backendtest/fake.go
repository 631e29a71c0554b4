// Package backendtest provides a recording in-memory Backend for engine
// tests. It mimics the lifecycle quirks of the real map library: it is not
// ready until loaded, a style swap destroys every source and layer, and
// readiness after a swap can be delayed to exercise retry paths.
package backendtest

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/climate-studio/atlas/internal/backend"
)

// Call records one backend invocation for idempotence assertions.
type Call struct {
	Op string
	ID string
}

// Fake implements backend.Backend and backend.Events.
type Fake struct {
	ReadyFlag bool

	// FailMutations makes the next N mutating calls fail with ErrNotReady,
	// simulating a style that reports loaded before it actually is.
	FailMutations int

	// Rendered is returned by QueryRenderedFeatures, filtered by layer.
	Rendered []backend.PointerEvent

	Calls []Call

	sources      map[string]backend.SourceSpec
	data         map[string]*geojson.FeatureCollection
	layers       []backend.LayerSpec
	featureState map[string]map[string]map[string]any
	camera       backend.Camera

	loadFns  []func()
	styleFns []func()
	clickFns []func(backend.PointerEvent)
	enterFns map[string][]func(backend.PointerEvent)
	leaveFns map[string][]func(backend.PointerEvent)
	moveFns  []func(backend.Camera)
}

// New returns an unloaded fake backend.
func New() *Fake {
	return &Fake{
		sources:      make(map[string]backend.SourceSpec),
		data:         make(map[string]*geojson.FeatureCollection),
		featureState: make(map[string]map[string]map[string]any),
		enterFns:     make(map[string][]func(backend.PointerEvent)),
		leaveFns:     make(map[string][]func(backend.PointerEvent)),
	}
}

func (f *Fake) record(op, id string) {
	f.Calls = append(f.Calls, Call{Op: op, ID: id})
}

// CountCalls returns how many recorded calls match op.
func (f *Fake) CountCalls(op string) int {
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) gate() error {
	if !f.ReadyFlag {
		return backend.ErrNotReady
	}
	if f.FailMutations > 0 {
		f.FailMutations--
		return backend.ErrNotReady
	}
	return nil
}

// Ready reports whether the fake accepts mutations.
func (f *Fake) Ready() bool { return f.ReadyFlag }

// AddSource registers a source. Fails on duplicates like the real library.
func (f *Fake) AddSource(id string, spec backend.SourceSpec) error {
	f.record("AddSource", id)
	if err := f.gate(); err != nil {
		return err
	}
	if _, exists := f.sources[id]; exists {
		return backend.ErrSourceExists
	}
	f.sources[id] = spec
	if spec.Data != nil {
		f.data[id] = spec.Data
	}
	return nil
}

// RemoveSource drops a source and its feature state.
func (f *Fake) RemoveSource(id string) error {
	f.record("RemoveSource", id)
	if err := f.gate(); err != nil {
		return err
	}
	delete(f.sources, id)
	delete(f.data, id)
	delete(f.featureState, id)
	return nil
}

// HasSource reports source existence. Existence checks are free even when
// the backend is mid-reload.
func (f *Fake) HasSource(id string) bool {
	f.record("HasSource", id)
	_, ok := f.sources[id]
	return ok
}

// SetData replaces a source's payload.
func (f *Fake) SetData(sourceID string, fc *geojson.FeatureCollection) error {
	f.record("SetData", sourceID)
	if err := f.gate(); err != nil {
		return err
	}
	if _, ok := f.sources[sourceID]; !ok {
		return backend.ErrMissingSource
	}
	f.data[sourceID] = fc
	return nil
}

// GetData returns a source's current payload.
func (f *Fake) GetData(sourceID string) (*geojson.FeatureCollection, bool) {
	fc, ok := f.data[sourceID]
	return fc, ok
}

// AddLayer appends a layer, or inserts it before beforeID when that layer
// exists. The referenced source must already exist.
func (f *Fake) AddLayer(spec backend.LayerSpec, beforeID string) error {
	f.record("AddLayer", spec.ID)
	if err := f.gate(); err != nil {
		return err
	}
	if f.hasLayer(spec.ID) {
		return backend.ErrLayerExists
	}
	if _, ok := f.sources[spec.Source]; !ok {
		return backend.ErrMissingSource
	}
	if beforeID != "" {
		for i, l := range f.layers {
			if l.ID == beforeID {
				f.layers = slices.Insert(f.layers, i, spec)
				return nil
			}
		}
	}
	f.layers = append(f.layers, spec)
	return nil
}

// RemoveLayer drops a layer.
func (f *Fake) RemoveLayer(id string) error {
	f.record("RemoveLayer", id)
	if err := f.gate(); err != nil {
		return err
	}
	f.layers = slices.DeleteFunc(f.layers, func(l backend.LayerSpec) bool { return l.ID == id })
	return nil
}

func (f *Fake) hasLayer(id string) bool {
	return slices.ContainsFunc(f.layers, func(l backend.LayerSpec) bool { return l.ID == id })
}

// HasLayer reports layer existence.
func (f *Fake) HasLayer(id string) bool {
	f.record("HasLayer", id)
	return f.hasLayer(id)
}

// LayerIDs returns the current layer order, bottom to top.
func (f *Fake) LayerIDs() []string {
	ids := make([]string, len(f.layers))
	for i, l := range f.layers {
		ids[i] = l.ID
	}
	return ids
}

// Layer returns the stored spec for a layer.
func (f *Fake) Layer(id string) (backend.LayerSpec, bool) {
	for _, l := range f.layers {
		if l.ID == id {
			return l, true
		}
	}
	return backend.LayerSpec{}, false
}

// SetPaintProperty updates one paint property.
func (f *Fake) SetPaintProperty(layerID, prop string, value any) error {
	f.record("SetPaintProperty", layerID+"/"+prop)
	if err := f.gate(); err != nil {
		return err
	}
	for i := range f.layers {
		if f.layers[i].ID == layerID {
			if f.layers[i].Paint == nil {
				f.layers[i].Paint = make(map[string]any)
			}
			f.layers[i].Paint[prop] = value
			return nil
		}
	}
	return backend.ErrMissingSource
}

// SetLayoutProperty updates one layout property.
func (f *Fake) SetLayoutProperty(layerID, prop string, value any) error {
	f.record("SetLayoutProperty", layerID+"/"+prop)
	if err := f.gate(); err != nil {
		return err
	}
	for i := range f.layers {
		if f.layers[i].ID == layerID {
			if f.layers[i].Layout == nil {
				f.layers[i].Layout = make(map[string]any)
			}
			f.layers[i].Layout[prop] = value
			return nil
		}
	}
	return backend.ErrMissingSource
}

// SetFeatureState merges per-feature transient state.
func (f *Fake) SetFeatureState(sourceID, featureID string, state map[string]any) error {
	f.record("SetFeatureState", sourceID+"/"+featureID)
	if err := f.gate(); err != nil {
		return err
	}
	bySource, ok := f.featureState[sourceID]
	if !ok {
		bySource = make(map[string]map[string]any)
		f.featureState[sourceID] = bySource
	}
	cur, ok := bySource[featureID]
	if !ok {
		cur = make(map[string]any)
		bySource[featureID] = cur
	}
	for k, v := range state {
		cur[k] = v
	}
	return nil
}

// RemoveFeatureState clears one transient state key for a feature, or
// all of them when key is empty.
func (f *Fake) RemoveFeatureState(sourceID, featureID, key string) error {
	f.record("RemoveFeatureState", sourceID+"/"+featureID+"/"+key)
	if err := f.gate(); err != nil {
		return err
	}
	if key == "" {
		delete(f.featureState[sourceID], featureID)
		return nil
	}
	if st, ok := f.featureState[sourceID][featureID]; ok {
		delete(st, key)
		if len(st) == 0 {
			delete(f.featureState[sourceID], featureID)
		}
	}
	return nil
}

// FeatureState returns the transient state for a feature, nil if none.
func (f *Fake) FeatureState(sourceID, featureID string) map[string]any {
	return f.featureState[sourceID][featureID]
}

// QueryRenderedFeatures returns the seeded hits filtered by layer.
func (f *Fake) QueryRenderedFeatures(at orb.Point, layerIDs []string) []backend.PointerEvent {
	var hits []backend.PointerEvent
	for _, ev := range f.Rendered {
		if len(layerIDs) == 0 || slices.Contains(layerIDs, ev.LayerID) {
			hits = append(hits, ev)
		}
	}
	return hits
}

// SetStyle destroys every source, layer and feature state and flips the
// fake back to not-ready, exactly like a real style swap.
func (f *Fake) SetStyle(styleURL string) error {
	f.record("SetStyle", styleURL)
	f.sources = make(map[string]backend.SourceSpec)
	f.data = make(map[string]*geojson.FeatureCollection)
	f.layers = nil
	f.featureState = make(map[string]map[string]map[string]any)
	f.ReadyFlag = false
	return nil
}

// Camera returns the current viewport.
func (f *Fake) Camera() backend.Camera { return f.camera }

// SetCamera restores the viewport.
func (f *Fake) SetCamera(cam backend.Camera) error {
	f.record("SetCamera", "")
	f.camera = cam
	return nil
}

// Event registration.

func (f *Fake) OnLoad(fn func())                      { f.loadFns = append(f.loadFns, fn) }
func (f *Fake) OnStyleLoad(fn func())                 { f.styleFns = append(f.styleFns, fn) }
func (f *Fake) OnClick(fn func(backend.PointerEvent)) { f.clickFns = append(f.clickFns, fn) }
func (f *Fake) OnMoveEnd(fn func(cam backend.Camera)) { f.moveFns = append(f.moveFns, fn) }

func (f *Fake) OnMouseEnter(layerID string, fn func(backend.PointerEvent)) {
	f.enterFns[layerID] = append(f.enterFns[layerID], fn)
}

func (f *Fake) OnMouseLeave(layerID string, fn func(backend.PointerEvent)) {
	f.leaveFns[layerID] = append(f.leaveFns[layerID], fn)
}

// Event firing, driven by tests.

// FireLoad marks the backend ready and runs load handlers.
func (f *Fake) FireLoad() {
	f.ReadyFlag = true
	for _, fn := range f.loadFns {
		fn()
	}
}

// FireStyleLoad runs style.load handlers. Callers decide whether the fake
// is actually ready first, so partially-loaded styles can be simulated.
func (f *Fake) FireStyleLoad() {
	for _, fn := range f.styleFns {
		fn()
	}
}

// FireClick runs click handlers.
func (f *Fake) FireClick(ev backend.PointerEvent) {
	for _, fn := range f.clickFns {
		fn(ev)
	}
}

// FireMouseEnter runs mouseenter handlers for the event's layer.
func (f *Fake) FireMouseEnter(ev backend.PointerEvent) {
	for _, fn := range f.enterFns[ev.LayerID] {
		fn(ev)
	}
}

// FireMouseLeave runs mouseleave handlers for the event's layer.
func (f *Fake) FireMouseLeave(ev backend.PointerEvent) {
	for _, fn := range f.leaveFns[ev.LayerID] {
		fn(ev)
	}
}

// FireMoveEnd runs moveend handlers with the current camera.
func (f *Fake) FireMoveEnd() {
	for _, fn := range f.moveFns {
		fn(f.camera)
	}
}
