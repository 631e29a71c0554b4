package layer

import (
	"slices"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// Registry is the single owner of layer descriptors. Order of insertion is
// the desired z-order baseline; OrderIntent refines it against the live
// style. Not safe for concurrent use: everything runs on the event loop.
type Registry struct {
	order []string
	byID  map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Descriptor)}
}

// Upsert adds or replaces a descriptor. Replacement keeps the original
// position in the desired order.
func (r *Registry) Upsert(d Descriptor) error {
	if d.ID == "" || d.SourceID == "" {
		return eris.New("layer: descriptor needs id and source id")
	}
	if d.SourceType == "geojson" && d.Data == nil {
		// Pending fetch: an empty collection keeps the layer creatable.
		d.Data = geojson.NewFeatureCollection()
	}
	if _, exists := r.byID[d.ID]; !exists {
		r.order = append(r.order, d.ID)
	}
	r.byID[d.ID] = d.clone()
	return nil
}

// Remove drops a descriptor. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	if _, exists := r.byID[id]; !exists {
		return
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

// Get returns a copy of the descriptor with the given ID.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// List returns copies of all descriptors in desired order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// SetData replaces a descriptor's feature collection. Callers use this for
// remote refreshes; the reconciler picks the new payload up on its next
// sync.
func (r *Registry) SetData(id string, fc *geojson.FeatureCollection) error {
	d, ok := r.byID[id]
	if !ok {
		return eris.Errorf("layer: unknown layer %q", id)
	}
	d.Data = fc
	r.byID[id] = d
	return nil
}

// SetVisible flips a descriptor's visibility flag.
func (r *Registry) SetVisible(id string, visible bool) error {
	d, ok := r.byID[id]
	if !ok {
		return eris.Errorf("layer: unknown layer %q", id)
	}
	d.Visible = visible
	r.byID[id] = d
	return nil
}

// IDs returns the desired order of layer IDs.
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}

// Owns reports whether the registry manages the given layer ID. The
// reconciler uses this to leave unmanaged backend layers untouched.
func (r *Registry) Owns(id string) bool {
	_, ok := r.byID[id]
	return ok
}
