// Package reconcile diff-applies the layer registry against the live
// rendering backend and replays everything after a style swap destroys
// backend state. All backend mutation in the engine funnels through here.
package reconcile

import (
	"errors"
	"reflect"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/layer"
	"github.com/climate-studio/atlas/internal/resilience"
)

// State is the reconciler lifecycle state.
type State int

const (
	// StateUninitialized: the backend has not signalled load yet.
	StateUninitialized State = iota
	// StateReady: the backend is live and synced.
	StateReady
	// StateStyleReloading: a style swap is in flight; backend-owned
	// sources and layers are gone until the new style loads.
	StateStyleReloading
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateStyleReloading:
		return "style-reloading"
	default:
		return "uninitialized"
	}
}

// Options configures a Reconciler.
type Options struct {
	// Retry bounds the style-reload replay. Zero value means the default
	// policy (5 attempts, fixed 300ms delay).
	Retry resilience.RetryConfig
	// Clock drives replay scheduling; nil means real time.
	Clock resilience.Clock
	// OnFatal receives unrecoverable errors (backend auth failure, replay
	// bound exhausted). Optional.
	OnFatal func(err error)
}

// applied tracks what was last pushed for one layer, so an unchanged
// registry produces no backend calls beyond existence checks.
type applied struct {
	sourceID string
	data     *geojson.FeatureCollection
	paint    map[string]any
	layout   map[string]any
	visible  bool
}

// Reconciler synchronizes the registry's declared layers with the backend.
type Reconciler struct {
	b   backend.Backend
	reg *layer.Registry
	log *zap.Logger

	state   State
	retrier *resilience.Retrier
	onFatal func(err error)

	applied  map[string]*applied
	snapshot *styleSnapshot

	dataReplacedFns []func(sourceID string)
}

// New creates a reconciler and subscribes it to the backend's load and
// style.load events.
func New(b backend.Backend, ev backend.Events, reg *layer.Registry, opts Options) *Reconciler {
	cfg := opts.Retry
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(err error) bool {
			return errors.Is(err, backend.ErrNotReady) || resilience.IsTransient(err)
		}
	}
	r := &Reconciler{
		b:       b,
		reg:     reg,
		log:     zap.L().With(zap.String("component", "reconcile")),
		retrier: resilience.NewRetrier(cfg, opts.Clock),
		onFatal: opts.OnFatal,
		applied: make(map[string]*applied),
	}
	ev.OnLoad(r.handleLoad)
	ev.OnStyleLoad(r.handleStyleLoad)
	return r
}

// State returns the lifecycle state.
func (r *Reconciler) State() State { return r.state }

// OnDataReplaced registers a hook fired just before a source's payload
// is replaced wholesale. Selection state subscribes: feature IDs are not
// stable across a full data replace, so stale feature-state writes must
// be cleared ahead of the push.
func (r *Reconciler) OnDataReplaced(fn func(sourceID string)) {
	r.dataReplacedFns = append(r.dataReplacedFns, fn)
}

func (r *Reconciler) handleLoad() {
	r.state = StateReady
	if err := r.Sync(); err != nil {
		r.log.Error("initial sync finished with errors", zap.Error(err))
	}
}

// Sync diff-applies the registry against the backend: create missing
// sources then layers, update changed data and properties, remove
// registry-owned layers that are no longer desired, and leave unmanaged
// layers alone. Idempotent; individual failures are logged and skipped so
// one bad layer never blanks the map.
func (r *Reconciler) Sync() error {
	if !r.b.Ready() {
		return backend.ErrNotReady
	}

	var errs []error
	for _, d := range r.reg.List() {
		if err := r.syncOne(d); err != nil {
			if errors.Is(err, backend.ErrAuth) {
				r.fatal(err)
			}
			r.log.Warn("layer sync failed, continuing",
				zap.String("layer", d.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	r.removeUndesired()
	return errors.Join(errs...)
}

func (r *Reconciler) syncOne(d layer.Descriptor) error {
	// Source before layer: the backend rejects layers whose source does
	// not exist yet.
	if !r.b.HasSource(d.SourceID) {
		err := r.b.AddSource(d.SourceID, sourceSpec(d))
		if err != nil && !errors.Is(err, backend.ErrSourceExists) {
			return err
		}
		if err == nil && d.SourceType == "geojson" {
			r.noteDataPushed(d.ID, d.SourceID, d.Data)
		}
	}

	if !r.b.HasLayer(d.ID) {
		spec := backend.LayerSpec{
			ID:     d.ID,
			Source: d.SourceID,
			Type:   d.LayerType,
			Paint:  d.Paint,
			Layout: layoutWithVisibility(d),
		}
		err := r.b.AddLayer(spec, r.resolveBefore(d.Before))
		if err != nil && !errors.Is(err, backend.ErrLayerExists) {
			return err
		}
		r.applied[d.ID] = &applied{
			sourceID: d.SourceID,
			data:     d.Data,
			paint:    d.Paint,
			layout:   d.Layout,
			visible:  d.Visible,
		}
		return nil
	}

	return r.updateOne(d)
}

// updateOne pushes only what actually changed since the last sync.
func (r *Reconciler) updateOne(d layer.Descriptor) error {
	prev, tracked := r.applied[d.ID]
	if !tracked {
		// Layer exists but we never created it this session (e.g. after a
		// process-level rehydrate). Adopt it and push everything.
		prev = &applied{sourceID: d.SourceID}
		r.applied[d.ID] = prev
	}

	if d.SourceType == "geojson" && d.Data != prev.data {
		// Subscribers run first: feature IDs are not stable across a full
		// replace, so dangling per-feature state must be cleared before the
		// new payload lands.
		r.fireDataReplaced(d.SourceID)
		if err := r.b.SetData(d.SourceID, d.Data); err != nil {
			return err
		}
		prev.data = d.Data
	}

	if !reflect.DeepEqual(d.Paint, prev.paint) {
		for prop, val := range d.Paint {
			if prev.paint == nil || !reflect.DeepEqual(prev.paint[prop], val) {
				if err := r.b.SetPaintProperty(d.ID, prop, val); err != nil {
					return err
				}
			}
		}
		prev.paint = d.Paint
	}

	if !reflect.DeepEqual(d.Layout, prev.layout) {
		for prop, val := range d.Layout {
			if prev.layout == nil || !reflect.DeepEqual(prev.layout[prop], val) {
				if err := r.b.SetLayoutProperty(d.ID, prop, val); err != nil {
					return err
				}
			}
		}
		prev.layout = d.Layout
	}

	if d.Visible != prev.visible {
		if err := r.b.SetLayoutProperty(d.ID, "visibility", visibilityValue(d.Visible)); err != nil {
			return err
		}
		prev.visible = d.Visible
	}

	return nil
}

// removeUndesired drops layers we created that the registry no longer
// wants. Backend layers we never created belong to the style and are left
// untouched.
func (r *Reconciler) removeUndesired() {
	for id, a := range r.applied {
		if r.reg.Owns(id) {
			continue
		}
		if err := r.b.RemoveLayer(id); err != nil {
			r.log.Warn("remove layer failed", zap.String("layer", id), zap.Error(err))
			continue
		}
		if err := r.b.RemoveSource(a.sourceID); err != nil {
			r.log.Warn("remove source failed", zap.String("source", a.sourceID), zap.Error(err))
		}
		delete(r.applied, id)
	}
}

// resolveBefore maps an ordering intent onto the backend's current layer
// list: the first candidate that exists wins, otherwise the layer goes on
// top.
func (r *Reconciler) resolveBefore(intent layer.OrderIntent) string {
	if len(intent.Candidates) == 0 {
		return ""
	}
	live := r.b.LayerIDs()
	present := make(map[string]bool, len(live))
	for _, id := range live {
		present[id] = true
	}
	for _, cand := range intent.Candidates {
		if present[cand] {
			return cand
		}
	}
	return ""
}

// SwapStyle initiates a style/theme change. The data snapshot is captured
// before the swap request is issued: the swap clears backend memory, so
// afterwards there is nothing left to snapshot.
func (r *Reconciler) SwapStyle(styleURL string) error {
	r.snapshot = r.captureSnapshot()
	r.state = StateStyleReloading
	r.log.Info("style swap requested",
		zap.String("style", styleURL),
		zap.Int("snapshotted_sources", len(r.snapshot.payloads)),
	)
	if err := r.b.SetStyle(styleURL); err != nil {
		return err
	}
	return nil
}

// handleStyleLoad replays the world into the freshly-loaded style. The
// style.load signal is unreliable (the style may be only partially ready),
// so the replay runs under the bounded retry policy instead of trusting a
// single signal.
func (r *Reconciler) handleStyleLoad() {
	if r.state != StateStyleReloading {
		// Spurious style.load without a swap in flight: treat as a plain
		// resync opportunity.
		if r.state == StateReady {
			_ = r.Sync()
		}
		return
	}
	r.retrier.Start(r.restore, func(err error) {
		r.log.Error("style restore abandoned after retry bound", zap.Error(err))
		if errors.Is(err, backend.ErrAuth) {
			r.fatal(err)
		}
	})
}

// restore is one replay attempt: camera, full sync, then re-push every
// snapshotted payload into the recreated sources. A failure on one layer
// never aborts the replay of the others; only errors worth another
// attempt propagate, so a single permanently broken layer cannot wedge
// the engine in StateStyleReloading.
func (r *Reconciler) restore() error {
	if !r.b.Ready() {
		return backend.ErrNotReady
	}
	snap := r.snapshot
	if snap == nil {
		snap = &styleSnapshot{}
	}

	// The swap destroyed everything; forget what was applied so the sync
	// recreates rather than diffs.
	r.applied = make(map[string]*applied)

	var errs []error
	if err := r.b.SetCamera(snap.camera); err != nil {
		errs = append(errs, err)
	}
	if err := r.Sync(); err != nil {
		errs = append(errs, err)
	}
	for sourceID, fc := range snap.payloads {
		if !r.b.HasSource(sourceID) {
			continue
		}
		if err := r.b.SetData(sourceID, fc); err != nil {
			errs = append(errs, err)
			continue
		}
		r.noteRestoredData(sourceID, fc)
	}

	if err := errors.Join(errs...); err != nil {
		if errors.Is(err, backend.ErrNotReady) || resilience.IsTransient(err) {
			return err
		}
		r.log.Warn("style restore finished with permanent errors", zap.Error(err))
		if errors.Is(err, backend.ErrAuth) {
			r.fatal(err)
		}
	}

	r.state = StateReady
	r.snapshot = nil
	r.log.Info("style restore complete", zap.Int("layers", len(r.reg.IDs())))
	return nil
}

func (r *Reconciler) fireDataReplaced(sourceID string) {
	for _, fn := range r.dataReplacedFns {
		fn(sourceID)
	}
}

func (r *Reconciler) noteDataPushed(layerID, sourceID string, fc *geojson.FeatureCollection) {
	if a, ok := r.applied[layerID]; ok {
		a.data = fc
		return
	}
	r.applied[layerID] = &applied{sourceID: sourceID, data: fc}
}

// noteRestoredData keeps the applied ledger consistent with a snapshot
// payload pushed over the registry data after a style reload.
func (r *Reconciler) noteRestoredData(sourceID string, fc *geojson.FeatureCollection) {
	for _, a := range r.applied {
		if a.sourceID == sourceID {
			a.data = fc
		}
	}
}

func (r *Reconciler) fatal(err error) {
	if r.onFatal != nil {
		r.onFatal(err)
	}
}

func sourceSpec(d layer.Descriptor) backend.SourceSpec {
	if d.SourceType == "geojson" {
		return backend.SourceSpec{Type: "geojson", Data: d.Data}
	}
	return backend.SourceSpec{Type: d.SourceType, URL: d.TileURL}
}

func layoutWithVisibility(d layer.Descriptor) map[string]any {
	layout := make(map[string]any, len(d.Layout)+1)
	for k, v := range d.Layout {
		layout[k] = v
	}
	layout["visibility"] = visibilityValue(d.Visible)
	return layout
}

func visibilityValue(visible bool) string {
	if visible {
		return "visible"
	}
	return "none"
}
