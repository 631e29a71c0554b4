// Package view composes the engine for one map view: the layer registry,
// reconciler, selection manager, and backstop, wired to the dataset
// service. One Controller per rendered map.
package view

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/backstop"
	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/layer"
	"github.com/climate-studio/atlas/internal/projection"
	"github.com/climate-studio/atlas/internal/reconcile"
	"github.com/climate-studio/atlas/internal/resilience"
	"github.com/climate-studio/atlas/internal/selection"
	"github.com/climate-studio/atlas/internal/store"
)

// Options configures a Controller.
type Options struct {
	// Exclusions maps a selection group to the groups whose panels close
	// when it opens one.
	Exclusions map[string][]string
	// Retry bounds the style-reload replay.
	Retry resilience.RetryConfig
	// Backstop holds the stalled-data watchdog timeouts.
	Backstop backstop.Config
	// Clock drives retry and backstop timers; nil means real time.
	Clock resilience.Clock
	// OnFatal receives unrecoverable backend errors.
	OnFatal func(err error)
}

// Controller owns the live state of one map view. It is the only writer
// to its registry; all methods are meant to run on the UI event loop, so
// none of them lock.
type Controller struct {
	b        backend.Backend
	ev       backend.Events
	datasets *dataset.Service
	reg      *layer.Registry
	rec      *reconcile.Reconciler
	sel      *selection.Manager
	dog      *backstop.Watchdog
	log      *zap.Logger

	year    int
	scen    projection.Scenario
	styleID string
	bounds  dataset.Bounds

	cols    map[string]*dataset.Collection // active datasets by ID
	sources map[string]string              // sourceID -> layerID
	hovered map[string]bool                // layerIDs with hover handlers
}

// New wires a controller to a backend. The reconciler registers its load
// handlers first, so by the time the controller's own load hook runs the
// initial sync has already happened.
func New(b backend.Backend, ev backend.Events, datasets *dataset.Service, opts Options) *Controller {
	reg := layer.NewRegistry()
	c := &Controller{
		b:        b,
		ev:       ev,
		datasets: datasets,
		reg:      reg,
		log:      zap.L().With(zap.String("component", "view")),
		year:     projection.DefaultYear,
		scen:     projection.DefaultScenario,
		cols:     make(map[string]*dataset.Collection),
		sources:  make(map[string]string),
		hovered:  make(map[string]bool),
	}
	c.rec = reconcile.New(b, ev, reg, reconcile.Options{
		Retry:   opts.Retry,
		Clock:   opts.Clock,
		OnFatal: opts.OnFatal,
	})
	c.sel = selection.NewManager(b, opts.Exclusions)
	c.dog = backstop.New(opts.Backstop, opts.Clock, c.refreshLayer)

	// The replace hook fires before the payload lands, so it only clears
	// selection here. The backstop resolves in resolveArrived once the
	// push is confirmed.
	c.rec.OnDataReplaced(func(sourceID string) {
		c.sel.InvalidateSource(sourceID)
	})
	ev.OnLoad(c.resolveArrived)
	ev.OnClick(c.handleClick)

	return c
}

// Selection exposes the view's selection state for panel rendering.
func (c *Controller) Selection() *selection.Manager { return c.sel }

// Year returns the current projection year.
func (c *Controller) Year() int { return c.year }

// Scenario returns the current emissions scenario.
func (c *Controller) Scenario() projection.Scenario { return c.scen }

// Active reports whether a dataset is currently shown.
func (c *Controller) Active(datasetID string) bool {
	_, ok := c.cols[datasetID]
	return ok
}

// Activate loads a dataset and declares its layer. Idempotent; an already
// active dataset is left alone. The backstop starts watching before the
// load so a hung fetch still gets its nudges.
func (c *Controller) Activate(ctx context.Context, datasetID string) error {
	if _, ok := c.cols[datasetID]; ok {
		return nil
	}

	layerID := layerIDFor(datasetID)
	c.dog.Watch(layerID)

	col, err := c.datasets.Load(ctx, datasetID, c.bounds)
	if err != nil {
		c.dog.Cancel(layerID)
		return err
	}

	c.cols[datasetID] = col
	sourceID := sourceIDFor(datasetID)
	c.sources[sourceID] = layerID

	d := descriptorFor(col.Meta, layerID, sourceID)
	d.Data = dataset.Derive(col, c.year, c.scen)
	if err := c.reg.Upsert(d); err != nil {
		return err
	}

	if d.Selectable && !c.hovered[layerID] {
		c.hovered[layerID] = true
		c.ev.OnMouseEnter(layerID, c.sel.HandleHoverEnter)
		c.ev.OnMouseLeave(layerID, func(backend.PointerEvent) { c.sel.HandleHoverLeave() })
	}

	c.sync()
	return nil
}

// Deactivate removes a dataset's layer and forgets its selection.
func (c *Controller) Deactivate(datasetID string) {
	if _, ok := c.cols[datasetID]; !ok {
		return
	}
	layerID := layerIDFor(datasetID)
	sourceID := sourceIDFor(datasetID)

	c.dog.Cancel(layerID)
	c.sel.InvalidateSource(sourceID)
	c.reg.Remove(layerID)
	delete(c.cols, datasetID)
	delete(c.sources, sourceID)

	c.sync()
}

// SetVisible toggles a layer without unloading its data.
func (c *Controller) SetVisible(datasetID string, visible bool) error {
	if err := c.reg.SetVisible(layerIDFor(datasetID), visible); err != nil {
		return err
	}
	c.sync()
	return nil
}

// SetYear re-projects every active dataset to the given year.
func (c *Controller) SetYear(year int) {
	if year == c.year {
		return
	}
	c.year = year
	c.reproject()
}

// SetScenario re-projects every active dataset under the given scenario.
func (c *Controller) SetScenario(scen projection.Scenario) {
	if scen == c.scen {
		return
	}
	c.scen = scen
	c.reproject()
}

// reproject derives fresh collections for the current year and scenario.
// Each derive is a new collection, so the reconciler sees a data replace
// and selection-by-ID gets invalidated.
func (c *Controller) reproject() {
	for id, col := range c.cols {
		layerID := layerIDFor(id)
		c.dog.Watch(layerID)
		if err := c.reg.SetData(layerID, dataset.Derive(col, c.year, c.scen)); err != nil {
			c.log.Warn("reproject failed", zap.String("dataset", id), zap.Error(err))
			c.dog.Cancel(layerID)
		}
	}
	c.sync()
}

// SetBounds reloads every active dataset for a new viewport. A failed
// reload keeps the previous data on screen.
func (c *Controller) SetBounds(ctx context.Context, b dataset.Bounds) {
	c.bounds = b
	for id := range c.cols {
		layerID := layerIDFor(id)
		c.dog.Watch(layerID)
		col, err := c.datasets.Load(ctx, id, b)
		if err != nil {
			c.log.Warn("viewport reload failed, keeping stale data",
				zap.String("dataset", id),
				zap.Error(err),
			)
			c.dog.Cancel(layerID)
			continue
		}
		c.cols[id] = col
		if err := c.reg.SetData(layerID, dataset.Derive(col, c.year, c.scen)); err != nil {
			c.log.Warn("viewport data push failed", zap.String("dataset", id), zap.Error(err))
		}
	}
	c.sync()
}

// SetStyle swaps the base style. The reconciler snapshots and replays;
// nothing else to do here.
func (c *Controller) SetStyle(styleURL string) error {
	c.styleID = styleURL
	return c.rec.SwapStyle(styleURL)
}

// Snapshot captures the view as a persistable record.
func (c *Controller) Snapshot(name string) store.View {
	v := store.View{
		Name:     name,
		Year:     c.year,
		Scenario: c.scen,
		StyleID:  c.styleID,
		Camera:   c.b.Camera(),
	}
	for _, d := range c.reg.List() {
		v.Layers = append(v.Layers, store.LayerState{
			LayerID: datasetIDFor(d.ID),
			Visible: d.Visible,
		})
	}
	return v
}

// Apply rehydrates a saved view: year, scenario, style, camera, and the
// layer set with its visibility.
func (c *Controller) Apply(ctx context.Context, v store.View) error {
	c.year = v.Year
	c.scen = v.Scenario

	var errs []error
	for _, ls := range v.Layers {
		if err := c.Activate(ctx, ls.LayerID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.reg.SetVisible(layerIDFor(ls.LayerID), ls.Visible); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.b.SetCamera(v.Camera); err != nil && !errors.Is(err, backend.ErrNotReady) {
		errs = append(errs, err)
	}

	// Reproject before any style swap: the swap snapshots live payloads,
	// so they must already carry the applied year and scenario.
	c.reproject()

	if v.StyleID != "" && v.StyleID != c.styleID {
		if err := c.SetStyle(v.StyleID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close tears the view down. No timer may fire after this.
func (c *Controller) Close() {
	c.dog.CancelAll()
	c.sel.Reset()
}

// sync runs a reconcile pass when the backend is up and resolves the
// backstop for every source whose payload made it across.
func (c *Controller) sync() {
	err := c.rec.Sync()
	if errors.Is(err, backend.ErrNotReady) {
		return
	}
	if err != nil {
		c.log.Warn("sync finished with errors", zap.Error(err))
	}
	c.resolveArrived()
}

// resolveArrived stands a watched layer down only once the backend holds
// the exact payload the registry declares. HasSource alone is not enough:
// a source can exist while its push failed and the stale payload is still
// on screen.
func (c *Controller) resolveArrived() {
	for sourceID, layerID := range c.sources {
		if !c.dog.Watching(layerID) {
			continue
		}
		d, ok := c.reg.Get(layerID)
		if !ok {
			continue
		}
		if fc, ok := c.b.GetData(sourceID); ok && fc == d.Data {
			c.dog.Resolve(layerID)
		}
	}
}

// refreshLayer is the backstop callback: re-derive and re-push a layer
// whose payload is overdue. The fresh collection pointer forces a data
// replace, which resolves the watchdog on success.
func (c *Controller) refreshLayer(layerID string) {
	id := datasetIDFor(layerID)
	col, ok := c.cols[id]
	if !ok {
		return
	}
	if err := c.reg.SetData(layerID, dataset.Derive(col, c.year, c.scen)); err != nil {
		c.log.Warn("backstop refresh failed", zap.String("layer", layerID), zap.Error(err))
		return
	}
	c.sync()
}

// handleClick routes a click to its selection group. A click that hit no
// selectable layer clears every group's highlight but leaves panels open.
func (c *Controller) handleClick(ev backend.PointerEvent) {
	if ev.LayerID != "" {
		if d, ok := c.reg.Get(ev.LayerID); ok && d.Selectable {
			c.sel.HandleClick(d.Group, ev)
			return
		}
	}
	for _, d := range c.reg.List() {
		if d.Selectable {
			c.sel.HandleClick(d.Group, backend.PointerEvent{LngLat: ev.LngLat})
		}
	}
}

func layerIDFor(datasetID string) string  { return datasetID + "-layer" }
func sourceIDFor(datasetID string) string { return datasetID + "-src" }

func datasetIDFor(layerID string) string {
	const suffix = "-layer"
	if len(layerID) > len(suffix) && layerID[len(layerID)-len(suffix):] == suffix {
		return layerID[:len(layerID)-len(suffix)]
	}
	return layerID
}
