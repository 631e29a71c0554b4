// Package backstop watches layers whose payloads arrive asynchronously
// and forces a bounded number of re-fetches when data fails to show up.
package backstop

import (
	"time"

	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/resilience"
)

// Config holds the two watchdog timeouts. The first fires a refresh when
// the payload has not arrived; the second fires exactly one more refresh
// and then the watchdog stops for good. There is no third stage: a layer
// that cannot load after two nudges stays empty until the user acts.
type Config struct {
	First  time.Duration
	Second time.Duration
}

// DefaultConfig matches the dashboard's tile-stall behavior.
func DefaultConfig() Config {
	return Config{First: 5 * time.Second, Second: 10 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.First <= 0 {
		c.First = 5 * time.Second
	}
	if c.Second <= 0 {
		c.Second = 10 * time.Second
	}
	return c
}

// Watchdog tracks one timer chain per layer. Each layer's backstop is
// independent; canceling one never disturbs another.
type Watchdog struct {
	cfg     Config
	clock   resilience.Clock
	refresh func(layerID string)
	log     *zap.Logger

	entries map[string]*entry
}

type entry struct {
	timer resilience.Timer
	stage int
}

// New creates a watchdog that calls refresh when a watched layer's data
// is overdue. A nil clock means real time.
func New(cfg Config, clock resilience.Clock, refresh func(layerID string)) *Watchdog {
	if clock == nil {
		clock = resilience.SystemClock
	}
	return &Watchdog{
		cfg:     cfg.withDefaults(),
		clock:   clock,
		refresh: refresh,
		log:     zap.L().With(zap.String("component", "backstop")),
		entries: make(map[string]*entry),
	}
}

// Watch starts (or restarts) the backstop for a layer whose payload is
// still pending. Watching an already-watched layer resets its chain.
func (w *Watchdog) Watch(layerID string) {
	w.Cancel(layerID)
	e := &entry{stage: 1}
	w.entries[layerID] = e
	e.timer = w.clock.AfterFunc(w.cfg.First, func() { w.fire(layerID, e) })
}

func (w *Watchdog) fire(layerID string, e *entry) {
	if w.entries[layerID] != e {
		return // canceled or superseded
	}
	w.log.Warn("layer data overdue, forcing refresh",
		zap.String("layer", layerID),
		zap.Int("stage", e.stage),
	)
	w.refresh(layerID)

	if e.stage >= 2 {
		// Final nudge delivered; stop rather than loop forever.
		delete(w.entries, layerID)
		return
	}
	e.stage = 2
	e.timer = w.clock.AfterFunc(w.cfg.Second, func() { w.fire(layerID, e) })
}

// Resolve reports that a layer's payload arrived; its backstop is cleared.
func (w *Watchdog) Resolve(layerID string) {
	w.Cancel(layerID)
}

// Cancel stops a layer's backstop, e.g. when the layer is deactivated.
// Canceling an unwatched layer is a no-op.
func (w *Watchdog) Cancel(layerID string) {
	e, ok := w.entries[layerID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(w.entries, layerID)
}

// CancelAll stops every backstop; used on view teardown so no timer ever
// fires against a torn-down backend.
func (w *Watchdog) CancelAll() {
	for id := range w.entries {
		w.Cancel(id)
	}
}

// Watching reports whether a layer currently has a live backstop.
func (w *Watchdog) Watching(layerID string) bool {
	_, ok := w.entries[layerID]
	return ok
}
