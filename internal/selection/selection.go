// Package selection tracks the selected and hovered feature per logical
// layer group, mirroring the state into backend feature-state for visual
// highlight and into UI state for detail panels.
package selection

import (
	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/backend"
)

// Ref identifies one feature in one layer.
type Ref struct {
	LayerID   string
	SourceID  string
	FeatureID string
}

// groupState is the per-group machine: the visual selection and the panel
// can diverge on purpose. Re-clicking a selected feature clears the
// highlight but leaves the panel open; only an explicit close (or a
// mutually-exclusive group opening) dismisses the panel.
type groupState struct {
	selected *Ref
	panel    *Ref
}

// Manager owns selection and hover state for one view.
type Manager struct {
	b   backend.Backend
	log *zap.Logger

	groups     map[string]*groupState
	exclusions map[string][]string
	hovered    *Ref
}

// NewManager creates a selection manager. exclusions maps a group to the
// groups whose open panels must close when it opens one; each view passes
// its own set.
func NewManager(b backend.Backend, exclusions map[string][]string) *Manager {
	return &Manager{
		b:          b,
		log:        zap.L().With(zap.String("component", "selection")),
		groups:     make(map[string]*groupState),
		exclusions: exclusions,
	}
}

func (m *Manager) group(name string) *groupState {
	g, ok := m.groups[name]
	if !ok {
		g = &groupState{}
		m.groups[name] = g
	}
	return g
}

// HandleClick processes a click attributed to a selection group. An event
// with an empty FeatureID is a click elsewhere on the map: it clears the
// group's visual selection but never touches an open panel.
func (m *Manager) HandleClick(group string, ev backend.PointerEvent) {
	g := m.group(group)

	if ev.FeatureID == "" {
		m.clearSelected(g)
		return
	}

	ref := Ref{LayerID: ev.LayerID, SourceID: ev.SourceID, FeatureID: ev.FeatureID}

	if g.selected != nil && *g.selected == ref {
		// Re-click: clear the highlight, keep the panel. Intentional
		// asymmetry; the panel closes only via ClosePanel.
		m.clearSelected(g)
		return
	}

	m.clearSelected(g)
	if err := m.b.SetFeatureState(ref.SourceID, ref.FeatureID, map[string]any{"selected": true}); err != nil {
		m.log.Warn("set selected feature-state failed",
			zap.String("layer", ref.LayerID),
			zap.Error(err),
		)
	}
	g.selected = &ref
	g.panel = &ref

	// Opening this panel closes panels in mutually-exclusive groups.
	// Their backend feature-state stays: exclusion is a panel concern,
	// not a highlight concern.
	for _, other := range m.exclusions[group] {
		m.group(other).panel = nil
	}
}

// ClosePanel is the explicit close action. It dismisses the panel and any
// remaining highlight for the group.
func (m *Manager) ClosePanel(group string) {
	g := m.group(group)
	m.clearSelected(g)
	g.panel = nil
}

// Selected returns the group's visually-selected feature, if any.
func (m *Manager) Selected(group string) (Ref, bool) {
	g := m.group(group)
	if g.selected == nil {
		return Ref{}, false
	}
	return *g.selected, true
}

// Panel returns the group's open detail panel target, if any.
func (m *Manager) Panel(group string) (Ref, bool) {
	g := m.group(group)
	if g.panel == nil {
		return Ref{}, false
	}
	return *g.panel, true
}

// HandleHoverEnter moves the single hover highlight to the given feature,
// clearing the previous one first. At most one feature is hovered at a
// time.
func (m *Manager) HandleHoverEnter(ev backend.PointerEvent) {
	if ev.FeatureID == "" {
		return
	}
	ref := Ref{LayerID: ev.LayerID, SourceID: ev.SourceID, FeatureID: ev.FeatureID}
	if m.hovered != nil {
		if *m.hovered == ref {
			return
		}
		m.clearHover()
	}
	if err := m.b.SetFeatureState(ref.SourceID, ref.FeatureID, map[string]any{"hover": true}); err != nil {
		m.log.Warn("set hover feature-state failed", zap.Error(err))
	}
	m.hovered = &ref
}

// HandleHoverLeave clears the hover highlight.
func (m *Manager) HandleHoverLeave() {
	m.clearHover()
}

// InvalidateSource drops every selection and hover bound to a source
// whose data was replaced wholesale: feature IDs are not stable across a
// full replace, so selection-by-ID becomes meaningless. Panels keep their
// snapshot of the entity and stay open.
func (m *Manager) InvalidateSource(sourceID string) {
	for _, g := range m.groups {
		if g.selected != nil && g.selected.SourceID == sourceID {
			m.clearSelected(g)
		}
	}
	if m.hovered != nil && m.hovered.SourceID == sourceID {
		m.clearHover()
	}
}

// Reset clears all feature-state and selection across every group, e.g.
// on view teardown.
func (m *Manager) Reset() {
	for _, g := range m.groups {
		m.clearSelected(g)
		g.panel = nil
	}
	m.clearHover()
}

func (m *Manager) clearSelected(g *groupState) {
	if g.selected == nil {
		return
	}
	if err := m.b.RemoveFeatureState(g.selected.SourceID, g.selected.FeatureID, "selected"); err != nil {
		m.log.Warn("clear selected feature-state failed", zap.Error(err))
	}
	g.selected = nil
}

func (m *Manager) clearHover() {
	if m.hovered == nil {
		return
	}
	if err := m.b.RemoveFeatureState(m.hovered.SourceID, m.hovered.FeatureID, "hover"); err != nil {
		m.log.Warn("clear hover feature-state failed", zap.Error(err))
	}
	m.hovered = nil
}
