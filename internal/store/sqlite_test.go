package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-studio/atlas/internal/backend"
	"github.com/climate-studio/atlas/internal/projection"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "atlas.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testView() View {
	return View{
		Name:     "Southwest drought 2060",
		Year:     2060,
		Scenario: projection.SSP585,
		StyleID:  "satellite",
		Camera: backend.Camera{
			Center:  orb.Point{-111.6, 34.8},
			Zoom:    5.5,
			Bearing: 0,
			Pitch:   30,
		},
		Layers: []LayerState{
			{LayerID: "aquifers-fill", Visible: true},
			{LayerID: "rivers-line", Visible: true},
			{LayerID: "metros-circle", Visible: false},
		},
		RulesetVersions: map[string]int{"aquifer-depletion": 2, "river-flow": 1},
	}
}

func TestSQLiteSaveAndGetView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveView(ctx, testView())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := s.GetView(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Southwest drought 2060", got.Name)
	assert.Equal(t, 2060, got.Year)
	assert.Equal(t, projection.SSP585, got.Scenario)
	assert.Equal(t, orb.Point{-111.6, 34.8}, got.Camera.Center)
	assert.InDelta(t, 5.5, got.Camera.Zoom, 1e-9)
	require.Len(t, got.Layers, 3)
	assert.False(t, got.Layers[2].Visible)
	assert.Equal(t, 2, got.RulesetVersions["aquifer-depletion"])
}

func TestSQLiteSaveViewAssignsFreshIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.SaveView(ctx, testView())
	require.NoError(t, err)
	b, err := s.SaveView(ctx, testView())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSQLiteUpdateView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveView(ctx, testView())
	require.NoError(t, err)

	saved.Year = 2095
	saved.Scenario = projection.SSP126
	updated, err := s.SaveView(ctx, *saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)

	got, err := s.GetView(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 2095, got.Year)
	assert.Equal(t, projection.SSP126, got.Scenario)
}

func TestSQLiteUpdateMissingView(t *testing.T) {
	s := newTestStore(t)

	v := testView()
	v.ID = "does-not-exist"
	_, err := s.SaveView(context.Background(), v)
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestSQLiteGetMissingView(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetView(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestSQLiteListViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v := testView()
		v.Year = 2025 + i*10
		_, err := s.SaveView(ctx, v)
		require.NoError(t, err)
	}

	views, err := s.ListViews(ctx, ViewFilter{})
	require.NoError(t, err)
	assert.Len(t, views, 3)

	views, err = s.ListViews(ctx, ViewFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestSQLiteDeleteView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveView(ctx, testView())
	require.NoError(t, err)

	require.NoError(t, s.DeleteView(ctx, saved.ID))
	_, err = s.GetView(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrViewNotFound)

	assert.ErrorIs(t, s.DeleteView(ctx, saved.ID), ErrViewNotFound)
}

func TestSQLiteLegacyScenarioRehydrates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := testView()
	v.Scenario = projection.Scenario("rcp85")
	saved, err := s.SaveView(ctx, v)
	require.NoError(t, err)

	got, err := s.GetView(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, projection.SSP585, got.Scenario)
}
