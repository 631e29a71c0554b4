package backstop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-studio/atlas/internal/resilience"
)

func newWatchdog(t *testing.T) (*Watchdog, *resilience.FakeClock, *[]string) {
	t.Helper()
	clock := resilience.NewFakeClock()
	var refreshed []string
	w := New(DefaultConfig(), clock, func(layerID string) {
		refreshed = append(refreshed, layerID)
	})
	return w, clock, &refreshed
}

func TestFirstTimeoutTriggersRefresh(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("rivers")

	clock.Advance(4 * time.Second)
	assert.Empty(t, *refreshed)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"rivers"}, *refreshed)
	assert.True(t, w.Watching("rivers"), "second stage still armed")
}

func TestSecondTimeoutRefreshesOnceAndStops(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("rivers")

	clock.Advance(5 * time.Second)  // stage 1
	clock.Advance(10 * time.Second) // stage 2
	assert.Equal(t, []string{"rivers", "rivers"}, *refreshed)
	assert.False(t, w.Watching("rivers"))

	// No infinite retry loop: nothing more fires, ever.
	clock.Advance(time.Hour)
	assert.Len(t, *refreshed, 2)
	assert.Equal(t, 0, clock.PendingCount())
}

func TestResolveCancelsChain(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("aquifers")

	clock.Advance(3 * time.Second)
	w.Resolve("aquifers")

	clock.Advance(time.Hour)
	assert.Empty(t, *refreshed, "payload arrived; the watchdog must stay quiet")
	assert.False(t, w.Watching("aquifers"))
}

func TestCancelBetweenStages(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("metros")

	clock.Advance(5 * time.Second)
	require.Len(t, *refreshed, 1)

	w.Cancel("metros")
	clock.Advance(time.Hour)
	assert.Len(t, *refreshed, 1, "deactivated layers get no second refresh")
}

func TestLayersAreIndependent(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("rivers")
	w.Watch("dams")

	w.Cancel("rivers")
	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"dams"}, *refreshed, "canceling one layer must not disturb another")
}

func TestRewatchResetsChain(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("rivers")
	clock.Advance(4 * time.Second)

	// Re-watching (e.g. a new fetch started) restarts the first window.
	w.Watch("rivers")
	clock.Advance(4 * time.Second)
	assert.Empty(t, *refreshed)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"rivers"}, *refreshed)
}

func TestCancelAll(t *testing.T) {
	w, clock, refreshed := newWatchdog(t)
	w.Watch("rivers")
	w.Watch("dams")
	w.Watch("aquifers")

	w.CancelAll()
	clock.Advance(time.Hour)
	assert.Empty(t, *refreshed)
	assert.Equal(t, 0, clock.PendingCount(), "teardown must leave no live timers")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.First)
	assert.Equal(t, 10*time.Second, cfg.Second)
}
