package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climate-studio/atlas/internal/projection"
)

func TestClassifyDepletion(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		tier  Tier
	}{
		{"critical at threshold", 85, TierExtreme},
		{"critical above", 99, TierExtreme},
		{"severe", 72, TierVeryHigh},
		{"high", 50, TierHigh},
		{"moderate", 31.5, TierModerate},
		{"stable", 10, TierLow},
		{"negative recharge", -4, TierLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.value, "aquifer-depletion")
			assert.Equal(t, tt.tier, got.Tier)
			assert.NotEmpty(t, got.Label)
			assert.NotEmpty(t, got.Color)
		})
	}
}

func TestClassifyFlowLowerIsWorse(t *testing.T) {
	// River flow is percent-of-baseline with the bad end at zero.
	assert.Equal(t, TierExtreme, Classify(40, "river-flow").Tier)
	assert.Equal(t, TierVeryHigh, Classify(60, "river-flow").Tier)
	assert.Equal(t, TierHigh, Classify(75, "river-flow").Tier)
	assert.Equal(t, TierModerate, Classify(80, "river-flow").Tier)
	assert.Equal(t, TierLow, Classify(97, "river-flow").Tier)
}

func TestClassifyUnknownRuleset(t *testing.T) {
	got := Classify(50, "no-such-ruleset")
	assert.Equal(t, Unknown, got)
	assert.Equal(t, ColorUnknown, got.Color)
}

func TestClassifyRecordComposite(t *testing.T) {
	rec := projection.Record{"wet_bulb_events": 10, "peak_humidity": 84}
	// 10 * (84/70) = 12 → extreme.
	got := ClassifyRecord(rec, "metro-humidity")
	assert.Equal(t, TierExtreme, got.Tier)

	mild := projection.Record{"wet_bulb_events": 1, "peak_humidity": 56}
	assert.Equal(t, TierLow, ClassifyRecord(mild, "metro-humidity").Tier)
}

func TestClassifyRecordMissingMetrics(t *testing.T) {
	assert.Equal(t, Unknown, ClassifyRecord(projection.Record{"peak_humidity": 80}, "metro-humidity"))
	assert.Equal(t, Unknown, ClassifyRecord(nil, "metro-humidity"))
	// Non-composite rulesets cannot score a record.
	assert.Equal(t, Unknown, ClassifyRecord(projection.Record{"x": 1}, "river-flow"))
}

func TestClassifierMonotonicity(t *testing.T) {
	// For every bundled ruleset, a strictly worse input never classifies
	// into a better tier.
	for _, id := range []string{"aquifer-depletion", "river-flow", "wet-bulb-temperature", "metro-humidity", "metro-growth"} {
		rs, ok := Default.Ruleset(id)
		require.True(t, ok, id)

		prev := TierUnknown
		for v := -50.0; v <= 150.0; v += 0.25 {
			value := v
			if rs.Direction == LowerIsWorse {
				value = 100 - v // walk toward the bad end
			}
			tier := Default.Classify(value, id).Tier
			assert.GreaterOrEqual(t, tier, prev, "ruleset %s regressed at %v", id, value)
			prev = tier
		}
	}
}

func TestScoreRegistry(t *testing.T) {
	score, ok := Score("wet_bulb_danger", projection.Record{"wet_bulb_events": 7, "peak_humidity": 70})
	require.True(t, ok)
	assert.InDelta(t, 7.0, score, 1e-9)

	_, ok = Score("not-registered", projection.Record{"x": 1})
	assert.False(t, ok)
}

func TestParseCatalogRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown kind", `
rulesets:
  - id: bad
    kind: vibes
    direction: higher_is_worse
    rules: [{threshold: 1, tier: high, label: x, color: "#fff"}]
    default: {tier: low, label: y, color: "#000"}
`},
		{"tier order broken", `
rulesets:
  - id: bad
    kind: absolute
    direction: higher_is_worse
    rules:
      - {threshold: 10, tier: moderate, label: x, color: "#fff"}
      - {threshold: 5, tier: extreme, label: y, color: "#fff"}
    default: {tier: low, label: z, color: "#000"}
`},
		{"threshold not descending", `
rulesets:
  - id: bad
    kind: absolute
    direction: higher_is_worse
    rules:
      - {threshold: 10, tier: extreme, label: x, color: "#fff"}
      - {threshold: 20, tier: high, label: y, color: "#fff"}
    default: {tier: low, label: z, color: "#000"}
`},
		{"unregistered formula", `
rulesets:
  - id: bad
    kind: composite
    direction: higher_is_worse
    formula: nope
    rules: [{threshold: 1, tier: high, label: x, color: "#fff"}]
    default: {tier: low, label: y, color: "#000"}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "extreme", TierExtreme.String())
	assert.Equal(t, "unknown", TierUnknown.String())
	assert.Equal(t, "unknown", Tier(99).String())
}
