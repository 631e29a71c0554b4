// Package classify maps interpolated metric values onto ordered severity
// tiers and deterministic color tokens using versioned per-dataset rulesets.
package classify

import (
	_ "embed"

	"github.com/climate-studio/atlas/internal/projection"
)

// Tier is an ordered severity bucket. Higher values are worse. TierUnknown
// is reserved for missing or malformed inputs and never ranks above a real
// classification.
type Tier int

const (
	TierUnknown Tier = iota
	TierLow
	TierModerate
	TierHigh
	TierVeryHigh
	TierExtreme
)

var tierNames = map[Tier]string{
	TierUnknown:  "unknown",
	TierLow:      "low",
	TierModerate: "moderate",
	TierHigh:     "high",
	TierVeryHigh: "very_high",
	TierExtreme:  "extreme",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// ColorUnknown is the reserved color token for the unknown tier.
const ColorUnknown = "#9ca3af"

// Class is the result of classifying one metric value.
type Class struct {
	Label string `json:"label"`
	Tier  Tier   `json:"tier"`
	Color string `json:"color"`
}

// Unknown is the classification for missing or malformed inputs.
var Unknown = Class{Label: "No data", Tier: TierUnknown, Color: ColorUnknown}

//go:embed rulesets.yaml
var embeddedRulesets []byte

// Default is the catalog of bundled rulesets.
var Default = MustParseCatalog(embeddedRulesets)

// Classify evaluates value against the named ruleset in the default
// catalog. Unknown rulesets yield the reserved unknown class, never an
// error: a dataset with a bad ruleset reference renders gray, not a crash.
func Classify(value float64, rulesetID string) Class {
	return Default.Classify(value, rulesetID)
}

// ClassifyRecord scores a multi-metric record with the ruleset's declared
// formula and classifies the result. Only composite rulesets carry a
// formula; for any other kind the record cannot be scored and the unknown
// class is returned.
func ClassifyRecord(rec projection.Record, rulesetID string) Class {
	return Default.ClassifyRecord(rec, rulesetID)
}
