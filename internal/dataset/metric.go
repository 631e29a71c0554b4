// Package dataset loads the bundled and remote geographic datasets and
// exposes their projection bundles as typed metrics.
package dataset

import (
	"encoding/json"
	"strconv"

	"github.com/climate-studio/atlas/internal/classify"
	"github.com/climate-studio/atlas/internal/projection"
)

// MetricKind is the closed set of projection metric shapes. The
// classifier dispatches on this instead of sniffing property bags.
type MetricKind int

const (
	// MetricDepletion is percent-of-baseline depletion (aquifers).
	MetricDepletion MetricKind = iota
	// MetricFlow is percent-of-baseline flow (rivers, dams).
	MetricFlow
	// MetricDangerScore is a composite of several humid-heat metrics
	// (metro humidity projections).
	MetricDangerScore
	// MetricGrowthRate is a decadal population growth rate (metros).
	MetricGrowthRate
)

func (k MetricKind) String() string {
	switch k {
	case MetricDepletion:
		return "depletion"
	case MetricFlow:
		return "flow"
	case MetricDangerScore:
		return "danger_score"
	case MetricGrowthRate:
		return "growth_rate"
	default:
		return "unknown"
	}
}

// Metric bundles the parallel per-scenario series for one metric of one
// entity. Scalar kinds use Series; MetricDangerScore carries multi-field
// Records.
type Metric struct {
	Kind      MetricKind
	RulesetID string
	Series    map[projection.Scenario]projection.Series
	Records   map[projection.Scenario]projection.RecordSeries
}

// seriesFor picks the scenario's series, falling back to the default
// scenario when the requested one is absent from the bundle.
func (m Metric) seriesFor(s projection.Scenario) (projection.Series, bool) {
	if ser, ok := m.Series[s]; ok {
		return ser, true
	}
	ser, ok := m.Series[projection.DefaultScenario]
	return ser, ok
}

func (m Metric) recordsFor(s projection.Scenario) (projection.RecordSeries, bool) {
	if rs, ok := m.Records[s]; ok {
		return rs, true
	}
	rs, ok := m.Records[projection.DefaultScenario]
	return rs, ok
}

// ValueAt interpolates the metric for a scenario and year. For composite
// kinds the returned value is the scored composite. ok is false when the
// entity carries no usable series for any applicable scenario.
func (m Metric) ValueAt(s projection.Scenario, year int) (float64, bool) {
	if m.Kind == MetricDangerScore {
		rs, ok := m.recordsFor(s)
		if !ok {
			return 0, false
		}
		rec, ok := projection.InterpolateRecord(rs, year)
		if !ok {
			return 0, false
		}
		return classify.Default.ScoreRecord(rec, m.RulesetID)
	}

	ser, ok := m.seriesFor(s)
	if !ok {
		return 0, false
	}
	return projection.Interpolate(ser, year)
}

// RecordAt interpolates the full multi-field record for composite
// metrics; ok is false for scalar kinds.
func (m Metric) RecordAt(s projection.Scenario, year int) (projection.Record, bool) {
	rs, ok := m.recordsFor(s)
	if !ok {
		return nil, false
	}
	return projection.InterpolateRecord(rs, year)
}

// ClassAt classifies the metric for a scenario and year. Missing or
// malformed series resolve to the reserved unknown class.
func (m Metric) ClassAt(s projection.Scenario, year int) classify.Class {
	if m.Kind == MetricDangerScore {
		rec, ok := m.RecordAt(s, year)
		if !ok {
			return classify.Unknown
		}
		return classify.ClassifyRecord(rec, m.RulesetID)
	}

	v, ok := m.ValueAt(s, year)
	if !ok {
		return classify.Unknown
	}
	return classify.Classify(v, m.RulesetID)
}

// parseScenarioSeries decodes a property of the shape
// {"rcp45": {"2025": 88, ...}, ...} into per-scenario series, resolving
// legacy scenario keys onto the target taxonomy as it goes.
func parseScenarioSeries(raw any) map[projection.Scenario]projection.Series {
	byScenario, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[projection.Scenario]projection.Series, len(byScenario))
	for key, val := range byScenario {
		years, ok := val.(map[string]any)
		if !ok {
			continue
		}
		ser := make(projection.Series, len(years))
		for ys, vv := range years {
			year, err := strconv.Atoi(ys)
			if err != nil {
				continue
			}
			if f, ok := toFloat(vv); ok {
				ser[year] = f
			}
		}
		if len(ser) > 0 {
			out[projection.ParseScenario(key)] = ser
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseScenarioRecords decodes {"ssp245": {"2025": {"peak_humidity": 60,
// ...}, ...}, ...} into per-scenario record series.
func parseScenarioRecords(raw any) map[projection.Scenario]projection.RecordSeries {
	byScenario, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[projection.Scenario]projection.RecordSeries, len(byScenario))
	for key, val := range byScenario {
		years, ok := val.(map[string]any)
		if !ok {
			continue
		}
		rs := make(projection.RecordSeries, len(years))
		for ys, vv := range years {
			year, err := strconv.Atoi(ys)
			if err != nil {
				continue
			}
			fields, ok := vv.(map[string]any)
			if !ok {
				continue
			}
			rec := make(projection.Record, len(fields))
			for name, fv := range fields {
				if f, ok := toFloat(fv); ok {
					rec[name] = f
				}
			}
			if len(rec) > 0 {
				rs[year] = rec
			}
		}
		if len(rs) > 0 {
			out[projection.ParseScenario(key)] = rs
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
