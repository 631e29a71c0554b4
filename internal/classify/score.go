package classify

import "github.com/climate-studio/atlas/internal/projection"

// ScoreFunc combines two or more interpolated metrics into a single
// composite score. Rulesets declare the formula by name so several
// datasets can share one classifier shape with different arithmetic.
type ScoreFunc func(rec projection.Record) (float64, bool)

// scoreFuncs is the formula registry. Composite rulesets must reference a
// key registered here; ParseCatalog rejects manifests that don't.
var scoreFuncs = map[string]ScoreFunc{
	"wet_bulb_danger":  wetBulbDanger,
	"heat_stress_days": heatStressDays,
}

// Score evaluates the named formula against rec. ok is false for
// unregistered formulas or records missing every input metric.
func Score(formula string, rec projection.Record) (float64, bool) {
	fn, registered := scoreFuncs[formula]
	if !registered || len(rec) == 0 {
		return 0, false
	}
	return fn(rec)
}

// wetBulbDanger weights wet-bulb event counts by how close peak humidity
// runs to the 70% saturation reference used by the metro humidity dataset.
func wetBulbDanger(rec projection.Record) (float64, bool) {
	events, okEvents := rec["wet_bulb_events"]
	humidity, okHumidity := rec["peak_humidity"]
	if !okEvents || !okHumidity {
		return 0, false
	}
	return events * (humidity / 70.0), true
}

// heatStressDays blends days over 100°F with humid-heat amplification.
func heatStressDays(rec projection.Record) (float64, bool) {
	days, okDays := rec["days_over_100f"]
	if !okDays {
		return 0, false
	}
	humidity := rec["peak_humidity"]
	return days * (1 + humidity/200.0), true
}
