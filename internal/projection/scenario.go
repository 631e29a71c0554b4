package projection

import "strings"

// Scenario identifies a climate pathway in the target SSP taxonomy.
type Scenario string

// Target scenario taxonomy (CMIP6 shared socioeconomic pathways).
const (
	SSP126 Scenario = "ssp126"
	SSP245 Scenario = "ssp245"
	SSP370 Scenario = "ssp370"
	SSP585 Scenario = "ssp585"
)

// DefaultScenario is used for unmapped or missing scenario keys.
const DefaultScenario = SSP245

// DefaultYear is the starting point of the projection slider. Datasets
// sample whatever years they like; this is only the UI baseline.
const DefaultYear = 2025

// Scenarios lists every target scenario in increasing forcing order.
var Scenarios = []Scenario{SSP126, SSP245, SSP370, SSP585}

// legacyScenarios maps the older RCP naming scheme still present in bundled
// datasets onto the SSP taxonomy. The mapping follows the standard
// CMIP5→CMIP6 pathway correspondence.
var legacyScenarios = map[string]Scenario{
	"rcp26": SSP126,
	"rcp45": SSP245,
	"rcp85": SSP585,
}

// ParseScenario resolves a raw scenario key from either taxonomy. The
// mapping is total: unrecognized or empty keys resolve to DefaultScenario,
// never to an error.
func ParseScenario(raw string) Scenario {
	key := strings.ToLower(strings.TrimSpace(raw))
	switch Scenario(key) {
	case SSP126, SSP245, SSP370, SSP585:
		return Scenario(key)
	}
	if s, ok := legacyScenarios[key]; ok {
		return s
	}
	return DefaultScenario
}

// Valid reports whether s is one of the target scenarios.
func (s Scenario) Valid() bool {
	switch s {
	case SSP126, SSP245, SSP370, SSP585:
		return true
	}
	return false
}
