package classify

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/climate-studio/atlas/internal/projection"
)

// Ruleset kinds. The kind states what the threshold values mean so a
// catalog reviewer can tell a percentage rule from an absolute one; the
// evaluation itself only depends on Direction.
const (
	KindPercentOfBaseline = "percent_of_baseline"
	KindAbsolute          = "absolute"
	KindComposite         = "composite"
)

// Threshold directions.
const (
	HigherIsWorse = "higher_is_worse"
	LowerIsWorse  = "lower_is_worse"
)

// Rule is one (threshold, tier, color) tuple. Rules are evaluated
// top-down; the first matching threshold wins.
type Rule struct {
	Threshold float64 `yaml:"threshold"`
	Tier      string  `yaml:"tier"`
	Label     string  `yaml:"label"`
	Color     string  `yaml:"color"`
}

// Ruleset is an ordered, versioned classification table for one dataset.
type Ruleset struct {
	ID        string `yaml:"id"`
	Version   int    `yaml:"version"`
	Kind      string `yaml:"kind"`
	Direction string `yaml:"direction"`
	// Formula names a registered score function; required for composite
	// rulesets, ignored otherwise.
	Formula string `yaml:"formula"`
	Rules   []Rule `yaml:"rules"`
	// Default applies when no rule matches (the benign end of the scale).
	Default Rule `yaml:"default"`
}

// Catalog holds rulesets by ID.
type Catalog struct {
	rulesets map[string]Ruleset
}

type manifest struct {
	Rulesets []Ruleset `yaml:"rulesets"`
}

// ParseCatalog reads a YAML ruleset manifest and validates every ruleset.
func ParseCatalog(data []byte) (*Catalog, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "classify: parse ruleset manifest")
	}
	c := &Catalog{rulesets: make(map[string]Ruleset, len(m.Rulesets))}
	for _, rs := range m.Rulesets {
		if err := rs.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.rulesets[rs.ID]; dup {
			return nil, eris.Errorf("classify: duplicate ruleset %q", rs.ID)
		}
		c.rulesets[rs.ID] = rs
	}
	return c, nil
}

// MustParseCatalog parses a manifest that is compiled into the binary.
func MustParseCatalog(data []byte) *Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Ruleset returns the ruleset with the given ID.
func (c *Catalog) Ruleset(id string) (Ruleset, bool) {
	rs, ok := c.rulesets[id]
	return rs, ok
}

// Classify evaluates value against the named ruleset. Unknown ruleset IDs
// yield the reserved unknown class.
func (c *Catalog) Classify(value float64, rulesetID string) Class {
	rs, ok := c.rulesets[rulesetID]
	if !ok {
		return Unknown
	}
	return rs.classify(value)
}

// ClassifyRecord scores rec with the ruleset's declared formula, then
// classifies the score. Non-composite rulesets and unregistered formulas
// yield the unknown class.
func (c *Catalog) ClassifyRecord(rec projection.Record, rulesetID string) Class {
	rs, ok := c.rulesets[rulesetID]
	if !ok || rs.Kind != KindComposite {
		return Unknown
	}
	score, ok := Score(rs.Formula, rec)
	if !ok {
		return Unknown
	}
	return rs.classify(score)
}

// ScoreRecord evaluates the named ruleset's composite formula against
// rec without classifying. ok is false for unknown or non-composite
// rulesets.
func (c *Catalog) ScoreRecord(rec projection.Record, rulesetID string) (float64, bool) {
	rs, ok := c.rulesets[rulesetID]
	if !ok || rs.Kind != KindComposite {
		return 0, false
	}
	return Score(rs.Formula, rec)
}

func (rs Ruleset) classify(value float64) Class {
	for _, r := range rs.Rules {
		if rs.matches(r, value) {
			return r.class()
		}
	}
	return rs.Default.class()
}

func (rs Ruleset) matches(r Rule, value float64) bool {
	if rs.Direction == LowerIsWorse {
		return value <= r.Threshold
	}
	return value >= r.Threshold
}

func (r Rule) class() Class {
	return Class{Label: r.Label, Tier: parseTier(r.Tier), Color: r.Color}
}

func parseTier(name string) Tier {
	for t, n := range tierNames {
		if n == name {
			return t
		}
	}
	return TierUnknown
}

// validate enforces the ordering invariants: rules run worst-first, with
// strictly tightening thresholds in the ruleset's direction, so that a
// strictly worse input can never classify into a better tier.
func (rs Ruleset) validate() error {
	if rs.ID == "" {
		return eris.New("classify: ruleset missing id")
	}
	switch rs.Kind {
	case KindPercentOfBaseline, KindAbsolute, KindComposite:
	default:
		return eris.Errorf("classify: ruleset %q has unknown kind %q", rs.ID, rs.Kind)
	}
	switch rs.Direction {
	case HigherIsWorse, LowerIsWorse:
	default:
		return eris.Errorf("classify: ruleset %q has unknown direction %q", rs.ID, rs.Direction)
	}
	if rs.Kind == KindComposite {
		if _, ok := scoreFuncs[rs.Formula]; !ok {
			return eris.Errorf("classify: ruleset %q references unregistered formula %q", rs.ID, rs.Formula)
		}
	}
	if len(rs.Rules) == 0 {
		return eris.Errorf("classify: ruleset %q has no rules", rs.ID)
	}

	prevTier := TierExtreme + 1
	for i, r := range rs.Rules {
		tier := parseTier(r.Tier)
		if tier == TierUnknown {
			return eris.Errorf("classify: ruleset %q rule %d has invalid tier %q", rs.ID, i, r.Tier)
		}
		if tier >= prevTier {
			return eris.Errorf("classify: ruleset %q rule %d breaks worst-first tier order", rs.ID, i)
		}
		prevTier = tier

		if i > 0 {
			prev := rs.Rules[i-1].Threshold
			if rs.Direction == HigherIsWorse && r.Threshold >= prev {
				return eris.Errorf("classify: ruleset %q rule %d threshold not descending", rs.ID, i)
			}
			if rs.Direction == LowerIsWorse && r.Threshold <= prev {
				return eris.Errorf("classify: ruleset %q rule %d threshold not ascending", rs.ID, i)
			}
		}
	}
	if defTier := parseTier(rs.Default.Tier); defTier == TierUnknown || defTier >= prevTier {
		return eris.Errorf("classify: ruleset %q default tier must rank below the last rule", rs.ID)
	}
	return nil
}
