package dataset

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

//go:embed data/*.geojson
var bundled embed.FS

// MetricSpec binds one property of a dataset's features to a metric kind
// and its classification ruleset.
type MetricSpec struct {
	Property  string
	Kind      MetricKind
	RulesetID string
}

// Meta describes one dataset: where it renders, whether it participates
// in selection, and which properties carry projection bundles.
type Meta struct {
	ID        string
	Name      string
	LayerType string // fill, line, circle
	Group     string // selection group; empty means not selectable
	Metrics   []MetricSpec
	// Primary names the metric driving the dataset's color encoding.
	Primary string
}

// Catalog lists every bundled dataset.
var Catalog = []Meta{
	{
		ID: "aquifers", Name: "Aquifers", LayerType: "fill", Group: "aquifers",
		Metrics: []MetricSpec{{Property: "depletion", Kind: MetricDepletion, RulesetID: "aquifer-depletion"}},
		Primary: "depletion",
	},
	{
		ID: "rivers", Name: "Rivers & Canals", LayerType: "line",
		Metrics: []MetricSpec{{Property: "flow", Kind: MetricFlow, RulesetID: "river-flow"}},
		Primary: "flow",
	},
	{
		ID: "dams", Name: "Dams & Reservoirs", LayerType: "circle", Group: "dams",
		Metrics: []MetricSpec{{Property: "flow", Kind: MetricFlow, RulesetID: "river-flow"}},
		Primary: "flow",
	},
	{
		ID: "factories", Name: "Factories", LayerType: "circle", Group: "factories",
	},
	{
		ID: "datacenters", Name: "Data Centers", LayerType: "circle", Group: "datacenters",
	},
	{
		ID: "metros", Name: "Metro Projections", LayerType: "circle", Group: "metros",
		Metrics: []MetricSpec{
			{Property: "growth", Kind: MetricGrowthRate, RulesetID: "metro-growth"},
			{Property: "humidity", Kind: MetricDangerScore, RulesetID: "metro-humidity"},
		},
		Primary: "growth",
	},
}

// MetaByID returns the catalog entry for a dataset.
func MetaByID(id string) (Meta, bool) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Meta{}, false
}

// Entity is one loaded feature with its parsed projection bundles.
// Entities are immutable; year or scenario changes derive new feature
// objects rather than mutating these.
type Entity struct {
	ID      string
	Name    string
	Feature *geojson.Feature
	Metrics map[string]Metric
}

// Collection is a fully-parsed dataset.
type Collection struct {
	Meta     Meta
	FC       *geojson.FeatureCollection
	Entities []Entity
}

// Entity returns the entity with the given ID.
func (c *Collection) Entity(id string) (Entity, bool) {
	for _, e := range c.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// ParseCollection decodes a feature collection against a dataset's meta.
// Features with malformed or missing projection properties still load;
// their metrics simply classify as unknown later.
func ParseCollection(meta Meta, fc *geojson.FeatureCollection) *Collection {
	c := &Collection{Meta: meta, FC: fc, Entities: make([]Entity, 0, len(fc.Features))}
	for i, f := range fc.Features {
		e := Entity{
			ID:      featureID(f, i),
			Feature: f,
			Metrics: make(map[string]Metric, len(meta.Metrics)),
		}
		if name, ok := f.Properties["name"].(string); ok {
			e.Name = name
		}
		for _, spec := range meta.Metrics {
			m := Metric{Kind: spec.Kind, RulesetID: spec.RulesetID}
			raw, present := f.Properties[spec.Property]
			if present {
				if spec.Kind == MetricDangerScore {
					m.Records = parseScenarioRecords(raw)
				} else {
					m.Series = parseScenarioSeries(raw)
				}
			}
			e.Metrics[spec.Property] = m
		}
		c.Entities = append(c.Entities, e)
	}
	return c
}

// featureID prefers the feature's own ID, then an "id" property, then the
// positional index as a last resort.
func featureID(f *geojson.Feature, idx int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return fmt.Sprintf("%.0f", id)
	case int:
		return fmt.Sprintf("%d", id)
	}
	if s, ok := f.Properties["id"].(string); ok && s != "" {
		return s
	}
	return fmt.Sprintf("%d", idx)
}

var (
	bundledOnce sync.Once
	bundledCols map[string]*Collection
	bundledErr  error
)

// LoadBundled parses every bundled dataset, fanning the decode out across
// a worker per dataset. The result is cached for the process lifetime;
// bundled data never changes underneath a running binary.
func LoadBundled(ctx context.Context) (map[string]*Collection, error) {
	bundledOnce.Do(func() {
		cols := make(map[string]*Collection, len(Catalog))
		var mu sync.Mutex
		g, _ := errgroup.WithContext(ctx)
		for _, meta := range Catalog {
			meta := meta
			g.Go(func() error {
				fc, err := readBundled(meta.ID)
				if err != nil {
					return err
				}
				col := ParseCollection(meta, fc)
				mu.Lock()
				cols[meta.ID] = col
				mu.Unlock()
				return nil
			})
		}
		bundledErr = g.Wait()
		if bundledErr == nil {
			bundledCols = cols
		}
	})
	return bundledCols, bundledErr
}

func readBundled(id string) (*geojson.FeatureCollection, error) {
	data, err := bundled.ReadFile("data/" + id + ".geojson")
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read bundled %s", id)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse bundled %s", id)
	}
	return fc, nil
}
