package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/projection"
)

type datasetSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LayerType string `json:"layer_type"`
	Group     string `json:"group,omitempty"`
	Primary   string `json:"primary_metric,omitempty"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, _ *http.Request) {
	out := make([]datasetSummary, 0, len(dataset.Catalog))
	for _, m := range dataset.Catalog {
		out = append(out, datasetSummary{
			ID:        m.ID,
			Name:      m.Name,
			LayerType: m.LayerType,
			Group:     m.Group,
			Primary:   m.Primary,
		})
	}
	s.writeData(w, http.StatusOK, out)
}

// temporalParams extracts year and scenario, tolerating absent values.
func temporalParams(r *http.Request) (int, projection.Scenario, error) {
	q := r.URL.Query()

	year := projection.DefaultYear
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, "", errBadParam("year", raw)
		}
		year = parsed
	}

	scen := projection.ParseScenario(q.Get("scenario"))
	return year, scen, nil
}

func boundsParams(r *http.Request) (dataset.Bounds, error) {
	q := r.URL.Query()
	var b dataset.Bounds
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"north", &b.North},
		{"south", &b.South},
		{"east", &b.East},
		{"west", &b.West},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return dataset.Bounds{}, errBadParam(p.name, raw)
		}
		*p.dst = v
	}
	return b, nil
}

type paramError struct{ name, value string }

func (e paramError) Error() string { return "invalid " + e.name + ": " + e.value }

func errBadParam(name, value string) error { return paramError{name, value} }

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	year, scen, err := temporalParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := boundsParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	col, err := s.datasets.Load(r.Context(), id, b)
	if err != nil {
		s.log.Warn("dataset load failed", zap.String("dataset", id), zap.Error(err))
		s.writeError(w, http.StatusNotFound, "unknown dataset: "+id)
		return
	}

	s.writeData(w, http.StatusOK, dataset.Derive(col, year, scen))
}

// printer renders tooltip numbers with grouping separators.
var printer = message.NewPrinter(language.AmericanEnglish)

type tooltipMetric struct {
	Property string  `json:"property"`
	Value    float64 `json:"value"`
	Display  string  `json:"display"`
	Class    string  `json:"class"`
	Color    string  `json:"color"`
}

type tooltipResponse struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Dataset  string              `json:"dataset"`
	Year     int                 `json:"year"`
	Scenario projection.Scenario `json:"scenario"`
	Metrics  []tooltipMetric     `json:"metrics"`
}

func (s *Server) handleTooltip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entityID := chi.URLParam(r, "entityID")

	year, scen, err := temporalParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	col, err := s.datasets.Load(r.Context(), id, dataset.Bounds{})
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown dataset: "+id)
		return
	}
	ent, ok := col.Entity(entityID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown entity: "+entityID)
		return
	}

	resp := tooltipResponse{
		ID:       ent.ID,
		Name:     ent.Name,
		Dataset:  id,
		Year:     year,
		Scenario: scen,
		Metrics:  []tooltipMetric{},
	}
	for _, spec := range col.Meta.Metrics {
		m := ent.Metrics[spec.Property]
		cls := m.ClassAt(scen, year)
		tm := tooltipMetric{
			Property: spec.Property,
			Class:    cls.Label,
			Color:    cls.Color,
		}
		if v, ok := m.ValueAt(scen, year); ok {
			tm.Value = v
			tm.Display = formatMetric(spec.Kind, v)
		} else {
			tm.Display = "no data"
		}
		resp.Metrics = append(resp.Metrics, tm)
	}

	s.writeData(w, http.StatusOK, resp)
}

func formatMetric(kind dataset.MetricKind, v float64) string {
	switch kind {
	case dataset.MetricDepletion, dataset.MetricFlow:
		return printer.Sprintf("%.0f%% of baseline", v)
	case dataset.MetricGrowthRate:
		return printer.Sprintf("%+.1f%% per decade", v*100)
	case dataset.MetricDangerScore:
		return printer.Sprintf("danger index %.1f", v)
	default:
		return printer.Sprintf("%.1f", v)
	}
}
