package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/climate-studio/atlas/internal/dataset"
	"github.com/climate-studio/atlas/internal/projection"
)

var (
	projectYear     int
	projectScenario string
)

var projectCmd = &cobra.Command{
	Use:   "project <dataset>",
	Short: "Print projected metric values for a bundled dataset",
	Long: `Projects every entity in a bundled dataset to the requested year and
scenario and prints the interpolated values with their tier labels.
Useful for sanity-checking bundled data before serving it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		meta, ok := dataset.MetaByID(id)
		if !ok {
			return eris.Errorf("unknown dataset %q", id)
		}

		bundled, err := dataset.LoadBundled(cmd.Context())
		if err != nil {
			return err
		}
		col := bundled[id]

		scen := projection.ParseScenario(projectScenario)
		year := projectYear
		if year == 0 {
			year = projection.DefaultYear
		}

		fmt.Printf("%s at %d under %s\n\n", meta.Name, year, scen)
		fmt.Printf("%-24s %-12s %10s  %s\n", "Entity", "Metric", "Value", "Tier")
		fmt.Println(strings.Repeat("-", 60))

		entities := make([]dataset.Entity, len(col.Entities))
		copy(entities, col.Entities)
		sort.Slice(entities, func(i, j int) bool { return entities[i].Name < entities[j].Name })

		for _, e := range entities {
			if len(meta.Metrics) == 0 {
				fmt.Printf("%-24s %-12s %10s  %s\n", e.Name, "-", "-", "static")
				continue
			}
			for _, spec := range meta.Metrics {
				m, ok := e.Metrics[spec.Property]
				if !ok {
					continue
				}
				cls := m.ClassAt(scen, year)
				if v, ok := m.ValueAt(scen, year); ok {
					fmt.Printf("%-24s %-12s %10.2f  %s\n", e.Name, spec.Property, v, cls.Label)
				} else {
					fmt.Printf("%-24s %-12s %10s  %s\n", e.Name, spec.Property, "-", cls.Label)
				}
			}
		}

		return nil
	},
}

func init() {
	projectCmd.Flags().IntVar(&projectYear, "year", 0, "projection year (default: 2025)")
	projectCmd.Flags().StringVar(&projectScenario, "scenario", "", "emissions scenario (ssp or legacy rcp key)")
	rootCmd.AddCommand(projectCmd)
}
