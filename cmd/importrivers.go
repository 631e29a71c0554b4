package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/climate-studio/atlas/internal/db"
	"github.com/climate-studio/atlas/internal/ingest"
	"github.com/climate-studio/atlas/internal/store"
)

var (
	importOut       string
	importNameField string
	importFields    string
	importToDB      bool
	importTable     string
	importMode      string
)

var importRiversCmd = &cobra.Command{
	Use:   "import-rivers <shapefile>",
	Short: "Convert a hydrography shapefile into a dataset",
	Long: `Reads a hydrography shapefile and writes a GeoJSON feature collection
suitable for bundling as a dataset. With --db, the features are also
loaded into the configured PostGIS schema as EWKB geometries: mode
"upsert" refreshes rows in place so re-running an import is safe, mode
"copy" streams straight through the COPY protocol for a first-time bulk
load into an empty table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shpPath := args[0]
		log := zap.L().With(zap.String("command", "import-rivers"))

		opts := ingest.Options{
			IDField:   cfg.Ingest.IDField,
			NameField: importNameField,
		}
		if importFields != "" {
			opts.Fields = splitAndTrim(importFields)
		}

		fc, err := ingest.Convert(shpPath, opts)
		if err != nil {
			return err
		}

		out := importOut
		if out == "" {
			out = strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".geojson"
		}
		if err := writeGeoJSON(out, fc); err != nil {
			return err
		}

		log.Info("wrote feature collection",
			zap.String("path", out),
			zap.Int("features", len(fc.Features)),
		)

		if !importToDB {
			fmt.Printf("Wrote %d features to %s\n", len(fc.Features), out)
			return nil
		}

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		columns := append([]string{cfg.Ingest.IDField, importNameField}, opts.Fields...)
		rows, err := ingest.Rows(shpPath, columns)
		if err != nil {
			return err
		}

		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			return err
		}
		defer pg.Close()

		dbCols := make([]string, 0, len(columns)+1)
		for _, c := range columns {
			dbCols = append(dbCols, strings.ToLower(c))
		}
		dbCols = append(dbCols, "geom")

		n, err := importRows(ctx, pg.Pool(), importMode, cfg.Ingest.Schema, importTable,
			strings.ToLower(cfg.Ingest.IDField), dbCols, rows)
		if err != nil {
			return err
		}

		log.Info("loaded rows",
			zap.String("table", importTable),
			zap.String("mode", importMode),
			zap.Int64("rows", n),
		)
		fmt.Printf("Wrote %d features to %s, loaded %d rows into %s.%s\n",
			len(fc.Features), out, n, cfg.Ingest.Schema, importTable)
		return nil
	},
}

// importRows loads converted shapefile rows into the schema-qualified
// target table. Upsert keys on the (lowercased) shapefile ID column.
func importRows(ctx context.Context, pool db.Pool, mode, schema, table, idCol string, cols []string, rows [][]any) (int64, error) {
	switch mode {
	case "copy":
		return db.CopyFromSchema(ctx, pool, schema, table, cols, rows)
	case "upsert":
		return db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        fmt.Sprintf("%s.%s", schema, table),
			Columns:      cols,
			ConflictKeys: []string{idCol},
		}, rows)
	default:
		return 0, eris.Errorf("import-rivers: unknown mode %q (want copy or upsert)", mode)
	}
}

// writeGeoJSON marshals a feature collection to path with indentation,
// matching the formatting of the bundled datasets.
func writeGeoJSON(path string, fc any) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "import-rivers: marshal geojson")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "import-rivers: write %s", path)
	}
	return nil
}

// splitAndTrim splits a comma-separated flag value into clean parts.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	importRiversCmd.Flags().StringVar(&importOut, "out", "", "output GeoJSON path (default: alongside the shapefile)")
	importRiversCmd.Flags().StringVar(&importNameField, "name-field", "NAME", "attribute carrying the display name")
	importRiversCmd.Flags().StringVar(&importFields, "fields", "", "comma-separated extra attributes to copy through")
	importRiversCmd.Flags().BoolVar(&importToDB, "db", false, "also upsert features into the configured PostGIS schema")
	importRiversCmd.Flags().StringVar(&importTable, "table", "waterways", "target table name for --db")
	importRiversCmd.Flags().StringVar(&importMode, "mode", "upsert", "load mode for --db: upsert or copy")
	rootCmd.AddCommand(importRiversCmd)
}
