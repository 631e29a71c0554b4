// Package ingest converts hydrography shapefiles into the GeoJSON
// feature collections the dataset catalog serves. Geometries pass
// through go-geom so the same conversion feeds both GeoJSON output and
// EWKB rows for database import.
package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options maps shapefile attributes onto feature properties.
type Options struct {
	// IDField names the attribute carrying a stable feature ID.
	IDField string
	// NameField names the attribute carrying a display name; it lands in
	// the "name" property.
	NameField string
	// Fields lists additional attributes to copy through, keyed by their
	// lowercased attribute name.
	Fields []string
}

// Convert reads a shapefile and returns a feature collection. Records
// with unsupported or empty geometry are skipped and counted, not
// fatal; hydrography extracts routinely carry a few degenerate shapes.
func Convert(shpPath string, opts Options) (*geojson.FeatureCollection, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(name string) (string, bool) {
		i, ok := fieldIdx[strings.ToLower(name)]
		if !ok {
			return "", false
		}
		val := strings.TrimRight(reader.Attribute(i), "\x00")
		val = strings.TrimSpace(val)
		return val, val != ""
	}

	fc := geojson.NewFeatureCollection()
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		g := ShapeGeom(shape)
		if g == nil {
			skipped++
			continue
		}
		og := GeomOrb(g)
		if og == nil {
			skipped++
			continue
		}

		f := geojson.NewFeature(og)
		if opts.IDField != "" {
			if id, ok := attr(opts.IDField); ok {
				f.ID = id
			}
		}
		if opts.NameField != "" {
			if name, ok := attr(opts.NameField); ok {
				f.Properties["name"] = name
			}
		}
		for _, fld := range opts.Fields {
			if val, ok := attr(fld); ok {
				f.Properties[strings.ToLower(fld)] = val
			}
		}
		fc.Append(f)
	}

	if skipped > 0 {
		zap.L().Debug("ingest: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return fc, nil
}

// Rows reads a shapefile into COPY-ready rows: one []any per record with
// the requested attribute columns followed by an EWKB geometry column.
func Rows(shpPath string, columns []string) ([][]any, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	var rows [][]any
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]any, 0, len(columns)+1)
		for _, col := range columns {
			i, ok := fieldIdx[strings.ToLower(col)]
			if !ok {
				row = append(row, nil)
				continue
			}
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			val = strings.TrimSpace(val)
			if val == "" {
				row = append(row, nil)
			} else {
				row = append(row, val)
			}
		}

		wkb, encErr := EncodeEWKB(shape)
		if encErr != nil || wkb == nil {
			skipped++
			continue
		}
		row = append(row, wkb)
		rows = append(rows, row)
	}

	if skipped > 0 {
		zap.L().Debug("ingest: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return rows, nil
}
