package ingest

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// ShapeGeom converts a shapefile shape to a go-geom geometry with SRID
// 4326. Returns nil for unsupported or empty shapes.
func ShapeGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

// EncodeEWKB converts a shapefile shape to EWKB bytes for database
// storage. Returns nil, nil for unsupported or nil shapes.
func EncodeEWKB(shape shp.Shape) ([]byte, error) {
	g := ShapeGeom(shape)
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode EWKB")
	}
	return data, nil
}

// GeomOrb converts a go-geom geometry to its orb counterpart for GeoJSON
// emission. Returns nil for unsupported types.
func GeomOrb(g geom.T) orb.Geometry {
	switch t := g.(type) {
	case *geom.Point:
		c := t.Coords()
		return orb.Point{c[0], c[1]}
	case *geom.MultiLineString:
		mls := make(orb.MultiLineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			line := make(orb.LineString, 0, ls.NumCoords())
			for j := 0; j < ls.NumCoords(); j++ {
				c := ls.Coord(j)
				line = append(line, orb.Point{c[0], c[1]})
			}
			mls = append(mls, line)
		}
		return mls
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			poly := t.Polygon(i)
			rings := make(orb.Polygon, 0, poly.NumLinearRings())
			for j := 0; j < poly.NumLinearRings(); j++ {
				lr := poly.LinearRing(j)
				ring := make(orb.Ring, 0, lr.NumCoords())
				for k := 0; k < lr.NumCoords(); k++ {
					c := lr.Coord(k)
					ring = append(ring, orb.Point{c[0], c[1]})
				}
				rings = append(rings, ring)
			}
			mp = append(mp, rings)
		}
		return mp
	default:
		return nil
	}
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)

	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		var end int32
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		} else {
			end = int32(len(pl.Points))
		}

		ls := geom.NewLineStringFlat(geom.XY, flatCoords(pl.Points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("ingest: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(p.Points[start:end]))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}

		if err := mp.Push(poly); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func flatCoords(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
