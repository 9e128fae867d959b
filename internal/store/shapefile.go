package store

import (
	"encoding/json"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ShapefileToGeoJSON converts every shape of an ESRI shapefile, with its
// attributes as properties, into a GeoJSON FeatureCollection.
func ShapefileToGeoJSON(path string) ([]byte, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open shapefile")
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	fc := geojson.FeatureCollection{}
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}
		props := make(map[string]interface{}, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(reader.Attribute(i))
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}
	if skipped > 0 {
		zap.L().Debug("store: skipped unsupported shapefile shapes", zap.Int("skipped", skipped))
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode shapefile as GeoJSON")
	}
	return data, nil
}

// shapeToGeom converts a go-shp shape to a go-geom geometry. Unsupported or
// empty shapes yield nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	}
	return nil
}

// partBounds returns the point range of part i.
func partBounds(parts []int32, numPoints int, i int32) (int32, int32) {
	start := parts[i]
	end := int32(numPoints)
	if int(i)+1 < len(parts) {
		end = parts[i+1]
	}
	return start, end
}

func flatPoints(points []shp.Point, start, end int32) []float64 {
	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY)
	for i := int32(0); i < pl.NumParts && int(i) < len(pl.Parts); i++ {
		start, end := partBounds(pl.Parts, len(pl.Points), i)
		if end-start < 2 {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(pl.Points, start, end))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("store: skipping malformed lane part", zap.Int32("part", i), zap.Error(err))
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
	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts && int(i) < len(p.Parts); i++ {
		start, end := partBounds(p.Parts, len(p.Points), i)
		if end-start < 4 {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatPoints(p.Points, start, end))); err != nil {
			zap.L().Debug("store: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("store: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
