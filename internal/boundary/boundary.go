// Package boundary loads clip geometries and aligns them with a raster CRS.
package boundary

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// ErrNoPolygons is returned when the clip file holds no polygon geometry.
var ErrNoPolygons = eris.New("boundary: no polygon geometries in clip file")

// Boundary is a set of clip polygons in a known CRS. Ring membership is
// interpreted even-odd, so holes are simply additional rings.
type Boundary struct {
	Polygons []*geom.Polygon
	EPSG     int
}

// Load reads polygon geometries from a GeoJSON or shapefile clip boundary.
func Load(path string) (*Boundary, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return loadGeoJSON(path)
	case ".shp":
		return loadShapefile(path)
	default:
		return nil, eris.Errorf("boundary: unsupported clip format %q", filepath.Ext(path))
	}
}

func loadGeoJSON(path string) (*Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(err, "boundary: parse %s", path)
	}

	var geoms []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrapf(err, "boundary: parse feature collection %s", path)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "boundary: parse feature %s", path)
		}
		geoms = append(geoms, f.Geometry)
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrapf(err, "boundary: parse geometry %s", path)
		}
		geoms = append(geoms, g)
	}

	b := &Boundary{EPSG: 4326} // RFC 7946: GeoJSON is always WGS 84
	for _, g := range geoms {
		b.Polygons = append(b.Polygons, flattenPolygons(g)...)
	}
	if len(b.Polygons) == 0 {
		return nil, eris.Wrapf(ErrNoPolygons, "boundary: %s", path)
	}
	return b, nil
}

// flattenPolygons extracts polygons from any geometry, descending into
// multi-polygons and collections; other geometry types are skipped.
func flattenPolygons(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
		return polys
	case *geom.GeometryCollection:
		var polys []*geom.Polygon
		for _, sub := range t.Geoms() {
			polys = append(polys, flattenPolygons(sub)...)
		}
		return polys
	default:
		return nil
	}
}

func loadShapefile(path string) (*Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	b := &Boundary{EPSG: sniffPrjEPSG(path)}

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			continue
		}

		// All ring parts go into one polygon; membership is even-odd, so
		// shapefile hole rings behave as holes without orientation checks.
		out := geom.NewPolygon(geom.XY)
		for i := int32(0); i < poly.NumParts; i++ {
			start := poly.Parts[i]
			end := int32(len(poly.Points))
			if i+1 < poly.NumParts {
				end = poly.Parts[i+1]
			}
			flat := make([]float64, 0, (end-start)*2)
			for j := start; j < end; j++ {
				flat = append(flat, poly.Points[j].X, poly.Points[j].Y)
			}
			if err := out.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			}
		}
		if out.NumLinearRings() > 0 {
			b.Polygons = append(b.Polygons, out)
		}
	}

	if len(b.Polygons) == 0 {
		return nil, eris.Wrapf(ErrNoPolygons, "boundary: %s", path)
	}
	return b, nil
}

// Bounds returns the envelope of all polygons.
func (b *Boundary) Bounds() (minX, minY, maxX, maxY float64) {
	first := true
	for _, p := range b.Polygons {
		bounds := p.Bounds()
		if first {
			minX, minY = bounds.Min(0), bounds.Min(1)
			maxX, maxY = bounds.Max(0), bounds.Max(1)
			first = false
			continue
		}
		minX = min(minX, bounds.Min(0))
		minY = min(minY, bounds.Min(1))
		maxX = max(maxX, bounds.Max(0))
		maxY = max(maxY, bounds.Max(1))
	}
	return minX, minY, maxX, maxY
}

// Contains reports whether (x, y) lies inside the boundary, holes
// excluded, using even-odd ray casting across every ring.
func (b *Boundary) Contains(x, y float64) bool {
	for _, p := range b.Polygons {
		bounds := p.Bounds()
		if x < bounds.Min(0) || x > bounds.Max(0) || y < bounds.Min(1) || y > bounds.Max(1) {
			continue
		}
		crossings := 0
		for i := 0; i < p.NumLinearRings(); i++ {
			crossings += rayCrossings(x, y, p.LinearRing(i).FlatCoords())
		}
		if crossings%2 == 1 {
			return true
		}
	}
	return false
}

// rayCrossings counts crossings of a rightward ray from (x, y) with the
// ring's edges. flat is an XY-interleaved coordinate slice.
func rayCrossings(x, y float64, flat []float64) int {
	n := len(flat) / 2
	if n < 3 {
		return 0
	}
	crossings := 0
	for i := 0; i < n; i++ {
		x1, y1 := flat[2*i], flat[2*i+1]
		j := (i + 1) % n
		x2, y2 := flat[2*j], flat[2*j+1]
		if (y1 > y) == (y2 > y) {
			continue
		}
		if x < x1+(y-y1)/(y2-y1)*(x2-x1) {
			crossings++
		}
	}
	return crossings
}
