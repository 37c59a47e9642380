package raster

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Simplify runs Douglas-Peucker over every ring of every feature with the
// given tolerance in CRS units. Rings that would collapse below four
// coordinates are kept as-is, so output geometries stay valid.
func Simplify(feats []Feature, tolerance float64) []Feature {
	if tolerance <= 0 {
		return feats
	}
	before, after := 0, 0
	out := make([]Feature, 0, len(feats))
	for _, f := range feats {
		poly := geom.NewPolygon(geom.XY)
		for i := 0; i < f.Polygon.NumLinearRings(); i++ {
			ring := f.Polygon.LinearRing(i)
			coords := ring.Coords()
			before += len(coords)
			simplified := simplifyRing(coords, tolerance)
			after += len(simplified)
			_ = poly.Push(geom.NewLinearRing(geom.XY).MustSetCoords(simplified))
		}
		out = append(out, Feature{Polygon: poly, Value: f.Value})
	}
	zap.L().Debug("geometries simplified",
		zap.String("component", "raster"),
		zap.Float64("tolerance", tolerance),
		zap.Int("vertices_before", before),
		zap.Int("vertices_after", after),
	)
	return out
}

// simplifyRing applies Douglas-Peucker to a closed ring. The closing
// coordinate is pinned along with the first. The original ring is returned
// when simplification would leave fewer than four coordinates, or when a
// shortcut edge crosses another edge of the ring: dropping a vertex can
// fold the ring onto itself when a far part of the boundary passes through
// the tolerance band.
func simplifyRing(coords []geom.Coord, tolerance float64) []geom.Coord {
	if len(coords) < 5 {
		return coords
	}
	keep := make([]bool, len(coords))
	keep[0] = true
	keep[len(coords)-1] = true
	douglasPeucker(coords, 0, len(coords)-1, tolerance, keep)

	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	if n < 4 {
		return coords
	}
	out := make([]geom.Coord, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, coords[i])
		}
	}
	if ringSelfIntersects(out) {
		return coords
	}
	return out
}

// ringSelfIntersects reports whether any two non-adjacent edges of a
// closed ring intersect. Vectorized rings are simple, so any contact
// between non-adjacent edges, endpoint touches included, is a fold.
func ringSelfIntersects(coords []geom.Coord) bool {
	edges := len(coords) - 1
	for i := 0; i < edges; i++ {
		for j := i + 2; j < edges; j++ {
			if i == 0 && j == edges-1 {
				continue // adjacent through the closing coordinate
			}
			if segmentsTouch(coords[i], coords[i+1], coords[j], coords[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsTouch(a, b, c, d geom.Coord) bool {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if d1 == 0 && withinBBox(c, d, a) {
		return true
	}
	if d2 == 0 && withinBBox(c, d, b) {
		return true
	}
	if d3 == 0 && withinBBox(a, b, c) {
		return true
	}
	if d4 == 0 && withinBBox(a, b, d) {
		return true
	}
	return false
}

func orient(a, b, p geom.Coord) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func withinBBox(a, b, p geom.Coord) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func douglasPeucker(coords []geom.Coord, lo, hi int, tolerance float64, keep []bool) {
	if hi-lo < 2 {
		return
	}
	maxDist, maxIdx := 0.0, -1
	for i := lo + 1; i < hi; i++ {
		d := pointSegmentDistance(coords[i], coords[lo], coords[hi])
		if d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist <= tolerance {
		return
	}
	keep[maxIdx] = true
	douglasPeucker(coords, lo, maxIdx, tolerance, keep)
	douglasPeucker(coords, maxIdx, hi, tolerance, keep)
}

func pointSegmentDistance(p, a, b geom.Coord) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	if dx == 0 && dy == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1])
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}
