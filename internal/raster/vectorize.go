package raster

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one vectorized region. Value is always 1: only masked-in
// regions are emitted.
type Feature struct {
	Polygon *geom.Polygon
	Value   int
}

// corner is a pixel-lattice corner: (x, y) = (col, row) of the pixel whose
// top-left it is.
type corner struct{ x, y int }

// Vectorize traces the connected regions of the bitmap into polygons with
// holes. Regions are 4-connected; features touching only at a corner come
// out as separate polygons. Vertices are emitted through the bitmap's
// affine transform, so coordinates are in the raster's CRS.
func Vectorize(bm *Bitmap) []Feature {
	rings := traceRings(bm)

	// Lattice shoelace orientation separates exteriors from holes: the
	// per-cell edge ordering makes exteriors positive.
	type tracedRing struct {
		corners []corner
		area    float64
	}
	var exteriors, holes []tracedRing
	for _, ring := range rings {
		a := latticeArea(ring)
		if a > 0 {
			exteriors = append(exteriors, tracedRing{ring, a})
		} else if a < 0 {
			holes = append(holes, tracedRing{ring, a})
		}
	}

	// A hole belongs to the smallest exterior ring containing it. The
	// topmost-left corner of a traced hole is the top-left corner of the
	// empty cell just inside it, so offsetting by half a cell lands a
	// point strictly within the hole.
	holesFor := make(map[int][][]corner)
	for _, h := range holes {
		px, py := holeProbe(h.corners)
		best, bestArea := -1, math.Inf(1)
		for i, ext := range exteriors {
			if latticeContains(px, py, ext.corners) && ext.area < bestArea {
				best, bestArea = i, ext.area
			}
		}
		if best >= 0 {
			holesFor[best] = append(holesFor[best], h.corners)
		}
	}

	feats := make([]Feature, 0, len(exteriors))
	for i, ext := range exteriors {
		poly := geom.NewPolygon(geom.XY)
		_ = poly.Push(worldRing(bm, ext.corners))
		for _, h := range holesFor[i] {
			_ = poly.Push(worldRing(bm, h))
		}
		feats = append(feats, Feature{Polygon: poly, Value: 1})
	}

	zap.L().Info("mask vectorized",
		zap.String("component", "raster"),
		zap.Int("polygons", len(feats)),
		zap.Int("holes", len(holes)),
	)
	return feats
}

// traceRings emits the directed boundary edges of every set cell and
// stitches them into closed rings. Each edge keeps its cell on a
// consistent side, so every ring closes and each edge is used once.
func traceRings(bm *Bitmap) [][]corner {
	edges := make(map[corner][]corner)
	addEdge := func(a, b corner) { edges[a] = append(edges[a], b) }

	for row := 0; row < bm.Height; row++ {
		for col := 0; col < bm.Width; col++ {
			if !bm.Set(col, row) {
				continue
			}
			if !bm.Set(col, row-1) {
				addEdge(corner{col, row}, corner{col + 1, row})
			}
			if !bm.Set(col+1, row) {
				addEdge(corner{col + 1, row}, corner{col + 1, row + 1})
			}
			if !bm.Set(col, row+1) {
				addEdge(corner{col + 1, row + 1}, corner{col, row + 1})
			}
			if !bm.Set(col-1, row) {
				addEdge(corner{col, row + 1}, corner{col, row})
			}
		}
	}

	removeEdge := func(a, b corner) {
		ends := edges[a]
		for i, e := range ends {
			if e == b {
				ends[i] = ends[len(ends)-1]
				ends = ends[:len(ends)-1]
				break
			}
		}
		if len(ends) == 0 {
			delete(edges, a)
		} else {
			edges[a] = ends
		}
	}

	var rings [][]corner
	for len(edges) > 0 {
		var start corner
		for k := range edges {
			start = k
			break
		}

		ring := []corner{start}
		prev := start
		cur := edges[start][0]
		removeEdge(start, cur)

		for cur != start {
			ring = append(ring, cur)
			dir := corner{cur.x - prev.x, cur.y - prev.y}
			next, ok := pickNext(cur, edges[cur], dir)
			if !ok {
				break // cannot happen on a well-formed edge set
			}
			removeEdge(cur, next)
			prev, cur = cur, next
		}

		rings = append(rings, compressCollinear(ring))
	}
	return rings
}

// pickNext chooses the outgoing edge at a lattice corner. At saddle
// corners (two regions touching diagonally) two edges leave the corner;
// preferring the sharpest clockwise turn keeps each region's boundary on
// its own ring, which is what makes regions 4-connected.
func pickNext(cur corner, ends []corner, dir corner) (corner, bool) {
	if len(ends) == 0 {
		return corner{}, false
	}
	if len(ends) == 1 {
		return ends[0], true
	}
	for _, pref := range []corner{{-dir.y, dir.x}, dir, {dir.y, -dir.x}} {
		want := corner{cur.x + pref.x, cur.y + pref.y}
		for _, e := range ends {
			if e == want {
				return e, true
			}
		}
	}
	return ends[0], true
}

// compressCollinear drops vertices that continue in the same direction,
// treating the ring as cyclic.
func compressCollinear(ring []corner) []corner {
	n := len(ring)
	if n < 3 {
		return ring
	}
	out := make([]corner, 0, n)
	for i := 0; i < n; i++ {
		p := ring[(i+n-1)%n]
		v := ring[i]
		q := ring[(i+1)%n]
		d1 := corner{v.x - p.x, v.y - p.y}
		d2 := corner{q.x - v.x, q.y - v.y}
		if d1.x*d2.y-d1.y*d2.x != 0 {
			out = append(out, v)
		}
	}
	return out
}

// latticeArea is the shoelace signed area of a ring in lattice units.
func latticeArea(ring []corner) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].x*ring[j].y - ring[j].x*ring[i].y
	}
	return float64(sum) / 2
}

// holeProbe returns a point strictly inside the empty region a hole ring
// encloses: half a cell in from its topmost-left corner.
func holeProbe(ring []corner) (float64, float64) {
	top := ring[0]
	for _, v := range ring[1:] {
		if v.y < top.y || (v.y == top.y && v.x < top.x) {
			top = v
		}
	}
	return float64(top.x) + 0.5, float64(top.y) + 0.5
}

// latticeContains is even-odd ray casting over a lattice ring.
func latticeContains(x, y float64, ring []corner) bool {
	n := len(ring)
	crossings := 0
	for i := 0; i < n; i++ {
		x1, y1 := float64(ring[i].x), float64(ring[i].y)
		j := (i + 1) % n
		x2, y2 := float64(ring[j].x), float64(ring[j].y)
		if (y1 > y) == (y2 > y) {
			continue
		}
		if x < x1+(y-y1)/(y2-y1)*(x2-x1) {
			crossings++
		}
	}
	return crossings%2 == 1
}

// worldRing maps a lattice ring through the affine transform into a
// closed linear ring in world coordinates.
func worldRing(bm *Bitmap, ring []corner) *geom.LinearRing {
	flat := make([]float64, 0, (len(ring)+1)*2)
	for _, v := range ring {
		x, y := bm.Transform.Apply(float64(v.x), float64(v.y))
		flat = append(flat, x, y)
	}
	x, y := bm.Transform.Apply(float64(ring[0].x), float64(ring[0].y))
	flat = append(flat, x, y)
	return geom.NewLinearRingFlat(geom.XY, flat)
}
