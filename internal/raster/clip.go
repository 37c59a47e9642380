// Package raster implements the clip, mask, vectorize, and simplify stages.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/boundary"
	"github.com/opengeotiff/opengeotiff/internal/geotiff"
)

// ErrNoOverlap is returned when the clip boundary and the raster extent
// have no common area.
var ErrNoOverlap = eris.New("raster: clip boundary does not overlap raster extent")

// clipFill is the sentinel written to cells outside the clip boundary. It
// mirrors the historical output, but stage logic never tests against it:
// the Valid mask is the source of truth for "no data here".
const clipFill = 0

// Grid is a clipped window of a raster. Valid distinguishes real
// measurements from clip fill and upstream nodata.
type Grid struct {
	Width, Height int
	Transform     geotiff.Affine
	EPSG          int
	Values        []float64
	Valid         []bool
}

// Clip crops r to the boundary's envelope and invalidates every cell whose
// center falls outside the boundary polygons. The boundary must already be
// in the raster's CRS.
func Clip(r *geotiff.Raster, b *boundary.Boundary) (*Grid, error) {
	inv, err := r.Transform.Invert()
	if err != nil {
		return nil, err
	}

	minX, minY, maxX, maxY := b.Bounds()

	// Envelope corners in pixel space. The y axis usually flips, so take
	// min/max over all four corners rather than assuming orientation.
	colMin, colMax := math.Inf(1), math.Inf(-1)
	rowMin, rowMax := math.Inf(1), math.Inf(-1)
	for _, pt := range [4][2]float64{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}} {
		col, row := inv.Apply(pt[0], pt[1])
		colMin, colMax = math.Min(colMin, col), math.Max(colMax, col)
		rowMin, rowMax = math.Min(rowMin, row), math.Max(rowMax, row)
	}

	c0 := int(math.Max(0, math.Floor(colMin)))
	r0 := int(math.Max(0, math.Floor(rowMin)))
	c1 := int(math.Min(float64(r.Width), math.Ceil(colMax)))
	r1 := int(math.Min(float64(r.Height), math.Ceil(rowMax)))

	if c0 >= c1 || r0 >= r1 {
		return nil, eris.Wrapf(ErrNoOverlap, "raster: boundary envelope (%.6g,%.6g)-(%.6g,%.6g)", minX, minY, maxX, maxY)
	}

	x0, y0 := r.Transform.Apply(float64(c0), float64(r0))
	g := &Grid{
		Width:  c1 - c0,
		Height: r1 - r0,
		EPSG:   r.EPSG,
		Transform: geotiff.Affine{
			A: r.Transform.A, B: r.Transform.B, C: x0,
			D: r.Transform.D, E: r.Transform.E, F: y0,
		},
		Values: make([]float64, (c1-c0)*(r1-r0)),
		Valid:  make([]bool, (c1-c0)*(r1-r0)),
	}

	inside := 0
	for row := r0; row < r1; row++ {
		for col := c0; col < c1; col++ {
			i := (row-r0)*g.Width + (col - c0)
			cx, cy := r.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
			if r.ValidAt(col, row) && b.Contains(cx, cy) {
				g.Values[i] = r.At(col, row)
				g.Valid[i] = true
				inside++
			} else {
				g.Values[i] = clipFill
			}
		}
	}

	zap.L().Info("raster clipped",
		zap.String("component", "raster"),
		zap.Int("window_width", g.Width),
		zap.Int("window_height", g.Height),
		zap.Int("cells_inside", inside),
	)
	return g, nil
}
