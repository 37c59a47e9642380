package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengeotiff/opengeotiff/internal/geotiff"
)

// identityBitmap builds a bitmap whose lattice coordinates equal world
// coordinates, with the given cells set.
func identityBitmap(width, height int, cells [][2]int) *Bitmap {
	bm := &Bitmap{
		Width:     width,
		Height:    height,
		Transform: geotiff.Affine{A: 1, E: 1},
		EPSG:      4326,
		Bits:      make([]bool, width*height),
	}
	for _, c := range cells {
		bm.Bits[c[1]*width+c[0]] = true
	}
	return bm
}

func ringBounds(flat []float64) (minX, minY, maxX, maxY float64) {
	minX, minY = flat[0], flat[1]
	maxX, maxY = flat[0], flat[1]
	for i := 0; i < len(flat); i += 2 {
		if flat[i] < minX {
			minX = flat[i]
		}
		if flat[i] > maxX {
			maxX = flat[i]
		}
		if flat[i+1] < minY {
			minY = flat[i+1]
		}
		if flat[i+1] > maxY {
			maxY = flat[i+1]
		}
	}
	return
}

func TestVectorizeSingleRegion(t *testing.T) {
	bm := identityBitmap(4, 4, [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}})

	feats := Vectorize(bm)
	require.Len(t, feats, 1)
	assert.Equal(t, 1, feats[0].Value)

	poly := feats[0].Polygon
	require.Equal(t, 1, poly.NumLinearRings())

	ring := poly.LinearRing(0)
	// Collinear corners collapse, so the square is 4 vertices plus the
	// closing coordinate.
	assert.Equal(t, 5, ring.NumCoords())

	minX, minY, maxX, maxY := ringBounds(ring.FlatCoords())
	assert.Equal(t, 1.0, minX)
	assert.Equal(t, 1.0, minY)
	assert.Equal(t, 3.0, maxX)
	assert.Equal(t, 3.0, maxY)
}

func TestVectorizeHole(t *testing.T) {
	cells := [][2]int{}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if col == 1 && row == 1 {
				continue
			}
			cells = append(cells, [2]int{col, row})
		}
	}
	bm := identityBitmap(3, 3, cells)

	feats := Vectorize(bm)
	require.Len(t, feats, 1)

	poly := feats[0].Polygon
	require.Equal(t, 2, poly.NumLinearRings())

	minX, minY, maxX, maxY := ringBounds(poly.LinearRing(0).FlatCoords())
	assert.Equal(t, [4]float64{0, 0, 3, 3}, [4]float64{minX, minY, maxX, maxY})

	minX, minY, maxX, maxY = ringBounds(poly.LinearRing(1).FlatCoords())
	assert.Equal(t, [4]float64{1, 1, 2, 2}, [4]float64{minX, minY, maxX, maxY})
}

func TestVectorizeDiagonalCellsSplit(t *testing.T) {
	// Corner contact is not connectivity: two diagonal cells are two
	// separate polygons.
	bm := identityBitmap(2, 2, [][2]int{{0, 0}, {1, 1}})

	feats := Vectorize(bm)
	require.Len(t, feats, 2)
	for _, f := range feats {
		assert.Equal(t, 1, f.Polygon.NumLinearRings())
		assert.Equal(t, 5, f.Polygon.LinearRing(0).NumCoords())
	}
}

func TestVectorizeEmptyBitmap(t *testing.T) {
	bm := identityBitmap(3, 3, nil)
	assert.Empty(t, Vectorize(bm))
}

func TestVectorizeAppliesTransform(t *testing.T) {
	bm := identityBitmap(2, 2, [][2]int{{0, 0}})
	bm.Transform = geotiff.Affine{A: 10, C: 100, E: -10, F: 200}

	feats := Vectorize(bm)
	require.Len(t, feats, 1)

	minX, minY, maxX, maxY := ringBounds(feats[0].Polygon.LinearRing(0).FlatCoords())
	assert.Equal(t, 100.0, minX)
	assert.Equal(t, 110.0, maxX)
	assert.Equal(t, 190.0, minY)
	assert.Equal(t, 200.0, maxY)
}
