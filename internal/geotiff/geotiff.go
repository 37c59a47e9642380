// Package geotiff reads single-band GeoTIFF rasters without cgo.
//
// It parses exactly what the pipeline needs from classic TIFF: the first
// image directory, strip or tile layout, None/Deflate/PackBits compression,
// and the GeoTIFF keys carrying the affine transform, the CRS code, and the
// GDAL nodata value. BigTIFF and LZW inputs are rejected with named errors.
package geotiff

import (
	"github.com/rotisserie/eris"
)

// Sentinel errors for unreadable inputs.
var (
	ErrNotTIFF                = eris.New("geotiff: not a TIFF file")
	ErrUnsupportedCompression = eris.New("geotiff: unsupported compression")
)

// Affine maps pixel coordinates to world coordinates:
//
//	x = C + A*col + B*row
//	y = F + D*col + E*row
//
// For north-up rasters B and D are zero and E is negative.
type Affine struct {
	A, B, C, D, E, F float64
}

// Apply maps a (col, row) pixel coordinate to world (x, y). Fractional
// coordinates address positions inside a pixel; integral ones its corner.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.C + a.A*col + a.B*row, a.F + a.D*col + a.E*row
}

// Invert returns the affine mapping world (x, y) back to (col, row).
func (a Affine) Invert() (Affine, error) {
	det := a.A*a.E - a.B*a.D
	if det == 0 {
		return Affine{}, eris.New("geotiff: transform is not invertible")
	}
	return Affine{
		A: a.E / det,
		B: -a.B / det,
		C: (a.B*a.F - a.E*a.C) / det,
		D: -a.D / det,
		E: a.A / det,
		F: (a.D*a.C - a.A*a.F) / det,
	}, nil
}

// Raster is band 1 of a GeoTIFF, fully decoded. Valid carries the explicit
// no-data mask: a cell whose sample equals the declared nodata value is
// invalid, independent of any sentinel the clip stage fills with.
type Raster struct {
	Width, Height int
	Transform     Affine
	// EPSG is the CRS code from the geo key directory, 0 when absent.
	EPSG   int
	NoData *float64
	Values []float64
	Valid  []bool
}

// At returns the value at (col, row).
func (r *Raster) At(col, row int) float64 {
	return r.Values[row*r.Width+col]
}

// ValidAt reports whether the cell at (col, row) holds a real measurement.
func (r *Raster) ValidAt(col, row int) bool {
	return r.Valid[row*r.Width+col]
}
