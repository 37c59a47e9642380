package raster

import (
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/geotiff"
)

// MaskOptions is the inclusive value predicate applied to a clipped grid.
type MaskOptions struct {
	Min, Max float64
	// ExcludeZero preserves the historical behavior of never admitting a
	// zero reading even when 0 lies inside [Min, Max]. Genuine zero
	// measurements inside the clip are admitted when this is off, since
	// clip fill is tracked by the validity mask rather than the sentinel.
	ExcludeZero bool
}

// Bitmap is a binary raster over the clip window: true where the cell
// survives the value predicate.
type Bitmap struct {
	Width, Height int
	Transform     geotiff.Affine
	EPSG          int
	Bits          []bool
}

// Set reports the bit at (col, row), treating out-of-range cells as unset.
func (b *Bitmap) Set(col, row int) bool {
	if col < 0 || row < 0 || col >= b.Width || row >= b.Height {
		return false
	}
	return b.Bits[row*b.Width+col]
}

// Mask applies the value-range predicate to every valid cell. Bounds are
// inclusive on both ends.
func Mask(g *Grid, o MaskOptions) *Bitmap {
	bm := &Bitmap{
		Width:     g.Width,
		Height:    g.Height,
		Transform: g.Transform,
		EPSG:      g.EPSG,
		Bits:      make([]bool, len(g.Values)),
	}

	kept := 0
	for i, v := range g.Values {
		if !g.Valid[i] {
			continue
		}
		if v < o.Min || v > o.Max {
			continue
		}
		if o.ExcludeZero && v == 0 {
			continue
		}
		bm.Bits[i] = true
		kept++
	}

	zap.L().Info("value range applied",
		zap.String("component", "raster"),
		zap.Float64("min", o.Min),
		zap.Float64("max", o.Max),
		zap.Bool("exclude_zero", o.ExcludeZero),
		zap.Int("cells_kept", kept),
	)
	return bm
}
