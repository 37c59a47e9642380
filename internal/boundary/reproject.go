package boundary

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/wroge/wgs84"
	"go.uber.org/zap"
)

// Reproject returns the boundary with every vertex transformed into the
// raster's CRS. When either CRS code is unknown (0), the boundary is
// taken as already aligned, with a warning, since there is nothing to
// transform by.
func (b *Boundary) Reproject(toEPSG int) (*Boundary, error) {
	if b.EPSG == toEPSG {
		return b, nil
	}
	if b.EPSG == 0 || toEPSG == 0 {
		zap.L().Warn("boundary: CRS code unknown, assuming clip geometry matches raster CRS",
			zap.Int("boundary_epsg", b.EPSG),
			zap.Int("raster_epsg", toEPSG),
		)
		return b, nil
	}

	from := wgs84.EPSG().Code(b.EPSG)
	to := wgs84.EPSG().Code(toEPSG)
	if from == nil {
		return nil, eris.Errorf("boundary: unsupported CRS EPSG:%d", b.EPSG)
	}
	if to == nil {
		return nil, eris.Errorf("boundary: unsupported CRS EPSG:%d", toEPSG)
	}
	transform := wgs84.Transform(from, to)

	out := &Boundary{EPSG: toEPSG, Polygons: make([]*geom.Polygon, 0, len(b.Polygons))}
	for _, p := range b.Polygons {
		np := geom.NewPolygon(geom.XY)
		for i := 0; i < p.NumLinearRings(); i++ {
			flat := p.LinearRing(i).FlatCoords()
			nf := make([]float64, len(flat))
			for j := 0; j+1 < len(flat); j += 2 {
				x, y, _ := transform(flat[j], flat[j+1], 0)
				nf[j], nf[j+1] = x, y
			}
			if err := np.Push(geom.NewLinearRingFlat(geom.XY, nf)); err != nil {
				return nil, eris.Wrap(err, "boundary: rebuild reprojected ring")
			}
		}
		out.Polygons = append(out.Polygons, np)
	}

	zap.L().Info("boundary reprojected",
		zap.String("component", "boundary"),
		zap.Int("from_epsg", b.EPSG),
		zap.Int("to_epsg", toEPSG),
	)
	return out, nil
}
