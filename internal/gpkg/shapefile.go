package gpkg

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/raster"
)

// prjWKT holds sidecar projection definitions for the CRS codes this tool
// commonly emits. Codes outside the map get no .prj file.
var prjWKT = map[int]string{
	4326: `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`,
	3857: `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`,
}

// writeShapefile emits feats as an ESRI polygon shapefile with a single
// VALUE attribute. Exterior rings are written clockwise and holes
// counter-clockwise, which is how the format distinguishes them.
func writeShapefile(path string, epsg int, feats []raster.Feature) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "gpkg: create shapefile %s", path)
	}

	w.SetFields([]shp.Field{shp.NumberField("VALUE", 10)})

	for row, f := range feats {
		w.Write(shapePolygon(f.Polygon))
		w.WriteAttribute(row, 0, f.Value)
	}
	w.Close()

	// go-shp strips the destination extension and names the attribute
	// table by bare concatenation, leaving it at "<base>dbf" where no
	// reader looks for it.
	base := strings.TrimSuffix(path, ".shp")
	if _, statErr := os.Stat(base + "dbf"); statErr == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return eris.Wrapf(err, "gpkg: rename %s", base+".dbf")
		}
	}

	if wkt, ok := prjWKT[epsg]; ok {
		prj := base + ".prj"
		if err := os.WriteFile(prj, []byte(wkt), 0o644); err != nil {
			return eris.Wrapf(err, "gpkg: write %s", prj)
		}
	} else if epsg != 0 {
		zap.L().Warn("no projection definition for CRS, skipping .prj sidecar",
			zap.String("component", "gpkg"),
			zap.Int("epsg", epsg),
		)
	}
	return nil
}

func shapePolygon(p *geom.Polygon) *shp.Polygon {
	out := &shp.Polygon{}
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		pts := make([]shp.Point, 0, len(flat)/2)
		for j := 0; j < len(flat); j += 2 {
			pts = append(pts, shp.Point{X: flat[j], Y: flat[j+1]})
		}
		// Ring 0 is the exterior and must wind clockwise; holes wind the
		// other way.
		if (i == 0) != clockwise(pts) {
			reversePoints(pts)
		}
		out.Parts = append(out.Parts, int32(len(out.Points)))
		out.Points = append(out.Points, pts...)
	}
	out.NumParts = int32(len(out.Parts))
	out.NumPoints = int32(len(out.Points))
	out.Box = pointsBox(out.Points)
	return out
}

// clockwise reports the winding of a closed ring in a y-up coordinate
// system: negative shoelace area is clockwise.
func clockwise(pts []shp.Point) bool {
	sum := 0.0
	for i := 0; i < len(pts)-1; i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum < 0
}

func reversePoints(pts []shp.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

func pointsBox(pts []shp.Point) shp.Box {
	if len(pts) == 0 {
		return shp.Box{}
	}
	b := shp.Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < b.MinX {
			b.MinX = p.X
		}
		if p.X > b.MaxX {
			b.MaxX = p.X
		}
		if p.Y < b.MinY {
			b.MinY = p.Y
		}
		if p.Y > b.MaxY {
			b.MaxY = p.Y
		}
	}
	return b
}
