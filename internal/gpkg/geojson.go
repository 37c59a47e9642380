package gpkg

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/raster"
)

// writeGeoJSON marshals feats as a FeatureCollection. RFC 7946 fixes the
// CRS to WGS 84; coordinates in another CRS are written as-is with a
// warning rather than rejected.
func writeGeoJSON(path string, epsg int, feats []raster.Feature) error {
	if epsg != 0 && epsg != 4326 {
		zap.L().Warn("geojson output in a non-WGS84 CRS",
			zap.String("component", "gpkg"),
			zap.Int("epsg", epsg),
		)
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(feats))}
	for _, f := range feats {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Polygon,
			Properties: map[string]any{"value": f.Value},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "gpkg: marshal feature collection")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "gpkg: write %s", path)
	}
	return nil
}
