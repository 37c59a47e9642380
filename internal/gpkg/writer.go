// Package gpkg persists vectorized features. The output format follows the
// destination file extension: GeoPackage, GeoJSON, or ESRI shapefile.
package gpkg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/raster"
)

// ErrUnsupportedFormat is returned for destination extensions no writer
// handles.
var ErrUnsupportedFormat = eris.New("gpkg: unsupported output format")

// Write persists feats to path, picking the writer from the extension.
// The file appears atomically: writers produce a staging file next to the
// destination and rename it into place.
func Write(ctx context.Context, path, layer string, epsg int, feats []raster.Feature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "gpkg: create output dir %s", filepath.Dir(path))
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gpkg":
		err := writeStaged(path, func(staged string) error {
			return writeGeoPackage(ctx, staged, layer, epsg, feats)
		})
		if err != nil {
			return err
		}
	case ".geojson", ".json":
		err := writeStaged(path, func(staged string) error {
			return writeGeoJSON(staged, epsg, feats)
		})
		if err != nil {
			return err
		}
	case ".shp":
		// Shapefiles are a sidecar family (.shp/.shx/.dbf/.prj), so the
		// writer manages its own paths and staging is skipped.
		if err := writeShapefile(path, epsg, feats); err != nil {
			return err
		}
	default:
		return eris.Wrapf(ErrUnsupportedFormat, "gpkg: extension %q", ext)
	}

	zap.L().Info("features written",
		zap.String("component", "gpkg"),
		zap.String("path", path),
		zap.String("format", strings.TrimPrefix(ext, ".")),
		zap.Int("features", len(feats)),
	)
	return nil
}

func writeStaged(path string, write func(staged string) error) error {
	staged := filepath.Join(filepath.Dir(path), fmt.Sprintf(".staged-%s%s", uuid.New().String(), filepath.Ext(path)))
	if err := write(staged); err != nil {
		os.Remove(staged)
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		os.Remove(staged)
		return eris.Wrapf(err, "gpkg: rename %s", path)
	}
	return nil
}
