package gpkg

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/opengeotiff/opengeotiff/internal/raster"
)

func testFeatures(t *testing.T) []raster.Feature {
	t.Helper()
	square := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}},
		{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}},
	})
	triangle := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{10, 10}, {12, 10}, {10, 12}, {10, 10}},
	})
	return []raster.Feature{
		{Polygon: square, Value: 1},
		{Polygon: triangle, Value: 1},
	}
}

func TestWriteGeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.gpkg")
	require.NoError(t, Write(context.Background(), path, "features", 4326, testFeatures(t)))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var appID int64
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	assert.Equal(t, int64(gpkgApplicationID), appID)

	var table, geomType string
	var srs int
	require.NoError(t, db.QueryRow(
		`SELECT table_name, geometry_type_name, srs_id FROM gpkg_geometry_columns`,
	).Scan(&table, &geomType, &srs))
	assert.Equal(t, "features", table)
	assert.Equal(t, "POLYGON", geomType)
	assert.Equal(t, 4326, srs)

	var minX, maxY float64
	require.NoError(t, db.QueryRow(
		`SELECT min_x, max_y FROM gpkg_contents WHERE table_name = 'features'`,
	).Scan(&minX, &maxY))
	assert.Equal(t, 0.0, minX)
	assert.Equal(t, 12.0, maxY)

	rows, err := db.Query(`SELECT geom, value FROM features ORDER BY fid`)
	require.NoError(t, err)
	defer rows.Close()

	count := 0
	for rows.Next() {
		var blob []byte
		var value int
		require.NoError(t, rows.Scan(&blob, &value))
		assert.Equal(t, 1, value)

		// Header: GP magic, version, flags, SRID, XY envelope, then WKB.
		require.GreaterOrEqual(t, len(blob), 40)
		assert.Equal(t, byte('G'), blob[0])
		assert.Equal(t, byte('P'), blob[1])
		assert.Equal(t, byte(0), blob[2])
		assert.Equal(t, byte(0x03), blob[3])
		assert.Equal(t, uint32(4326), binary.LittleEndian.Uint32(blob[4:8]))

		g, err := wkb.Unmarshal(blob[40:])
		require.NoError(t, err)
		_, ok := g.(*geom.Polygon)
		assert.True(t, ok)
		count++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 2, count)
}

func TestWriteGeoPackageEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpkg")
	require.NoError(t, Write(context.Background(), path, "features", 4326, nil))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM features`).Scan(&n))
	assert.Zero(t, n)

	var minX sql.NullFloat64
	require.NoError(t, db.QueryRow(
		`SELECT min_x FROM gpkg_contents WHERE table_name = 'features'`,
	).Scan(&minX))
	assert.False(t, minX.Valid)
}

func TestWriteGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, Write(context.Background(), path, "features", 4326, testFeatures(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 2)

	poly, ok := fc.Features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, poly.NumLinearRings())
	assert.EqualValues(t, 1, fc.Features[0].Properties["value"])
}

func TestWriteShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.shp")
	require.NoError(t, Write(context.Background(), path, "features", 4326, testFeatures(t)))

	reader, err := shp.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	count := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		require.True(t, ok)
		require.NotEmpty(t, poly.Points)
		val := strings.TrimSpace(strings.TrimRight(reader.Attribute(0), "\x00"))
		assert.Equal(t, "1", val)
		count++
	}
	assert.Equal(t, 2, count)

	prj, err := os.ReadFile(strings.TrimSuffix(path, ".shp") + ".prj")
	require.NoError(t, err)
	assert.Contains(t, string(prj), `AUTHORITY["EPSG","4326"]`)
}

// The attribute table must land at the dotted sidecar name; go-shp writes
// it elsewhere and readers never find it without the rename.
func TestWriteShapefileSidecars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.shp")
	require.NoError(t, Write(context.Background(), path, "features", 4326, testFeatures(t)))

	for _, name := range []string{"regions.shp", "regions.shx", "regions.dbf", "regions.prj"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing sidecar %s", name)
	}
	_, err := os.Stat(filepath.Join(dir, "regionsdbf"))
	assert.True(t, os.IsNotExist(err), "undotted attribute file left behind")
}

func TestWriteUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	err := Write(context.Background(), path, "features", 4326, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnsupportedFormat))
}

func TestWriteLeavesNoStagingFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory at the destination path makes the final rename fail.
	path := filepath.Join(dir, "out.gpkg")
	require.NoError(t, os.MkdirAll(path, 0o755))

	err := Write(context.Background(), path, "features", 4326, testFeatures(t))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.gpkg", entries[0].Name())
}
