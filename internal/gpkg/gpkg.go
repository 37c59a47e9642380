package gpkg

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/opengeotiff/opengeotiff/internal/raster"
)

// gpkgApplicationID is "GPKG" as a big-endian uint32, per the GeoPackage
// file container requirements.
const gpkgApplicationID = 1196444487

// gpkgUserVersion encodes GeoPackage format version 1.3.0.
const gpkgUserVersion = 10300

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`

const gpkgSchema = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

// writeGeoPackage creates a fresh GeoPackage at path with a single POLYGON
// feature table named layer.
func writeGeoPackage(ctx context.Context, path, layer string, epsg int, feats []raster.Feature) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open database")
	}
	defer db.Close()

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}

	if _, err := db.ExecContext(ctx, gpkgSchema); err != nil {
		return eris.Wrap(err, "gpkg: create metadata tables")
	}
	if err := insertSpatialRefSys(ctx, db, epsg); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %q (fid INTEGER PRIMARY KEY AUTOINCREMENT, geom BLOB, value INTEGER)`, layer,
	)); err != nil {
		return eris.Wrapf(err, "gpkg: create feature table %s", layer)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer tx.Rollback()

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, f := range feats {
		blob, err := geometryBlob(f.Polygon, epsg)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %q (geom, value) VALUES (?, ?)`, layer),
			blob, f.Value,
		); err != nil {
			return eris.Wrap(err, "gpkg: insert feature")
		}
		b := f.Polygon.Bounds()
		minX, minY = math.Min(minX, b.Min(0)), math.Min(minY, b.Min(1))
		maxX, maxY = math.Max(maxX, b.Max(0)), math.Max(maxY, b.Max(1))
	}

	var extent [4]any
	if len(feats) > 0 {
		extent = [4]any{minX, minY, maxX, maxY}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		layer, layer, extent[0], extent[1], extent[2], extent[3], epsg,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert contents row")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, 'geom', 'POLYGON', ?, 0, 0)`,
		layer, epsg,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry column row")
	}

	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

func insertSpatialRefSys(ctx context.Context, db *sql.DB, epsg int) error {
	rows := [][]any{
		{"Undefined Cartesian SRS", -1, "NONE", -1, "undefined", "undefined Cartesian coordinate reference system"},
		{"Undefined geographic SRS", 0, "NONE", 0, "undefined", "undefined geographic coordinate reference system"},
		{"WGS 84 geodetic", 4326, "EPSG", 4326, wgs84WKT, "longitude/latitude coordinates in decimal degrees"},
	}
	if epsg != 0 && epsg != 4326 {
		// Full WKT definitions require an EPSG registry; "undefined" is
		// accepted by GDAL and QGIS as long as the code is present.
		rows = append(rows, []any{fmt.Sprintf("EPSG:%d", epsg), epsg, "EPSG", epsg, "undefined", nil})
	}
	for _, r := range rows {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r...,
		); err != nil {
			return eris.Wrap(err, "gpkg: insert spatial_ref_sys row")
		}
	}
	return nil
}

// geometryBlob wraps g in the GeoPackage binary header: magic, version 0,
// flags 0x03 (little-endian with an XY envelope), SRID, envelope, then
// standard WKB.
func geometryBlob(g *geom.Polygon, epsg int) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('G')
	buf.WriteByte('P')
	buf.WriteByte(0)
	buf.WriteByte(0x03)

	b := g.Bounds()
	if err := binary.Write(&buf, binary.LittleEndian, int32(epsg)); err != nil {
		return nil, eris.Wrap(err, "gpkg: encode srid")
	}
	for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, eris.Wrap(err, "gpkg: encode envelope")
		}
	}

	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}
	buf.Write(body)
	return buf.Bytes(), nil
}
