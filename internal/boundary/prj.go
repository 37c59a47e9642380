package boundary

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// prjAuthority matches a trailing AUTHORITY["EPSG","nnnn"] clause in an
// ESRI .prj file. Not every writer emits one, so a small name table backs
// it up.
var prjAuthority = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]\s*\]\s*$`)

// wellKnownPrj maps WKT names seen in the wild to EPSG codes.
var wellKnownPrj = map[string]int{
	"GCS_WGS_1984":                  4326,
	"WGS 84":                        4326,
	"WGS_1984_Web_Mercator_Auxiliary_Sphere": 3857,
	"WGS 84 / Pseudo-Mercator":               3857,
}

// sniffPrjEPSG reads the sidecar .prj of a shapefile and maps it to an
// EPSG code, defaulting to 4326 when the file is absent or unrecognized.
func sniffPrjEPSG(shpPath string) int {
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		zap.L().Debug("boundary: no .prj sidecar, assuming EPSG:4326",
			zap.String("shapefile", shpPath))
		return 4326
	}
	wkt := strings.TrimSpace(string(data))

	if m := prjAuthority.FindStringSubmatch(wkt); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return code
		}
	}

	for name, code := range wellKnownPrj {
		if strings.Contains(wkt, name) {
			return code
		}
	}

	zap.L().Warn("boundary: unrecognized .prj, assuming EPSG:4326",
		zap.String("prj", prjPath))
	return 4326
}
