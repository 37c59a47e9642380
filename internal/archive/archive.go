// Package archive handles zip artifacts and raster file selection.
package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoRaster is returned when an archive contains no raster files.
var ErrNoRaster = eris.New("archive: no raster files found")

// rasterExts are the file extensions enumerated as rasters.
var rasterExts = map[string]bool{".tif": true, ".tiff": true}

// IsZip reports whether the file at path is a zip container.
func IsZip(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	_ = r.Close()
	return true
}

// ExtractDir returns the conventional extraction directory for a cached
// artifact: "<path without .zip>_extracted".
func ExtractDir(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ".zip") + "_extracted"
}

// SelectRaster resolves the cached artifact to the raster file the
// transform stage should use. Non-zip artifacts pass through unchanged.
// Zips are extracted once (atomically, skipped when the extraction
// directory already exists unless refresh is set) and the selector picks
// among the extracted rasters.
func SelectRaster(artifactPath string, sel Selector, refresh bool) (string, error) {
	if !IsZip(artifactPath) {
		return artifactPath, nil
	}

	dir := ExtractDir(artifactPath)
	if err := extractOnce(artifactPath, dir, refresh); err != nil {
		return "", err
	}

	rasters, err := enumerateRasters(dir)
	if err != nil {
		return "", err
	}
	if len(rasters) == 0 {
		return "", eris.Wrapf(ErrNoRaster, "archive: %s", dir)
	}

	return sel.Select(rasters)
}

// extractOnce extracts the archive into dir unless dir already exists. The
// extraction goes to a temp directory renamed into place, so a failed run
// cannot leave a half-populated directory that later runs trust.
func extractOnce(zipPath, dir string, refresh bool) error {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		if !refresh {
			zap.L().Debug("archive already extracted", zap.String("dir", dir))
			return nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return eris.Wrap(err, "archive: remove stale extraction")
		}
	}

	tmp := dir + ".partial-" + uuid.New().String()
	if err := extractZIP(zipPath, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return eris.Wrap(err, "archive: rename extraction into place")
	}

	zap.L().Info("archive extracted",
		zap.String("component", "archive"),
		zap.String("zip", zipPath),
		zap.String("dir", dir),
	)
	return nil
}

// extractZIP extracts all entries of a zip archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "archive: open zip")
	}
	defer r.Close() //nolint:errcheck

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return eris.Wrap(err, "archive: create dest dir")
	}

	for _, f := range r.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

// extractEntry extracts a single zip entry, rejecting zip-slip paths.
func extractEntry(f *zip.File, destDir string) error {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return eris.Errorf("archive: illegal path %q in zip", f.Name)
	}

	if f.FileInfo().IsDir() {
		return eris.Wrap(os.MkdirAll(destPath, 0o755), "archive: create directory")
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return eris.Wrap(err, "archive: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "archive: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "archive: create %s", destPath)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "archive: extract %s", f.Name)
	}
	return nil
}

// enumerateRasters walks dir recursively collecting raster files by
// extension.
func enumerateRasters(dir string) ([]string, error) {
	var rasters []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && rasterExts[strings.ToLower(filepath.Ext(path))] {
			rasters = append(rasters, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "archive: walk %s", dir)
	}
	return rasters, nil
}
