package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	doc := `
source: https://example.com/data/ghi.zip#LTAY
cache_dir: ` + filepath.Join(dir, "cache") + `
clipping: boundary.geojson
output: out.gpkg
mask:
  min: 3
  max: 1000
`
	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/data/ghi.zip#LTAY", cfg.Source)
	assert.Equal(t, "boundary.geojson", cfg.Clipping)
	assert.Equal(t, "out.gpkg", cfg.Output)
	assert.InDelta(t, 3.0, cfg.Mask.Min, 1e-9)
	assert.InDelta(t, 1000.0, cfg.Mask.Max, 1e-9)

	// Defaults.
	assert.Equal(t, "features", cfg.Layer)
	assert.True(t, cfg.Mask.ExcludeZero)
	assert.True(t, cfg.Simplify.Enabled)
	assert.InDelta(t, 0.005, cfg.Simplify.Tolerance, 1e-9)

	// Cache dir is created with parents.
	info, err := os.Stat(cfg.CacheDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadOverrides(t *testing.T) {
	doc := `
source: https://example.com/a.tif
cache_dir: ` + t.TempDir() + `
clipping: b.shp
output: out.geojson
layer: irradiance
mask:
  min: 0
  max: 10
  exclude_zero: false
simplify:
  enabled: false
  tolerance: 1.5
`
	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "irradiance", cfg.Layer)
	assert.False(t, cfg.Mask.ExcludeZero)
	assert.False(t, cfg.Simplify.Enabled)
	assert.InDelta(t, 1.5, cfg.Simplify.Tolerance, 1e-9)
}

func TestLoadMissingKey(t *testing.T) {
	doc := `
source: https://example.com/a.tif
cache_dir: ` + t.TempDir() + `
output: out.gpkg
mask:
  min: 0
  max: 10
`
	_, err := Load(writeConfig(t, doc))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingKey))
	assert.Contains(t, err.Error(), "clipping")
}

func TestLoadMissingMaskBound(t *testing.T) {
	doc := `
source: https://example.com/a.tif
cache_dir: ` + t.TempDir() + `
clipping: b.shp
output: out.gpkg
mask:
  min: 0
`
	_, err := Load(writeConfig(t, doc))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMissingKey))
}

func TestLoadInvertedRange(t *testing.T) {
	doc := `
source: https://example.com/a.tif
cache_dir: ` + t.TempDir() + `
clipping: b.shp
output: out.gpkg
mask:
  min: 100
  max: 1
`
	_, err := Load(writeConfig(t, doc))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidRange))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(writeConfig(t, "source: [unclosed"))
	require.Error(t, err)
}
