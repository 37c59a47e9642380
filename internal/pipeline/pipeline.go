// Package pipeline chains the stages of one run: resolve, fetch, extract,
// read, clip, mask, vectorize, simplify, persist.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/archive"
	"github.com/opengeotiff/opengeotiff/internal/boundary"
	"github.com/opengeotiff/opengeotiff/internal/config"
	"github.com/opengeotiff/opengeotiff/internal/fetcher"
	"github.com/opengeotiff/opengeotiff/internal/geotiff"
	"github.com/opengeotiff/opengeotiff/internal/gpkg"
	"github.com/opengeotiff/opengeotiff/internal/raster"
	"github.com/opengeotiff/opengeotiff/internal/source"
)

// Options are the per-invocation knobs that live outside the job document.
type Options struct {
	// Refresh discards the cached download and extraction for this source
	// and fetches everything again.
	Refresh bool
}

// Run executes one job end to end. Every stage failure aborts the run;
// an empty mask does not, it produces an output with zero features.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"))

	src, err := source.Resolve(cfg.Source)
	if err != nil {
		return err
	}

	artifact := filepath.Join(cfg.CacheDir, src.CacheName)
	fetched, err := fetcher.Ensure(ctx, src.FetchURL, artifact, opts.Refresh)
	if err != nil {
		return err
	}

	tifPath, err := archive.SelectRaster(artifact, archive.SelectorFor(src.TargetHint), opts.Refresh)
	if err != nil {
		return err
	}

	rast, err := geotiff.Read(tifPath)
	if err != nil {
		return err
	}

	bnd, err := boundary.Load(cfg.Clipping)
	if err != nil {
		return err
	}
	bnd, err = bnd.Reproject(rast.EPSG)
	if err != nil {
		return err
	}

	grid, err := raster.Clip(rast, bnd)
	if err != nil {
		return err
	}

	bm := raster.Mask(grid, raster.MaskOptions{
		Min:         cfg.Mask.Min,
		Max:         cfg.Mask.Max,
		ExcludeZero: cfg.Mask.ExcludeZero,
	})

	feats := raster.Vectorize(bm)
	if cfg.Simplify.Enabled {
		feats = raster.Simplify(feats, cfg.Simplify.Tolerance)
	}
	if len(feats) == 0 {
		log.Warn("no cells matched the value range, writing empty layer",
			zap.Float64("min", cfg.Mask.Min),
			zap.Float64("max", cfg.Mask.Max),
		)
	}

	if err := gpkg.Write(ctx, cfg.Output, cfg.Layer, grid.EPSG, feats); err != nil {
		return err
	}

	log.Info("run complete",
		zap.String("source", cfg.Source),
		zap.String("output", cfg.Output),
		zap.Bool("fetched", fetched),
		zap.Int("features", len(feats)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
