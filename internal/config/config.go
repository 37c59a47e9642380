// Package config loads and validates the job document that drives a run.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sentinel errors for configuration failures.
var (
	ErrMissingKey   = eris.New("config: missing required key")
	ErrInvalidRange = eris.New("config: mask.min must not exceed mask.max")
)

// Config is the immutable view of one run's parameters. It is loaded once
// and passed explicitly into every stage.
type Config struct {
	Source   string         `yaml:"source" mapstructure:"source"`
	CacheDir string         `yaml:"cache_dir" mapstructure:"cache_dir"`
	Clipping string         `yaml:"clipping" mapstructure:"clipping"`
	Output   string         `yaml:"output" mapstructure:"output"`
	Layer    string         `yaml:"layer" mapstructure:"layer"`
	Mask     MaskConfig     `yaml:"mask" mapstructure:"mask"`
	Simplify SimplifyConfig `yaml:"simplify" mapstructure:"simplify"`
}

// MaskConfig holds the inclusive value-range predicate.
type MaskConfig struct {
	Min         float64 `yaml:"min" mapstructure:"min"`
	Max         float64 `yaml:"max" mapstructure:"max"`
	ExcludeZero bool    `yaml:"exclude_zero" mapstructure:"exclude_zero"`
}

// SimplifyConfig controls output geometry simplification. Tolerance is in
// the raster CRS's native units, which differ by orders of magnitude between
// geographic and projected systems; the run log records both.
type SimplifyConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// requiredKeys must all be present in the job document.
var requiredKeys = []string{"source", "cache_dir", "clipping", "output", "mask.min", "mask.max"}

// Load reads the job document at path, applies defaults and environment
// overrides, and validates it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "config: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("OPENGEOTIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("layer", "features")
	v.SetDefault("mask.exclude_zero", true)
	v.SetDefault("simplify.enabled", true)
	v.SetDefault("simplify.tolerance", 0.005)

	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrapf(err, "config: read %s", path)
	}

	for _, key := range requiredKeys {
		if !v.IsSet(key) {
			return nil, eris.Wrapf(ErrMissingKey, "config: %q", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Mask.Min > cfg.Mask.Max {
		return nil, eris.Wrapf(ErrInvalidRange, "config: min=%v max=%v", cfg.Mask.Min, cfg.Mask.Max)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "config: create cache dir")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(level, format string) error {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
