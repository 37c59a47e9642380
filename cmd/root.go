package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/config"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "opengeotiff",
	Short: "One-shot raster-to-vector extraction pipeline",
	Long:  "Downloads a remote raster, clips it to a boundary, masks a value range, and writes the matching regions as vector polygons.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitLogger(logLevel, logFormat); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
