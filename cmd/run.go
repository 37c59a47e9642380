package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengeotiff/opengeotiff/internal/config"
	"github.com/opengeotiff/opengeotiff/internal/pipeline"
)

var runRefresh bool

var runCmd = &cobra.Command{
	Use:   "run <job.yaml>",
	Short: "Execute one extraction job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}

		zap.L().Info("job loaded",
			zap.String("job", args[0]),
			zap.String("source", cfg.Source),
			zap.String("output", cfg.Output),
		)

		if err := pipeline.Run(ctx, cfg, pipeline.Options{Refresh: runRefresh}); err != nil {
			return eris.Wrap(err, "run job")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runRefresh, "refresh", false, "discard cached downloads and fetch the source again")
	rootCmd.AddCommand(runCmd)
}
