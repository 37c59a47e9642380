package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opengeotiff/opengeotiff/internal/source"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show how a source URL maps to a cache entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := source.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fetch URL:   %s\n", src.FetchURL)
		fmt.Fprintf(cmd.OutOrStdout(), "cache name:  %s\n", src.CacheName)
		if src.TargetHint != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "target hint: %s\n", src.TargetHint)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
