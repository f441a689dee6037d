package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "callrep",
		Short:        "Places automated advocacy calls to representatives and tracks their outcome",
		SilenceUsage: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildSeedCmd(),
		buildTokenCmd(),
	)
	return root
}
