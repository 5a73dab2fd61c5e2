package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghalamif/pvarchive"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pvarchive: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "pvarchive",
		Short: "Query process variable samples from an RDB or TimescaleDB archive.",
		Long: `pvarchive reads archived process variable samples from PostgreSQL,
TimescaleDB, MySQL or Oracle archive schemas.

Examples:
  pvarchive names 'Sim:*'
  pvarchive raw Sim:Ramp --start -1h
  pvarchive optimized Sim:Ramp --start 2024-03-01T00:00:00Z --end 2024-03-02T00:00:00Z --buckets 800
  pvarchive export Sim:Ramp Sim:Sine --out ./export --jobs 4
  pvarchive serve --config ./config.yaml
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.PersistentFlags().StringP("config", "c", "./config.yaml", "Path to the archive configuration file")

	rc.AddCommand(newNamesCommand(stdout))
	rc.AddCommand(newRawCommand(stdout))
	rc.AddCommand(newOptimizedCommand(stdout))
	rc.AddCommand(newExportCommand(stdout))
	rc.AddCommand(newValidateCommand(stdout))
	rc.AddCommand(newServeCommand(stdout))
	rc.AddCommand(newStatsCommand(stdout, stderr))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func openReader(cmd *cobra.Command) (*pvarchive.Reader, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := pvarchive.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return pvarchive.Open(cmd.Context(), cfg)
}
