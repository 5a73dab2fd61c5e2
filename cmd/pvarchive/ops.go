package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghalamif/pvarchive"
)

func newValidateCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := pvarchive.LoadConfig(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "config %s looks good (dialect %s)\n", path, cfg.Archive.Dialect)
			return nil
		},
	}
}

func newServeCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the archive and expose Prometheus metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(stdout, "serving metrics on %s\n", r.Config().Metrics.Addr)
			return r.ServeMetrics(cmd.Context())
		},
	}
}

func newStatsCommand(stdout, stderr io.Writer) *cobra.Command {
	var (
		url      string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Poll the Prometheus metrics endpoint and print live counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Fprintf(stdout, "Streaming metrics from %s (Ctrl+C to stop)\n", url)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := printMetricsSnapshot(ctx, http.DefaultClient, url, stdout); err != nil {
						fmt.Fprintf(stderr, "stats error: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Refresh interval")
	return cmd
}

var snapshotMetrics = []string{
	"pvarchive_queries_total",
	"pvarchive_samples_decoded_total",
	"pvarchive_cancellations_total",
	"pvarchive_inflight_statements",
	"pvarchive_connections_in_use",
}

func printMetricsSnapshot(ctx context.Context, client *http.Client, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(snapshotMetrics))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range snapshotMetrics {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintf(w, "[%s] queries=%g samples=%g cancelled=%g inflight=%g conns=%g\n",
		time.Now().Format(time.RFC3339),
		values["pvarchive_queries_total"],
		values["pvarchive_samples_decoded_total"],
		values["pvarchive_cancellations_total"],
		values["pvarchive_inflight_statements"],
		values["pvarchive_connections_in_use"],
	)
	return nil
}
