package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/pvarchive"
)

func newNamesCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "names <glob>",
		Short: "List channel names matching a shell glob, or the name of #<id>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openReader(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			names, err := r.ListNames(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(stdout, name)
			}
			return nil
		},
	}
}

// timeRange registers --start and --end on cmd.
type timeRange struct {
	start, end string
}

func (tr *timeRange) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tr.start, "start", "-1h", "Start time, RFC 3339 or a negative offset from now such as -2h")
	cmd.Flags().StringVar(&tr.end, "end", "now", "End time, RFC 3339, \"now\" or a negative offset from now")
}

func (tr *timeRange) resolve(now time.Time) (time.Time, time.Time, error) {
	start, err := parseTime(tr.start, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := parseTime(tr.end, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}

func parseTime(value string, now time.Time) (time.Time, error) {
	switch {
	case value == "" || value == "now":
		return now, nil
	case strings.HasPrefix(value, "-"):
		d, err := time.ParseDuration(value)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	default:
		return time.Parse(time.RFC3339Nano, value)
	}
}

func newRawCommand(stdout io.Writer) *cobra.Command {
	var (
		tr     timeRange
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "raw <channel>",
		Short: "Print the raw samples of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := tr.resolve(time.Now())
			if err != nil {
				return err
			}
			r, err := openReader(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			it, err := r.FetchRawByName(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			defer it.Close()

			w := newSampleWriter(stdout, asJSON)
			for s, err := range it.All() {
				if err != nil {
					return err
				}
				if err := w.write(s); err != nil {
					return err
				}
			}
			return nil
		},
	}
	tr.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per sample")
	return cmd
}

func newOptimizedCommand(stdout io.Writer) *cobra.Command {
	var (
		tr      timeRange
		buckets int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "optimized <channel>",
		Short: "Print about --buckets samples summarising a channel's range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := tr.resolve(time.Now())
			if err != nil {
				return err
			}
			r, err := openReader(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			samples, err := r.FetchOptimizedByName(cmd.Context(), args[0], start, end, buckets)
			if err != nil {
				return err
			}
			w := newSampleWriter(stdout, asJSON)
			for _, s := range samples {
				if err := w.write(s); err != nil {
					return err
				}
			}
			return nil
		},
	}
	tr.bind(cmd)
	cmd.Flags().IntVar(&buckets, "buckets", 800, "Number of time buckets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per sample")
	return cmd
}

func newExportCommand(stdout io.Writer) *cobra.Command {
	var (
		tr        timeRange
		out       string
		jobs      int
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "export <channel>...",
		Short: "Write the raw samples of several channels to JSON lines files in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := tr.resolve(time.Now())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			r, err := openReader(cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(jobs)
			for _, name := range args {
				g.Go(func() error {
					it, err := r.FetchRawByName(ctx, name, start, end)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					n, err := exportChannel(it, filepath.Join(out, exportFileName(name)), batchSize)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					fmt.Fprintf(stdout, "%s: %d samples\n", name, n)
					return nil
				})
			}
			return g.Wait()
		},
	}
	tr.bind(cmd)
	cmd.Flags().StringVar(&out, "out", "./export", "Output directory")
	cmd.Flags().IntVar(&jobs, "jobs", 4, "Channels exported concurrently")
	cmd.Flags().IntVar(&batchSize, "batch", 1000, "Samples written per batch")
	return cmd
}

func exportChannel(it *pvarchive.RawIterator, path string, batchSize int) (int, error) {
	defer it.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	n, err := pvarchive.Drain(it, batchSize, func(batch []pvarchive.Sample) error {
		for i := range batch {
			if err := enc.Encode(&batch[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// exportFileName maps a channel name onto a file name.
func exportFileName(name string) string {
	r := strings.NewReplacer("/", "_", ":", "_", "\\", "_", "*", "_", "?", "_")
	return r.Replace(name) + ".jsonl"
}
