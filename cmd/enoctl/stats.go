package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"enoctl/internal/journal"
)

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var (
		path   string
		window time.Duration
		filter journal.Filter
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize wait outcomes from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journalPath := firstNonEmpty(path, opts.cfg.JournalPath)
			if journalPath == "" {
				return errors.New("journal path required (--journal or journal_path in config)")
			}
			items, err := journal.ReadCSV(journalPath)
			if err != nil {
				return err
			}
			if window > 0 {
				filter.Since = time.Now().UTC().Add(-window)
			}

			out := cmd.OutOrStdout()
			s := journal.Summarize(items, filter)
			if s.Count == 0 {
				fmt.Fprintln(out, "no waits in window")
				return nil
			}
			fmt.Fprintf(out, "waits=%d matched=%d from=%s to=%s\n", s.Count, s.Matched, s.From.Format(time.RFC3339), s.To.Format(time.RFC3339))
			fmt.Fprintf(out, "match_rate=%.1f%% polls avg=%.1f fetch_errors=%d\n", s.MatchRate*100, s.AvgPolls, s.TotalFetchErrs)
			fmt.Fprintf(out, "elapsed avg=%.1fms p95=%.1fms max=%.1fms\n", s.AvgElapsedMs, s.P95ElapsedMs, s.MaxElapsedMs)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "journal", "", "journal CSV path (default from config)")
	cmd.Flags().DurationVar(&window, "window", 0, "only include waits newer than this")
	cmd.Flags().StringVar(&filter.Node, "node", "", "only include this node")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only include this activity kind")
	return cmd
}
