package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"enoctl/internal/activity"
	"enoctl/internal/journal"
	"enoctl/internal/wait"
)

type waitOptions struct {
	Body            string
	Sender          string
	From            string
	Target          string
	Timeout         time.Duration
	Interval        time.Duration
	Journal         string
	MetricsTextfile string
}

func newWaitCommand(opts *rootOptions) *cobra.Command {
	wo := &waitOptions{}

	cmd := &cobra.Command{
		Use:   "wait <node> <sms|call|data>",
		Short: "Poll a node's log until a matching record appears",
		Long: `Poll a node's activity log until a record matches every given field
exactly. Exits non-zero when nothing matches before --timeout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(cmd, opts, wo, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&wo.Body, "body", "", "exact SMS body")
	cmd.Flags().StringVar(&wo.Sender, "sender", "", "exact sender phone number")
	cmd.Flags().StringVar(&wo.From, "from", "", "inventory node whose phone number is the sender")
	cmd.Flags().StringVar(&wo.Target, "target", "", "exact data target")
	cmd.Flags().DurationVar(&wo.Timeout, "timeout", 0, "give up after this long (default from config)")
	cmd.Flags().DurationVar(&wo.Interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().StringVar(&wo.Journal, "journal", "", "append the outcome to this CSV journal")
	cmd.Flags().StringVar(&wo.MetricsTextfile, "metrics-textfile", "", "write prometheus metrics to this file")
	cmd.MarkFlagsMutuallyExclusive("sender", "from")

	return cmd
}

func runWait(cmd *cobra.Command, opts *rootOptions, wo *waitOptions, name, kindArg string) error {
	kind, err := activity.ParseKind(kindArg)
	if err != nil {
		return err
	}

	var cs []activity.Constraint
	if cmd.Flags().Changed("body") {
		cs = append(cs, activity.WithBody(wo.Body))
	}
	switch {
	case cmd.Flags().Changed("sender"):
		cs = append(cs, activity.WithSender(wo.Sender))
	case wo.From != "":
		phone, err := opts.phoneOf(wo.From)
		if err != nil {
			return err
		}
		cs = append(cs, activity.WithSender(phone))
	}
	if cmd.Flags().Changed("target") {
		cs = append(cs, activity.WithTarget(wo.Target))
	}
	p, err := activity.NewPredicate(kind, cs...)
	if err != nil {
		return err
	}

	h, err := opts.handle(name)
	if err != nil {
		return err
	}

	timeout := wo.Timeout
	if timeout <= 0 {
		timeout = opts.cfg.WaitTimeout
	}
	interval := wo.Interval
	if interval <= 0 {
		interval = opts.cfg.PollInterval
	}

	collector, err := wait.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	waitOpts := []wait.Option{
		wait.WithPollInterval(interval),
		wait.WithLogger(opts.logger),
		wait.WithCollector(collector),
	}
	journalPath := firstNonEmpty(wo.Journal, opts.cfg.JournalPath)
	if journalPath != "" {
		waitOpts = append(waitOpts, wait.WithRecorder(journal.NewWriter(journalPath)))
	}

	rec, waitErr := wait.New(waitOpts...).Wait(cmd.Context(), h, p, timeout)

	if path := firstNonEmpty(wo.MetricsTextfile, opts.cfg.MetricsTextfile); path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			opts.logger.Warn("write metrics textfile failed", "path", path, "err", err)
		}
	}
	if waitErr != nil {
		return waitErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), describeRecord(rec))
	return nil
}

func describeRecord(rec activity.Record) string {
	switch r := rec.(type) {
	case activity.SMS:
		return fmt.Sprintf("sms sender=%s body=%q time=%s", r.Sender, r.Body, formatTime(r.Timestamp))
	case activity.Call:
		ended := "in-progress"
		if r.EndedAt != nil {
			ended = formatTime(*r.EndedAt)
		}
		return fmt.Sprintf("call sender=%s started=%s ended=%s", r.Sender, formatTime(r.StartedAt), ended)
	case activity.Data:
		return fmt.Sprintf("data target=%s bytes=%d time=%s", r.Target, r.BytesReceived, formatTime(r.Timestamp))
	}
	return fmt.Sprintf("%v", rec)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
