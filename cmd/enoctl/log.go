package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"enoctl/internal/activity"
)

func newLogCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect or clear node activity logs",
	}
	cmd.AddCommand(newLogGetCommand(opts))
	cmd.AddCommand(newLogResetCommand(opts))
	return cmd
}

func newLogGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <node> <sms|call|data>",
		Short: "Print an activity log as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := activity.ParseKind(args[1])
			if err != nil {
				return err
			}
			h, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			log, err := h.GetLog(cmd.Context(), kind)
			if err != nil {
				return err
			}
			data, err := activity.Encode(log)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newLogResetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <node> [kind...]",
		Short: "Clear activity logs (all kinds when none given)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := activity.Kinds()
			if len(args) > 1 {
				kinds = kinds[:0:0]
				for _, a := range args[1:] {
					k, err := activity.ParseKind(a)
					if err != nil {
						return err
					}
					kinds = append(kinds, k)
				}
			}
			h, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			for _, k := range kinds {
				if err := h.ResetLog(cmd.Context(), k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
