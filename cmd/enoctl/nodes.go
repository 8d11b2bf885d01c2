package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"enoctl/internal/activity"
)

func newNodesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List inventory nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := opts.inventory()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range inv.Entries() {
				phone := e.PhoneNumber
				if phone == "" {
					phone = "-"
				}
				fmt.Fprintf(out, "%s\taddr=%s sim=%s phone=%s\n", e.Name, e.IPAddress, e.SIM, phone)
			}
			return nil
		},
	}
}

func newInfoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <node>",
		Short: "Show a node's modem status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			info, err := h.Info(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newSMSCommand(opts *rootOptions) *cobra.Command {
	var marker bool

	cmd := &cobra.Command{
		Use:   "sms <from-node> <to-node|number> <message>",
		Short: "Send an SMS from a node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			to, err := opts.phoneOf(args[1])
			if err != nil {
				return err
			}
			message := args[2]
			if marker {
				message = activity.NewMarker(message)
			}
			if err := from.SendSMS(cmd.Context(), to, message); err != nil {
				return err
			}
			// Printed so a following `wait --body` can match it exactly.
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&marker, "marker", false, "append a unique marker to the message")
	return cmd
}

func newCallCommand(opts *rootOptions) *cobra.Command {
	var hold bool

	cmd := &cobra.Command{
		Use:   "call <from-node> <to-node|number>",
		Short: "Place a call from a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			to, err := opts.phoneOf(args[1])
			if err != nil {
				return err
			}
			return from.PlaceCall(cmd.Context(), to, !hold)
		},
	}
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the call up until hangup")
	return cmd
}

func newHangupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hangup <node>",
		Short: "End the node's current calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			return h.Hangup(cmd.Context())
		},
	}
}

func newDataCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "data <node> <target>",
		Short: "Request data from a target over the node's mobile link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.handle(args[0])
			if err != nil {
				return err
			}
			return h.RequestData(cmd.Context(), args[1])
		},
	}
}
