package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"enoctl/internal/netcheck"
)

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	var (
		stunList string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor [node...]",
		Short: "Check node reachability and the controller's public mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				inv, err := opts.inventory()
				if err != nil {
					return err
				}
				names = inv.Names()
			}
			handles, err := opts.handles(names...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			statuses := netcheck.CheckNodes(cmd.Context(), handles, timeout)
			for _, st := range statuses {
				if st.Reachable {
					fmt.Fprintf(out, "%s\tok addr=%s latency=%s network=%s signal=%d\n",
						st.Name, st.Address, st.Latency.Round(time.Millisecond), st.Info.NetworkName, st.Info.SignalStrength)
					continue
				}
				fmt.Fprintf(out, "%s\tunreachable addr=%s err=%v\n", st.Name, st.Address, st.Err)
			}

			if servers := splitList(stunList); len(servers) > 0 {
				m, err := netcheck.Probe(cmd.Context(), servers, timeout)
				for _, r := range m.Results {
					if r.Err != nil {
						fmt.Fprintf(out, "stun %s\terror=%v\n", r.Server, r.Err)
						continue
					}
					fmt.Fprintf(out, "stun %s\tmapped=%s rtt=%s\n", r.Server, r.Addr, r.RTT.Round(time.Microsecond))
				}
				if err != nil {
					fmt.Fprintf(out, "stun error: %v\n", err)
				} else {
					fmt.Fprintf(out, "public_addr=%s nat_type=%s\n", m.Addr, m.NAT)
				}
			}

			if n := netcheck.Unreachable(statuses); n > 0 {
				return fmt.Errorf("%d of %d nodes unreachable", n, len(statuses))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stunList, "stun", "", "comma-separated STUN servers")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "per-check timeout")
	return cmd
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
