package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"enoctl/internal/inventory"
	"enoctl/internal/simnode"
)

type simOptions struct {
	Listen       string
	Nodes        int
	Delay        time.Duration
	WriteInvPath string
	Force        bool
	Keep         bool
}

func newSimCommand(opts *rootOptions) *cobra.Command {
	so := &simOptions{}

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run simulated nodes on localhost for dry runs",
		Long: `Start in-process control servers that route SMS and calls to each other
by phone number. The generated inventory is written to --write-inventory so
other enoctl commands can target them with --inventory. An existing file is
only replaced with --force, and the file is removed on exit unless --keep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, opts, so)
		},
	}

	cmd.Flags().StringVar(&so.Listen, "listen", "127.0.0.1", "host to bind the control servers to")
	cmd.Flags().IntVar(&so.Nodes, "nodes", 2, "number of simulated nodes")
	cmd.Flags().DurationVar(&so.Delay, "delay", 500*time.Millisecond, "SMS and call delivery delay")
	cmd.Flags().StringVar(&so.WriteInvPath, "write-inventory", "", "inventory file to write for the simulated nodes")
	cmd.Flags().BoolVar(&so.Force, "force", false, "replace an existing inventory file")
	cmd.Flags().BoolVar(&so.Keep, "keep", false, "keep the inventory file after exit")
	_ = cmd.MarkFlagRequired("write-inventory")
	return cmd
}

func runSim(cmd *cobra.Command, opts *rootOptions, so *simOptions) error {
	if so.Nodes < 1 {
		return errors.New("--nodes must be at least 1")
	}
	invPath, err := inventory.ExpandPath(so.WriteInvPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(invPath); err == nil && !so.Force {
		return fmt.Errorf("%s already exists; pass --force to replace it", invPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	network := simnode.NewNetwork(
		simnode.WithDeliveryDelay(so.Delay),
		simnode.WithLogger(opts.logger),
	)
	servers := make([]*simnode.Server, 0, so.Nodes)
	entries := make([]inventory.Entry, 0, so.Nodes)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(ctx)
		}
	}()

	for i := 1; i <= so.Nodes; i++ {
		name := fmt.Sprintf("sim-%d", i)
		number := fmt.Sprintf("+1555%07d", i)
		s := network.Add(name, number)
		addr, err := s.Start(net.JoinHostPort(so.Listen, "0"))
		if err != nil {
			return err
		}
		servers = append(servers, s)
		entries = append(entries, inventory.Entry{
			Name:        name,
			IPAddress:   "http://" + addr,
			SIM:         fmt.Sprintf("sim%02d", i),
			PhoneNumber: number,
		})
	}

	inv, err := inventory.New(entries...)
	if err != nil {
		return err
	}
	if err := inventory.Save(invPath, inv); err != nil {
		return err
	}
	if !so.Keep {
		defer os.Remove(invPath)
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\t%s\n", e.Name, e.IPAddress, e.PhoneNumber)
	}
	fmt.Fprintf(out, "inventory written to %s; ctrl-c to stop\n", invPath)

	<-cmd.Context().Done()
	return nil
}
