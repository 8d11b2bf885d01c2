package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"enoctl/internal/config"
	"enoctl/internal/inventory"
	"enoctl/internal/node"
)

// rootOptions holds global flags and the state built from them before any
// subcommand runs.
type rootOptions struct {
	ConfigPath    string
	InventoryPath string
	Verbose       bool
	LogFormat     string

	cfg    config.Config
	logger *slog.Logger
}

var validLogFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "enoctl",
		Short: "enoctl - drive eno telephony test nodes",
		Long: `Send SMS, place calls and request data through eno nodes, then wait
for the resulting activity to show up in another node's logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.InventoryPath, "inventory", "", "inventory file (default $ENO_INVENTORY or ~/.enorc)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(newNodesCommand(opts))
	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newSMSCommand(opts))
	cmd.AddCommand(newCallCommand(opts))
	cmd.AddCommand(newHangupCommand(opts))
	cmd.AddCommand(newDataCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(newWaitCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newDoctorCommand(opts))
	cmd.AddCommand(newSimCommand(opts))

	return cmd
}

func (o *rootOptions) setup(stderr io.Writer) error {
	if !isValidLogFormat(o.LogFormat) {
		return fmt.Errorf("invalid log format %q: must be one of %v", o.LogFormat, validLogFormats)
	}
	o.logger = newLogger(stderr, o.LogFormat, o.Verbose)

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func isValidLogFormat(format string) bool {
	for _, f := range validLogFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *rootOptions) inventory() (*inventory.Inventory, error) {
	return inventory.Load(config.InventoryPath(o.cfg, o.InventoryPath))
}

func (o *rootOptions) handleOptions() []node.Option {
	return []node.Option{
		node.WithTimeout(o.cfg.HTTPTimeout),
		node.WithLogger(o.logger),
	}
}

// handles resolves names in order against the inventory.
func (o *rootOptions) handles(names ...string) ([]*node.Handle, error) {
	inv, err := o.inventory()
	if err != nil {
		return nil, err
	}
	return inventory.ResolveAll(inv, names, o.handleOptions()...)
}

func (o *rootOptions) handle(name string) (*node.Handle, error) {
	hs, err := o.handles(name)
	if err != nil {
		return nil, err
	}
	return hs[0], nil
}

// phoneOf accepts either a phone number or an inventory node name.
func (o *rootOptions) phoneOf(ref string) (string, error) {
	if looksLikeNumber(ref) {
		return ref, nil
	}
	h, err := o.handle(ref)
	if err != nil {
		return "", err
	}
	if !h.HasPhoneNumber() {
		return "", fmt.Errorf("node %q has no phone_number in inventory", ref)
	}
	return h.PhoneNumber(), nil
}

func looksLikeNumber(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '+' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
