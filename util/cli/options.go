package cli

import (
	"context"
	"time"

	"github.com/sheetbridge/persistence/models/common"
	"github.com/spf13/cobra"
)

// Options are the flags every command shares.
type Options struct {
	ConfigDir  string
	ConfigName string
	JSON       bool
	Timeout    time.Duration
}

var defaultTimeout = 5 * time.Minute

var EnvMessage = `If you don't set --config-dir and --config-name on the command line,
this requires the following environment vars:

PO_CONFIG_DIR - Path to the directory containing the .env settings file.

PO_ENV - Name of the configuration to load. For example:
    test - Loads .env.test from PO_CONFIG_DIR
    dev  - Loads .env.dev from PO_CONFIG_DIR
`

// AddFlags registers the shared flags on cmd and all its subcommands.
func AddFlags(cmd *cobra.Command, opts *Options) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigDir, "config-dir", "", "Directory containing the .env settings file (default $PO_CONFIG_DIR)")
	flags.StringVar(&opts.ConfigName, "config-name", "", "Name of the configuration to load (default $PO_ENV)")
	flags.BoolVar(&opts.JSON, "json", false, "Print results as JSON")
	flags.DurationVar(&opts.Timeout, "timeout", defaultTimeout, "Give up on the whole command after this long. Format examples: 500ms, 12s, 10m")
}

// LoadContext builds a common.Context from the flags, or from the
// environment if the flags are not set.
func LoadContext(opts *Options) (*common.Context, error) {
	if opts.ConfigDir == "" || opts.ConfigName == "" {
		return common.NewContextFromConfig(common.NewConfig(), nil)
	}
	config, err := common.LoadConfig(opts.ConfigDir, opts.ConfigName)
	if err != nil {
		return nil, err
	}
	return common.NewContextFromConfig(config, nil)
}

// CommandContext returns a context that ends after opts.Timeout.
func CommandContext(parent context.Context, opts *Options) (context.Context, context.CancelFunc) {
	if opts.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, opts.Timeout)
}
