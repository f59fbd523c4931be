// Package cli implements the mqrpc command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srand/mqrpc/internal/config"

	_ "github.com/srand/mqrpc/transport/http"
	_ "github.com/srand/mqrpc/transport/inproc"
	_ "github.com/srand/mqrpc/transport/mqtt"
	_ "github.com/srand/mqrpc/transport/tcp"
	_ "github.com/srand/mqrpc/transport/unix"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Address    string
	LogLevel   string
}

// NewRootCommand creates the root command for the mqrpc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mqrpc",
		Short: "mqrpc - RPC over message queues",
		Long:  "Serve and call the demo calculator and file manager over any mqrpc transport.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVarP(&opts.Address, "address", "a", "", "endpoint address, overrides the configuration (e.g. tcp://127.0.0.1:13777)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the configuration")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewDivideCommand(opts))
	cmd.AddCommand(NewEchoCommand(opts))
	cmd.AddCommand(NewPutFileCommand(opts))

	return cmd
}

// load returns the configuration with flag overrides applied, and its logger.
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg := config.Default()
	if o.ConfigFile != "" {
		var err error
		if cfg, err = config.Load(o.ConfigFile); err != nil {
			return nil, nil, err
		}
	}
	if o.Address != "" {
		cfg.Address = o.Address
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
