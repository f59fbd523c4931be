package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/srand/mqrpc"
	"github.com/srand/mqrpc/internal/config"
	"github.com/srand/mqrpc/internal/demo"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Mode    string
	Workers int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo service until interrupted",
		Long: `Serve the demo calculator and file manager on the configured address.

Example:
  mqrpc serve --address tcp://127.0.0.1:13777 --mode concurrent --workers 8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "server mode (direct|concurrent), overrides the configuration")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent mode worker count, overrides the configuration")

	return cmd
}

func serve(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if opts.Workers != 0 {
		cfg.Workers = opts.Workers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	serverOpts, err := cfg.ServerOptions(logger)
	if err != nil {
		return err
	}

	server, err := startServer(ctx, cfg, demo.NewServer(logger), serverOpts)
	if err != nil {
		return err
	}

	logger.Info("serving", zap.String("address", cfg.Address), zap.String("mode", cfg.Mode))
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", demo.ServiceContract, cfg.Address)

	<-ctx.Done()
	logger.Info("shutting down")
	return server.Stop()
}

func startServer(ctx context.Context, cfg *config.Config, target demo.Service, opts []mqrpc.Option) (mqrpc.Coordinator, error) {
	if cfg.Mode == config.ModeDirect {
		return mqrpc.Listen(ctx, demo.ServiceContract, target, cfg.Address, opts...)
	}
	return mqrpc.ListenConcurrent(ctx, demo.ServiceContract, target, cfg.Address, opts...)
}
