package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/srand/mqrpc/internal/demo"
)

// dial connects a demo client using the root configuration.
func dial(ctx context.Context, opts *RootOptions) (*demo.ServiceClient, error) {
	cfg, logger, err := opts.load()
	if err != nil {
		return nil, err
	}
	clientOpts, err := cfg.ClientOptions(logger)
	if err != nil {
		return nil, err
	}
	return demo.DialService(ctx, cfg.Address, clientOpts...)
}

func parseInts(args []string) ([]int, error) {
	values := make([]int, len(args))
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", arg)
		}
		values[i] = v
	}
	return values, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <a> <b>",
		Short:         "Add two integers remotely",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseInts(args)
			if err != nil {
				return err
			}

			client, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			sum, err := client.Add(cmd.Context(), values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

// NewDivideCommand creates the divide command.
func NewDivideCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "divide <dividend> <divisor>",
		Short:         "Divide two integers remotely, printing quotient and remainder",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseInts(args)
			if err != nil {
				return err
			}

			client, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			quotient, remainder, err := client.Divide(cmd.Context(), values[0], values[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d remainder %d\n", quotient, remainder)
			return nil
		},
	}
}

// NewEchoCommand creates the echo command.
func NewEchoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "echo <message>",
		Short:         "Send a message and print the reply",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			reply, err := client.Echo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

// PutFileOptions holds flags for the put-file command.
type PutFileOptions struct {
	*RootOptions
	Delete bool
}

// NewPutFileCommand creates the put-file command.
func NewPutFileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutFileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put-file <local> <remote>",
		Short: "Copy a local file to a path on the server",
		Long: `Copy a local file to a path on the server. With --delete the remote
path is removed instead and <local> is ignored.

Example:
  mqrpc put-file ./smiley.png /var/tmp/smiley.png`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			if !opts.Delete {
				var err error
				if content, err = os.ReadFile(args[0]); err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				if content == nil {
					content = []byte{}
				}
			}

			client, err := dial(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer client.Close()

			ok, err := client.SetFileToPath(cmd.Context(), args[1], content)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("server could not write %s", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(content), args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the remote file")

	return cmd
}
