package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/pageclient"
)

func connect(ctx context.Context, flags *globalFlags, endpoint string) (*pageclient.Client, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		endpoint = cfg.ScriptEndpoint()
	}

	c := pageclient.NewClient(endpoint, func(message string) {
		fmt.Fprintln(os.Stderr, "alert:", message)
	}, options.WithLogger(newLogger(cfg)))

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	return c, nil
}

func newCallCmd(flags *globalFlags) *cobra.Command {
	var (
		endpoint string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call METHOD [PARAMS]",
		Short: "Call a bridge method on a running server, as a page would",
		Long: `Call sends METHOD with PARAMS (for create and get, the options JSON
with base64url buffers) to a running "walletbridge serve" and prints
the settlement payload.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := connect(ctx, flags, endpoint)
			if err != nil {
				return err
			}

			method, params := args[0], ""
			if len(args) == 2 {
				params = args[1]
			}

			switch method {
			case bridge.MethodBluetoothGetMode:
				mode, err := c.Mode(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mode)
				return nil
			case bridge.MethodBluetoothSetMode:
				mode, err := c.SetMode(ctx, params)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), mode)
				return nil
			}

			res, err := c.Call(ctx, method, params)
			if res.Payload != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(res.Payload))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "server base URL (default derived from the config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the settlement")

	return cmd
}

func newMenuCmd(flags *globalFlags) *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "menu [INDEX]",
		Short: "List or run the debug menu actions of a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			c, err := connect(ctx, flags, endpoint)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				titles, err := c.DebugMenu(ctx)
				if err != nil {
					return err
				}
				for i, title := range titles {
					fmt.Fprintf(cmd.OutOrStdout(), "%2d  %s\n", i, title)
				}
				return nil
			}

			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			return c.RunDebugAction(ctx, index)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "server base URL (default derived from the config)")

	return cmd
}
