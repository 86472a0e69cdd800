package main

import (
	"github.com/spf13/cobra"

	"github.com/go-ctap/walletbridge/pkg/bridge"
)

func newScriptCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "script",
		Short: "Print the page script for the configured bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			script, err := bridge.RenderScript(bridge.ScriptParams{
				Name:      cfg.Bridge.Name,
				Visualize: cfg.Bridge.VisualizeInjection,
				Endpoint:  cfg.ScriptEndpoint(),
			})
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write([]byte(script))
			return err
		},
	}
}
