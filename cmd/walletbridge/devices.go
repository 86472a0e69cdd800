package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/device"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/sugar"
)

func newDevicesCmd(flags *globalFlags) *cobra.Command {
	var selectKey bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List connected FIDO2 security keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			opts := []options.Option{
				options.WithLogger(newLogger(cfg)),
				options.WithContext(cmd.Context()),
			}

			if selectKey {
				fmt.Fprintln(cmd.OutOrStdout(), "Touch the security key to select it")
				dev, err := sugar.SelectDevice(opts...)
				if err != nil {
					return err
				}
				defer dev.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", dev.Path, joinVersions(dev.GetInfo().Versions))
				return nil
			}

			devInfos, err := sugar.EnumerateFIDODevices(opts...)
			if err != nil {
				return err
			}
			if len(devInfos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No FIDO2 devices found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tVID:PID\tPRODUCT\tVERSIONS\tPIN")
			for _, devInfo := range devInfos {
				versions, pin := "?", "?"

				dev, err := device.New(devInfo.Path, opts...)
				if err == nil {
					info := dev.GetInfo()
					versions = joinVersions(info.Versions)
					pin = clientPINState(info)
					_ = dev.Close()
				}

				fmt.Fprintf(w, "%s\t%04x:%04x\t%s %s\t%s\t%s\n",
					devInfo.Path,
					devInfo.VendorID,
					devInfo.ProductID,
					devInfo.MfrStr,
					devInfo.ProductStr,
					versions,
					pin,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&selectKey, "select", false, "wait for a touch and print the selected key")

	return cmd
}

func joinVersions(versions ctaptypes.Versions) string {
	s := make([]string, 0, len(versions))
	for _, v := range versions {
		s = append(s, string(v))
	}
	return strings.Join(s, ",")
}

func clientPINState(info *ctaptypes.AuthenticatorGetInfoResponse) string {
	set, ok := info.Options[ctaptypes.OptionClientPIN]
	switch {
	case !ok:
		return "unsupported"
	case set:
		return "set"
	default:
		return "not set"
	}
}
