package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-ctap/walletbridge/internal/config"
)

type globalFlags struct {
	configFile string
	logLevel   string
	listen     string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "walletbridge",
		Short: "Bridge a wallet web page to security keys and Bluetooth LE",
		Long: `walletbridge injects a script into a wallet page that replaces
navigator.credentials with native ceremonies (CTAP2 security keys over
HID, or a software authenticator) and exposes a Bluetooth LE GATT
server/client for proximity presentation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "",
		"config file (default is "+config.DefaultConfigPath()+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"log level (debug, info, warn, error); overrides log_level")
	root.PersistentFlags().StringVar(&flags.listen, "listen", "",
		"HTTP listen address; overrides http.listen")

	root.AddCommand(
		newServeCmd(flags),
		newDevicesCmd(flags),
		newScriptCmd(flags),
		newConfigCmd(flags),
		newCallCmd(flags),
		newMenuCmd(flags),
		newVersionCmd(),
	)

	return root
}

func (f *globalFlags) path() string {
	if f.configFile != "" {
		return f.configFile
	}
	return config.DefaultConfigPath()
}

// load reads the config file, falling back to defaults when the default
// file does not exist, and applies flag overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.path())
	switch {
	case errors.Is(err, fs.ErrNotExist) && f.configFile == "":
		cfg = config.Default()
	case err != nil:
		return nil, err
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.listen != "" {
		cfg.HTTP.Listen = f.listen
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.path(), err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	lvl := new(slog.LevelVar)
	level, err := cfg.Level()
	if err == nil {
		lvl.Set(level)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if v == "" {
				v = "(devel)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), "walletbridge", v)
		},
	}
}
