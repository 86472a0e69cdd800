package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-ctap/walletbridge/internal/config"
	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/bridge/httphost"
	"github.com/go-ctap/walletbridge/pkg/credentials"
	"github.com/go-ctap/walletbridge/pkg/gatt"
	"github.com/go-ctap/walletbridge/pkg/options"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		noBLE    bool
		emulator bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge to wallet pages over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if noBLE {
				cfg.BLE.Enabled = false
			}
			if emulator {
				cfg.Emulator.Enabled = true
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&noBLE, "no-ble", false, "disable Bluetooth LE")
	cmd.Flags().BoolVar(&emulator, "emulator", false, "enable the in-memory software authenticator")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	opts := []options.Option{
		options.WithLogger(logger),
		options.WithContext(ctx),
		options.WithPollInterval(cfg.SecurityKey.PollInterval),
	}

	securityKey := credentials.NewSecurityKey(
		credentials.HIDSource(opts...),
		terminalPIN{},
		terminalChooser{},
		opts...,
	)
	defer func() {
		_ = securityKey.Close()
	}()

	backends := credentials.Backends{
		SecurityKey: securityKey,
		Platform:    credentials.NewPlatform(nil, opts...),
	}
	if cfg.Emulator.Enabled {
		logger.Warn("software authenticator enabled, credentials are kept in memory only")
		backends.Software = credentials.NewSoftware(opts...)
	}

	loop := bridge.NewMainLoop()
	defer loop.Stop()

	host := httphost.New(opts...)
	bcfg := bridge.Config{
		Name:      cfg.Bridge.Name,
		Visualize: cfg.Bridge.VisualizeInjection,
		Endpoint:  cfg.ScriptEndpoint(),
		Version:   version,
		Page:      host,
		Loop:      loop,
		Backends:  backends,
	}

	if cfg.BLE.Enabled {
		radio, err := newRadio(opts...)
		if err != nil {
			logger.Warn("bluetooth disabled", "err", err)
		} else {
			selector := gatt.NewSelector(cfg.Mode())
			bcfg.Selector = selector
			bcfg.Server = ble.NewServer(radio, selector, opts...)
			bcfg.Client = ble.NewClient(radio, selector, opts...)
			defer bcfg.Server.Disconnect()
			defer bcfg.Client.Disconnect()
		}
	}

	b := bridge.New(bcfg, opts...)
	if err := b.Inject(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           host.Router(b, httphost.RouterConfig{Metrics: cfg.HTTP.Metrics}),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	logger.Info("serving",
		"listen", cfg.HTTP.Listen,
		"script", cfg.ScriptEndpoint()+"/inject.js",
		"bridge", b.Name(),
		"bluetooth", b.Status(),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
