package sugar

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/device"
	"github.com/go-ctap/walletbridge/pkg/options"
	ghid "github.com/go-ctap/hid"
	"github.com/samber/lo"

	"github.com/samber/mo"
)

const (
	// fidoUsagePage and fidoUsage identify a CTAPHID interface.
	fidoUsagePage = 0xf1d0
	fidoUsage     = 0x01
)

var ErrNoSupportedDevices = errors.New("sugar: no supported devices found")

// IsFIDO reports whether the HID interface is a FIDO authenticator.
func IsFIDO(devInfo *ghid.DeviceInfo) bool {
	return devInfo.UsagePage == fidoUsagePage && devInfo.Usage == fidoUsage
}

// EnumerateFIDODevices lists the connected FIDO HID interfaces.
func EnumerateFIDODevices(opts ...options.Option) ([]*ghid.DeviceInfo, error) {
	oo := options.NewOptions(opts...)

	devInfos := make([]*ghid.DeviceInfo, 0)
	for devInfo, err := range device.Enumerate(oo.Context) {
		if err != nil {
			return nil, err
		}

		if !IsFIDO(devInfo) {
			continue
		}

		devInfos = append(devInfos, devInfo)
	}

	return devInfos, nil
}

// Opener opens the authenticator at path.
type Opener func(path string) (*device.Device, error)

// SelectDevice allows selecting a device by confirming presence;
// useful while a user has many tokens connected. Works only with FIDO 2.1 tokens (including PRE).
func SelectDevice(opts ...options.Option) (*device.Device, error) {
	oo := options.NewOptions(opts...)

	if oo.Paths == nil {
		devInfos, err := EnumerateFIDODevices(opts...)
		if err != nil {
			return nil, err
		}
		oo.Paths = lo.Map[*ghid.DeviceInfo, string](devInfos, func(devInfo *ghid.DeviceInfo, _ int) string {
			return devInfo.Path
		})
	}

	return Select(oo.Context, oo.Paths, func(path string) (*device.Device, error) {
		return device.New(path, opts...)
	})
}

// Select opens every path with open and returns the first device the user
// touches. The other devices are closed. A single path is opened without
// asking for a touch.
func Select(ctx context.Context, paths []string, open Opener) (*device.Device, error) {
	switch len(paths) {
	case 0:
		return nil, ErrNoSupportedDevices
	case 1:
		return open(paths[0])
	}

	devices := make([]*device.Device, 0)
	closeAll := func(keep *device.Device) {
		for _, dev := range devices {
			if dev != keep {
				_ = dev.Close()
			}
		}
	}

	// Here we will receive either a device or an error from first success Selection() call.
	selection := make(chan mo.Either[*device.Device, error], len(paths))

	// WaitGroup allows us to wait for all Selection() calls to finish.
	var wg sync.WaitGroup
	// Return only first successful Selection() call.
	var once sync.Once

	// It will allow us to cancel all other active Selection() calls
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, p := range paths {
		dev, err := open(p)
		if err != nil {
			cancel()
			wg.Wait()
			closeAll(nil)
			return nil, err
		}

		info := dev.GetInfo()
		if !info.Versions.Supports(ctaptypes.FIDO_2_1) &&
			!info.Versions.Supports(ctaptypes.FIDO_2_1_PRE) {
			// We need to close this device because it's not supported.
			_ = dev.Close()
			continue
		}

		wg.Add(1)
		go func(dev *device.Device) {
			defer wg.Done()

			// Selection() will block until ctx is canceled or a device is selected.
			err := dev.Selection(ctx)

			if !errors.Is(ctx.Err(), context.Canceled) {
				once.Do(func() {
					cancel()
					if err != nil {
						selection <- mo.Right[*device.Device, error](err)
						return
					}
					selection <- mo.Left[*device.Device, error](dev)
				})
			}
		}(dev)

		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, ErrNoSupportedDevices
	}

	wg.Wait()

	var sel mo.Either[*device.Device, error]
	select {
	case sel = <-selection:
	default:
		// Every Selection() ended by cancellation of the parent context.
		closeAll(nil)
		return nil, ctx.Err()
	}

	if err, ok := sel.Right(); ok {
		closeAll(nil)
		return nil, err
	}
	selectedDev := sel.MustLeft()
	closeAll(selectedDev)

	return selectedDev, nil
}
