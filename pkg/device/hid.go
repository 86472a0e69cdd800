package device

import (
	"context"
	"errors"
	"io"
	"iter"

	ghid "github.com/go-ctap/hid"
	"github.com/sstallion/go-hid"
)

var errStopEnumeration = errors.New("device: stop enumeration")

// Enumerate yields every HID interface visible to hidapi.
// The context is checked between devices.
func Enumerate(ctx context.Context) iter.Seq2[*ghid.DeviceInfo, error] {
	return func(yield func(*ghid.DeviceInfo, error) bool) {
		if err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if !yield(&ghid.DeviceInfo{
				Path:         info.Path,
				VendorID:     info.VendorID,
				ProductID:    info.ProductID,
				SerialNbr:    info.SerialNbr,
				ReleaseNbr:   info.ReleaseNbr,
				MfrStr:       info.MfrStr,
				ProductStr:   info.ProductStr,
				UsagePage:    info.UsagePage,
				Usage:        info.Usage,
				InterfaceNbr: info.InterfaceNbr,
			}, nil) {
				return errStopEnumeration
			}

			return nil
		}); err != nil && !errors.Is(err, errStopEnumeration) {
			yield(nil, err)
		}
	}
}

// OpenPath opens the HID interface at path.
func OpenPath(path string) (io.ReadWriteCloser, error) {
	return hid.OpenPath(path)
}
