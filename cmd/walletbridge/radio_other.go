//go:build !linux

package main

import (
	"errors"

	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/options"
)

func newRadio(...options.Option) (ble.Radio, error) {
	return nil, errors.New("bluetooth LE is only supported on linux")
}
