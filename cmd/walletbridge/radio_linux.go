//go:build linux

package main

import (
	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/ble/tinygo"
	"github.com/go-ctap/walletbridge/pkg/options"
)

func newRadio(opts ...options.Option) (ble.Radio, error) {
	return tinygo.New("walletbridge", opts...), nil
}
