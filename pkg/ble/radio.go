// Package ble implements the two roles of the proximity transport: a GATT
// server that advertises the service and a GATT client that scans for it.
// Both are small state machines driven by events from a Radio.
package ble

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/gatt"
)

var (
	ErrPermission         = errors.New("ble: bluetooth permissions not granted")
	ErrAdapterUnavailable = errors.New("ble: bluetooth adapter not available")
	ErrAdapterDisabled    = errors.New("ble: bluetooth adapter disabled")
	ErrInvalidState       = errors.New("ble: operation not allowed in current state")
	ErrServiceNotFound    = errors.New("ble: service not found on peer")
)

// Status is a GATT operation status as reported by the radio.
type Status int

const (
	StatusSuccess Status = 0
	StatusFailure Status = 0x101
)

type AdvertiseMode int

const (
	AdvertiseModeLowPower AdvertiseMode = iota
	AdvertiseModeBalanced
	AdvertiseModeLowLatency
)

type TxPowerLevel int

const (
	TxPowerUltraLow TxPowerLevel = iota
	TxPowerLow
	TxPowerMedium
	TxPowerHigh
)

// AdvertiseSettings control how the service UUID is advertised.
// A zero Timeout advertises until stopped.
type AdvertiseSettings struct {
	Mode           AdvertiseMode
	TxPower        TxPowerLevel
	Connectable    bool
	Timeout        time.Duration
	IncludeTxPower bool
}

// DefaultAdvertiseSettings are the settings used by Server.
var DefaultAdvertiseSettings = AdvertiseSettings{
	Mode:        AdvertiseModeLowLatency,
	TxPower:     TxPowerMedium,
	Connectable: true,
}

type ScanMode int

const (
	ScanModeLowPower ScanMode = iota
	ScanModeBalanced
	ScanModeLowLatency
)

type ScanCallbackType int

const (
	ScanCallbackAllMatches ScanCallbackType = 1
	ScanCallbackFirstMatch ScanCallbackType = 2
)

type ScanSettings struct {
	Mode         ScanMode
	CallbackType ScanCallbackType
}

// DefaultScanSettings are the settings used by Client.
var DefaultScanSettings = ScanSettings{
	Mode:         ScanModeLowLatency,
	CallbackType: ScanCallbackAllMatches,
}

// CharacteristicSpec is a characteristic registered on the local server.
type CharacteristicSpec struct {
	gatt.Characteristic
	Descriptors []gatt.Descriptor
}

// ServiceSpec is the primary service registered on the local server.
type ServiceSpec struct {
	Service         uuid.UUID
	Characteristics []CharacteristicSpec
}

// NewServiceSpec builds the service for catalog, with a CCCD on every
// notifying characteristic.
func NewServiceSpec(service uuid.UUID, catalog gatt.Catalog) ServiceSpec {
	spec := ServiceSpec{Service: service}
	for _, c := range catalog.All() {
		spec.Characteristics = append(spec.Characteristics, CharacteristicSpec{
			Characteristic: c,
			Descriptors:    c.Descriptors(),
		})
	}
	return spec
}

// Radio is the platform BLE stack. Event callbacks may be invoked from any
// goroutine.
type Radio interface {
	// Check verifies permissions and adapter state. It returns ErrPermission,
	// ErrAdapterUnavailable or ErrAdapterDisabled.
	Check() error
	OpenServer(spec ServiceSpec, events func(Event)) (ServerHandle, error)
	StartAdvertising(service uuid.UUID, settings AdvertiseSettings, events func(Event)) (Advertiser, error)
	StartScan(filter uuid.UUID, settings ScanSettings, events func(Event)) (ScanHandle, error)
	// Connect opens an LE link to peer without auto-connect.
	Connect(peer string, events func(Event)) (Link, error)
}

// ServerHandle is an open local GATT server.
type ServerHandle interface {
	Notify(peer string, characteristic uuid.UUID, value []byte, confirm bool) error
	Respond(peer string, requestID int, status Status, value []byte) error
	Close() error
}

type Advertiser interface {
	Stop() error
}

type ScanHandle interface {
	Stop() error
}

// Link is a client connection to a remote GATT server. DiscoverServices,
// Write and Read complete asynchronously through events.
type Link interface {
	RequestHighPriority() error
	DiscoverServices(service uuid.UUID) error
	EnableNotifications(characteristic uuid.UUID) error
	Write(characteristic uuid.UUID, value []byte, withResponse bool) error
	Read(characteristic uuid.UUID) error
	Close() error
}
