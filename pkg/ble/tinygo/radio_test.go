//go:build linux

package tinygo

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"

	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/gatt"
)

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(errors.New("org.freedesktop.DBus.Error.AccessDenied: denied")), ble.ErrPermission)
	assert.ErrorIs(t, classify(errors.New("org.bluez.Error.NotReady: Resource Not Ready")), ble.ErrAdapterDisabled)
	assert.ErrorIs(t, classify(errors.New("no such adapter")), ble.ErrAdapterUnavailable)
}

func TestFlags(t *testing.T) {
	catalog := gatt.CatalogFor(gatt.ModeReader)

	assert.Equal(t,
		bluetooth.CharacteristicNotifyPermission|bluetooth.CharacteristicWriteWithoutResponsePermission,
		flags(catalog.State.Properties),
	)
	assert.Equal(t,
		bluetooth.CharacteristicNotifyPermission|bluetooth.CharacteristicWritePermission,
		flags(catalog.ServerToClient.Properties),
	)
	assert.Equal(t, bluetooth.CharacteristicReadPermission, flags(catalog.Ident.Properties))
}

func TestUUIDConversion(t *testing.T) {
	id := gatt.CatalogFor(gatt.ModeHolder).ClientToServer.UUID

	b, err := toBluetooth(id)
	assert.NoError(t, err)
	assert.Equal(t, id, fromBluetooth(b))
}

func TestServiceKey(t *testing.T) {
	service := uuid.MustParse("00179c7a-eec6-4f88-8646-045fda9ac4d8")

	reader := serviceKey(ble.NewServiceSpec(service, gatt.CatalogFor(gatt.ModeReader)))
	holder := serviceKey(ble.NewServiceSpec(service, gatt.CatalogFor(gatt.ModeHolder)))
	assert.NotEqual(t, reader, holder)
	assert.Equal(t, reader, serviceKey(ble.NewServiceSpec(service, gatt.CatalogFor(gatt.ModeReader))))
}

func TestServerWritePeerMatchesConnection(t *testing.T) {
	r := New("walletbridge")
	mac, err := bluetooth.ParseMAC("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	device := bluetooth.Device{Address: bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}}

	var got []ble.Event
	events := func(ev ble.Event) { got = append(got, ev) }
	r.serverEvents = events
	s := &server{radio: r, events: events}
	characteristic := gatt.CatalogFor(gatt.ModeReader).ClientToServer.UUID

	r.onConnect(device, true)
	s.onWrite(characteristic, []byte{1, 2})
	r.onConnect(device, false)

	require.Len(t, got, 3)
	connected, ok := got[0].(ble.ConnectionChanged)
	require.True(t, ok)
	write, ok := got[1].(ble.CharacteristicWrite)
	require.True(t, ok)
	assert.Equal(t, connected.Peer, write.Peer)
	assert.Equal(t, device.Address.String(), write.Peer)
	assert.Equal(t, []byte{1, 2}, write.Value)
	assert.Empty(t, r.peer())
}
