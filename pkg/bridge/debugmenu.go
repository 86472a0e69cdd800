package bridge

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/gatt"
)

// DebugService is the service the debug actions create sessions for.
var DebugService = uuid.MustParse("00179c7a-eec6-4f88-8646-045fda9ac4d8")

// Action is one debug menu entry.
type Action struct {
	Title string
	Run   func()
}

// OpenDebugMenu lists the debug actions in display order.
func (b *Bridge) OpenDebugMenu() []Action {
	service := stringPayload(DebugService.String())

	return []Action{
		{"Show URL Row", func() { b.chromeCall(func(c Chrome) { c.SetNavigationVisible(true) }) }},
		{"Hide URL Row", func() { b.chromeCall(func(c Chrome) { c.SetNavigationVisible(false) }) }},
		{"Set hints to ['security-key']", func() { b.invoke(MethodOverrideHints, []byte(`["security-key"]`)) }},
		{"Set hints to ['client-device']", func() { b.invoke(MethodOverrideHints, []byte(`["client-device"]`)) }},
		{"Set hints to ['emulator']", func() { b.invoke(MethodOverrideHints, []byte(`["emulator"]`)) }},
		{"Reset hints", func() { b.invoke(MethodOverrideHints, []byte(`[]`)) }},
		{"mDoc Mode", func() { b.debugSetMode(gatt.ModeHolder) }},
		{"mDoc Reader Mode (DEFAULT)", func() { b.debugSetMode(gatt.ModeReader) }},
		{"SERVER: Create", func() { b.invoke(MethodBluetoothCreateServer, service) }},
		{"SERVER: Send", func() { b.invoke(MethodBluetoothSendToClient, []byte(`[1,2,3,4,5,6]`)) }},
		{"SERVER: Receive", func() { b.invoke(MethodBluetoothReceiveFromClient, nil) }},
		{"CLIENT: Create", func() { b.invoke(MethodBluetoothCreateClient, service) }},
		{"CLIENT: Send", func() { b.invoke(MethodBluetoothSendToServer, []byte(`[6,5,4,3,2,1]`)) }},
		{"CLIENT: Receive", func() { b.invoke(MethodBluetoothReceiveFromServer, nil) }},
		{"Show status", func() { b.invoke(MethodBluetoothStatus, nil) }},
		{"Terminate All", func() { b.invoke(MethodBluetoothTerminate, nil) }},
		{"Version", func() { b.alert(b.version()) }},
	}
}

// RunDebugAction runs the action at index of OpenDebugMenu.
func (b *Bridge) RunDebugAction(index int) error {
	actions := b.OpenDebugMenu()
	if index < 0 || index >= len(actions) {
		return fmt.Errorf("%w: %d", ErrUnknownAction, index)
	}

	b.logger.Debug("debug action", "title", actions[index].Title)
	actions[index].Run()
	return nil
}

func (b *Bridge) debugSetMode(mode gatt.Mode) {
	if err := b.BluetoothSetMode(mode.String()); err != nil {
		b.alert("Cannot switch to " + mode.String() + ": " + err.Error())
	}
}

func (b *Bridge) chromeCall(fn func(Chrome)) {
	b.post(func() {
		fn(b.chrome)
	})
}

func (b *Bridge) version() string {
	if b.ver == "" {
		return "walletbridge (devel)"
	}
	return "walletbridge " + b.ver
}
