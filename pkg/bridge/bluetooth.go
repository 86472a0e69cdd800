package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/go-ctap/walletbridge/pkg/gatt"
)

// BluetoothStatus resolves with the mode and both state machines' states.
func (b *Bridge) BluetoothStatus(token, _ string) {
	b.newCall(token, MethodBluetoothStatus).resolve(stringPayload(b.Status()))
}

// Status is the text shown by the debug menu's status action.
func (b *Bridge) Status() string {
	mode := "disabled"
	if b.selector != nil {
		mode = b.selector.Mode().String()
	}
	server := "disabled"
	if b.server != nil {
		server = b.server.Status()
	}
	client := "disabled"
	if b.client != nil {
		client = b.client.Status()
	}

	return fmt.Sprintf("Mode:   %s\n\nServer: %s\n\nClient: %s", mode, server, client)
}

// BluetoothTerminate disconnects both roles and resolves true.
func (b *Bridge) BluetoothTerminate(token, _ string) {
	c := b.newCall(token, MethodBluetoothTerminate)

	if b.server != nil {
		b.server.Disconnect()
	}
	if b.client != nil {
		b.client.Disconnect()
	}
	c.resolve(payloadTrue)
}

func (b *Bridge) BluetoothCreateServer(token, params string) {
	c := b.newCall(token, MethodBluetoothCreateServer)
	if b.server == nil {
		b.bluetoothUnavailable(c, payloadFalse)
		return
	}

	service, err := ParseServiceUUID(params)
	if err != nil {
		b.logger.Error("invalid service uuid", "params", params, "err", err)
		c.reject(payloadFalse)
		return
	}

	_ = b.server.CreateServer(service,
		func() { c.resolve(payloadTrue) },
		func() { c.reject(payloadFalse) },
	)
}

func (b *Bridge) BluetoothCreateClient(token, params string) {
	c := b.newCall(token, MethodBluetoothCreateClient)
	if b.client == nil {
		b.bluetoothUnavailable(c, payloadFalse)
		return
	}

	service, err := ParseServiceUUID(params)
	if err != nil {
		b.logger.Error("invalid service uuid", "params", params, "err", err)
		c.reject(payloadFalse)
		return
	}

	_ = b.client.CreateClient(service,
		func() { c.resolve(payloadTrue) },
		func() { c.reject(payloadFalse) },
	)
}

func (b *Bridge) BluetoothSendToClient(token, params string) {
	c := b.newCall(token, MethodBluetoothSendToClient)
	if b.server == nil {
		b.bluetoothUnavailable(c, payloadFalse)
		return
	}

	payload, err := ParseByteArray(params)
	if err != nil {
		b.logger.Error("invalid payload", "method", c.method, "err", err)
		c.reject(payloadFalse)
		return
	}

	b.server.SendToClient(payload,
		func() { c.resolve(payloadTrue) },
		func() { c.reject(payloadFalse) },
	)
}

func (b *Bridge) BluetoothSendToServer(token, params string) {
	c := b.newCall(token, MethodBluetoothSendToServer)
	if b.client == nil {
		b.bluetoothUnavailable(c, payloadFalse)
		return
	}

	payload, err := ParseByteArray(params)
	if err != nil {
		b.logger.Error("invalid payload", "method", c.method, "err", err)
		c.reject(payloadFalse)
		return
	}

	b.client.SendToServer(payload,
		func() { c.resolve(payloadTrue) },
		func() { c.reject(payloadFalse) },
	)
}

func (b *Bridge) BluetoothReceiveFromClient(token, _ string) {
	c := b.newCall(token, MethodBluetoothReceiveFromClient)
	if b.server == nil {
		b.bluetoothUnavailable(c, payloadNull)
		return
	}

	b.server.ReceiveFromClient(
		func(data []byte) { c.resolve(byteArrayPayload(data)) },
		func() { c.reject(payloadNull) },
	)
}

func (b *Bridge) BluetoothReceiveFromServer(token, _ string) {
	c := b.newCall(token, MethodBluetoothReceiveFromServer)
	if b.client == nil {
		b.bluetoothUnavailable(c, payloadFalse)
		return
	}

	b.client.ReceiveFromServer(
		func(data []byte) { c.resolve(byteArrayPayload(data)) },
		func() { c.reject(payloadFalse) },
	)
}

// BluetoothSetMode selects the characteristic catalog for the next session.
// Unknown names are ignored; gatt.ErrSessionActive is returned while a
// session is running.
func (b *Bridge) BluetoothSetMode(name string) error {
	if b.selector == nil {
		return ErrBluetoothDisabled
	}

	mode, ok := gatt.ParseMode(name)
	if !ok {
		b.logger.Warn("ignoring unknown bluetooth mode", "mode", name)
		return nil
	}
	if err := b.selector.SetMode(mode); err != nil {
		b.logger.Error("cannot change bluetooth mode", "mode", name, "err", err)
		return err
	}

	b.logger.Info("bluetooth mode changed", "mode", mode)
	return nil
}

// BluetoothGetMode returns the current mode name.
func (b *Bridge) BluetoothGetMode() string {
	if b.selector == nil {
		return ""
	}
	return b.selector.Mode().String()
}

func (b *Bridge) bluetoothUnavailable(c *call, payload json.RawMessage) {
	b.logger.Error("bluetooth call without radio", "method", c.method, "err", ErrBluetoothDisabled)
	c.reject(payload)
}

// ParseServiceUUID accepts a bare or JSON-quoted UUID.
func ParseServiceUUID(params string) (uuid.UUID, error) {
	s := strings.TrimSpace(params)

	var quoted string
	if err := json.Unmarshal([]byte(s), &quoted); err == nil {
		s = quoted
	}
	return uuid.Parse(s)
}

// ParseByteArray decodes a JSON array of numbers in -128..255 into bytes.
// Elements that are not integers are dropped.
func ParseByteArray(params string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(params)))
	dec.UseNumber()

	var elems []any
	if err := dec.Decode(&elems); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidByteArray, err)
	}

	out := make([]byte, 0, len(elems))
	for i, elem := range elems {
		n, ok := elem.(json.Number)
		if !ok {
			continue
		}
		v, err := n.Int64()
		if err != nil {
			continue
		}
		if v < -128 || v > 255 {
			return nil, fmt.Errorf("%w: element %d out of range: %d", ErrInvalidByteArray, i, v)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func byteArrayPayload(data []byte) json.RawMessage {
	b, _ := json.Marshal(lo.Map(data, func(v byte, _ int) int {
		return int(v)
	}))
	return b
}
