// Package gatt describes the single GATT service used for mDoc proximity
// exchange: its characteristic catalogs and the mode selector choosing
// between them.
package gatt

import (
	"strings"

	"github.com/google/uuid"
)

// Property is a GATT characteristic property bitmask. Values match the
// Android BluetoothGattCharacteristic constants.
type Property uint8

const (
	PropertyBroadcast            Property = 0x01
	PropertyRead                 Property = 0x02
	PropertyWriteWithoutResponse Property = 0x04
	PropertyWrite                Property = 0x08
	PropertyNotify               Property = 0x10
	PropertyIndicate             Property = 0x20
	PropertySignedWrite          Property = 0x40
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropertyBroadcast, "broadcast"},
	{PropertyRead, "read"},
	{PropertyWriteWithoutResponse, "writeWithoutResponse"},
	{PropertyWrite, "write"},
	{PropertyNotify, "notify"},
	{PropertyIndicate, "indicate"},
	{PropertySignedWrite, "signedWrite"},
}

func (p Property) Has(flag Property) bool {
	return p&flag == flag
}

func (p Property) String() string {
	var names []string
	for _, n := range propertyNames {
		if p.Has(n.p) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Permission is a GATT attribute permission bitmask.
type Permission uint16

const (
	PermissionRead               Permission = 0x01
	PermissionReadEncrypted      Permission = 0x02
	PermissionReadEncryptedMITM  Permission = 0x04
	PermissionWrite              Permission = 0x10
	PermissionWriteEncrypted     Permission = 0x20
	PermissionWriteEncryptedMITM Permission = 0x40
	PermissionWriteSigned        Permission = 0x80
	PermissionWriteSignedMITM    Permission = 0x100
)

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// Role names the logical purpose of a characteristic within the service.
type Role string

const (
	RoleState          Role = "State"
	RoleClientToServer Role = "ClientToServer"
	RoleServerToClient Role = "ServerToClient"
	RoleIdent          Role = "Ident"
)

// ClientCharacteristicConfigUUID is the standard CCCD.
var ClientCharacteristicConfigUUID = uuid.MustParse("00002902-0000-1000-8000-00805f9b34fb")

var (
	EnableNotificationValue = []byte{0x01, 0x00}
	EnableIndicationValue   = []byte{0x02, 0x00}
)

// Descriptor is a characteristic descriptor together with its initial value.
type Descriptor struct {
	UUID        uuid.UUID
	Permissions Permission
	Value       []byte
}

// Characteristic is one entry of a catalog.
type Characteristic struct {
	Role        Role
	UUID        uuid.UUID
	Properties  Property
	Permissions Permission
}

// Descriptors returns the descriptors a server registers for c. Every
// notifying characteristic carries a CCCD preset to indications.
func (c Characteristic) Descriptors() []Descriptor {
	if !c.Properties.Has(PropertyNotify) {
		return nil
	}
	return []Descriptor{{
		UUID:        ClientCharacteristicConfigUUID,
		Permissions: PermissionWrite,
		Value:       append([]byte(nil), EnableIndicationValue...),
	}}
}
