package gatt

import (
	"github.com/google/uuid"
)

// Mode selects which catalog the service exposes.
type Mode uint8

const (
	// ModeReader is the default. It serves the reader characteristics,
	// including Ident.
	ModeReader Mode = iota
	// ModeHolder serves the holder (mDoc) characteristics.
	ModeHolder
)

func (m Mode) String() string {
	switch m {
	case ModeHolder:
		return "MDoc"
	case ModeReader:
		return "MDocReader"
	default:
		return "Mode(?)"
	}
}

// ParseMode maps a mode name as shown by Mode.String back to a Mode.
func ParseMode(name string) (Mode, bool) {
	switch name {
	case "MDoc":
		return ModeHolder, true
	case "MDocReader":
		return ModeReader, true
	default:
		return 0, false
	}
}

// Catalog is the fixed set of characteristics served in one mode.
type Catalog struct {
	Mode           Mode
	State          Characteristic
	ClientToServer Characteristic
	ServerToClient Characteristic
	// Ident is only present in reader mode.
	Ident *Characteristic
}

func characteristicUUID(n byte) uuid.UUID {
	u := uuid.MustParse("00000000-A123-48CE-896B-4C76973373E6")
	u[3] = n
	return u
}

func newCatalog(mode Mode, first byte) Catalog {
	return Catalog{
		Mode: mode,
		State: Characteristic{
			Role:        RoleState,
			UUID:        characteristicUUID(first),
			Properties:  PropertyNotify | PropertyWriteWithoutResponse,
			Permissions: PermissionWrite,
		},
		ClientToServer: Characteristic{
			Role:        RoleClientToServer,
			UUID:        characteristicUUID(first + 1),
			Properties:  PropertyWriteWithoutResponse | PropertyNotify,
			Permissions: PermissionWrite,
		},
		ServerToClient: Characteristic{
			Role:        RoleServerToClient,
			UUID:        characteristicUUID(first + 2),
			Properties:  PropertyNotify | PropertyWrite,
			Permissions: PermissionWrite,
		},
	}
}

// CatalogFor returns the catalog of mode.
func CatalogFor(mode Mode) Catalog {
	if mode == ModeHolder {
		return newCatalog(ModeHolder, 0x01)
	}

	c := newCatalog(ModeReader, 0x05)
	c.Ident = &Characteristic{
		Role:        RoleIdent,
		UUID:        characteristicUUID(0x08),
		Properties:  PropertyRead,
		Permissions: PermissionRead,
	}
	return c
}

// All lists the characteristics in registration order.
func (c Catalog) All() []Characteristic {
	all := []Characteristic{c.State, c.ClientToServer, c.ServerToClient}
	if c.Ident != nil {
		all = append(all, *c.Ident)
	}
	return all
}

// Lookup finds the characteristic with the given UUID.
func (c Catalog) Lookup(id uuid.UUID) (Characteristic, bool) {
	for _, ch := range c.All() {
		if ch.UUID == id {
			return ch, true
		}
	}
	return Characteristic{}, false
}
