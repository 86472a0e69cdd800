package ble

import (
	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/gatt"
)

// State is the connection state of one role. Values are immutable; a
// transition produces a new value.
type State interface {
	// Name is the bare state tag.
	Name() string
	String() string
	state()
}

// Disconnected holds no handles.
type Disconnected struct{}

// Scanning is the client searching for, and then connecting to, a peer
// advertising Service.
type Scanning struct {
	Service uuid.UUID
	Peer    string

	scan    ScanHandle
	link    Link
	linkUp  bool
	session *gatt.Session
	catalog gatt.Catalog
	success func()
	failure func()
}

// Advertising is the server waiting for a peer.
type Advertising struct {
	Service uuid.UUID

	server     ServerHandle
	advertiser Advertiser
	session    *gatt.Session
	catalog    gatt.Catalog
	failure    func()
}

// Connected is an established session with Peer. A server holds the GATT
// server handle, a client holds the link.
type Connected struct {
	Service uuid.UUID
	Peer    string

	server  ServerHandle
	link    Link
	session *gatt.Session
	catalog gatt.Catalog

	pendingRead  func([]byte)
	pendingWrite *pendingWrite
}

type pendingWrite struct {
	success func()
	failure func()
}

func (Disconnected) Name() string { return "Disconnected" }
func (*Scanning) Name() string    { return "Scanning" }
func (*Advertising) Name() string { return "Advertising" }
func (*Connected) Name() string   { return "Connected" }

func (Disconnected) String() string   { return "Disconnected" }
func (s *Scanning) String() string    { return "Scanning(" + s.Service.String() + ")" }
func (s *Advertising) String() string { return "Advertising(" + s.Service.String() + ")" }
func (s *Connected) String() string   { return "Connected(" + s.Peer + ")" }

// HasPendingRead reports whether a receive continuation is installed.
func (s *Connected) HasPendingRead() bool { return s.pendingRead != nil }

// HasPendingWrite reports whether a send continuation is installed.
func (s *Connected) HasPendingWrite() bool { return s.pendingWrite != nil }

func (Disconnected) state() {}
func (*Scanning) state()    {}
func (*Advertising) state() {}
func (*Connected) state()   {}

// effect is a side effect produced by a transition. Effects run after the
// state lock is released and may re-enter the machine.
type effect func()

// release returns the effects that free every handle st holds.
func release(st State, log func(msg string, err error)) []effect {
	var effects []effect
	closeWith := func(name string, fn func() error) {
		effects = append(effects, func() {
			if err := fn(); err != nil {
				log(name, err)
			}
		})
	}

	var session *gatt.Session
	switch s := st.(type) {
	case *Scanning:
		if s.scan != nil {
			closeWith("stop scan", s.scan.Stop)
		}
		if s.link != nil {
			closeWith("close link", s.link.Close)
		}
		session = s.session
	case *Advertising:
		if s.advertiser != nil {
			closeWith("stop advertising", s.advertiser.Stop)
		}
		if s.server != nil {
			closeWith("close server", s.server.Close)
		}
		session = s.session
	case *Connected:
		if s.server != nil {
			closeWith("close server", s.server.Close)
		}
		if s.link != nil {
			closeWith("close link", s.link.Close)
		}
		session = s.session
	}
	if session != nil {
		effects = append(effects, session.Release)
	}

	return effects
}
