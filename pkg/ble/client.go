package ble

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/gatt"
	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
)

// stateHandshake is written to the State characteristic once the client has
// subscribed to ServerToClient.
var stateHandshake = []byte{0x01}

// Client is the central role: it scans for a peer advertising the service,
// connects, subscribes to ServerToClient and writes to ClientToServer.
type Client struct {
	radio    Radio
	selector *gatt.Selector
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// Internal events are keyed by the session acquired in CreateClient so
// results of a torn down attempt are recognized.
type (
	scanStarted struct {
		session *gatt.Session
		scan    ScanHandle
		failure func()
	}
	scanFailed struct {
		session *gatt.Session
		err     error
		failure func()
	}
	linkOpened struct {
		session *gatt.Session
		link    Link
	}
	linkFailed struct {
		session *gatt.Session
		err     error
	}
)

func (scanStarted) event() {}
func (scanFailed) event()  {}
func (linkOpened) event()  {}
func (linkFailed) event()  {}

func NewClient(radio Radio, selector *gatt.Selector, opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	return &Client{
		radio:    radio,
		selector: selector,
		logger:   oo.Logger.With("role", "client"),
		state:    Disconnected{},
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Status describes the current state, e.g. "Connected(<peer>)".
func (c *Client) Status() string {
	return c.State().String()
}

// CreateClient starts scanning for service. success fires once the service
// is discovered and the handshake is written. failure fires at most once.
func (c *Client) CreateClient(service uuid.UUID, success, failure func()) error {
	failure = sync.OnceFunc(failure)

	if err := c.radio.Check(); err != nil {
		c.logger.Error("cannot create client", "service", service, "err", err)
		failure()
		return err
	}

	c.mu.Lock()
	prev := c.state
	if _, ok := prev.(Disconnected); !ok {
		c.mu.Unlock()
		c.logger.Error("cannot create client", "service", service, "state", prev)
		failure()
		return ErrInvalidState
	}
	session, catalog := c.selector.Acquire()
	next := &Scanning{
		Service: service,
		session: session,
		catalog: catalog,
		success: success,
		failure: failure,
	}
	c.state = next
	c.mu.Unlock()
	c.observe(prev, next)

	scan, err := c.radio.StartScan(service, DefaultScanSettings, c.Handle)
	if err != nil {
		c.Handle(scanFailed{session: session, err: err, failure: failure})
		return err
	}
	c.Handle(scanStarted{session: session, scan: scan, failure: failure})

	return nil
}

// SendToServer writes payload to ClientToServer with response. success
// fires on the write completion.
func (c *Client) SendToServer(payload []byte, success, failure func()) {
	c.mu.Lock()
	cur, ok := c.state.(*Connected)
	if ok {
		next := *cur
		next.pendingWrite = &pendingWrite{success: success, failure: failure}
		c.state = &next
	}
	st := c.state
	c.mu.Unlock()

	if !ok {
		c.logger.Error("cannot send to server", "state", st)
		failure()
		return
	}

	characteristic := cur.catalog.ClientToServer.UUID
	if err := cur.link.Write(characteristic, payload, true); err != nil {
		c.logger.Error("write failed", "characteristic", characteristic, "err", err)
		c.Handle(CharacteristicWrite{Characteristic: characteristic, Status: StatusFailure})
	}
}

// ReceiveFromServer installs the read slot, satisfied by the next
// notification or read of ServerToClient.
func (c *Client) ReceiveFromServer(success func([]byte), failure func()) {
	c.mu.Lock()
	cur, ok := c.state.(*Connected)
	if ok {
		next := *cur
		next.pendingRead = success
		c.state = &next
	}
	st := c.state
	c.mu.Unlock()

	if !ok {
		c.logger.Error("cannot receive from server", "state", st)
		failure()
	}
}

// Disconnect closes the link or stops the scan.
func (c *Client) Disconnect() {
	c.mu.Lock()
	prev := c.state
	if _, ok := prev.(Disconnected); ok {
		c.mu.Unlock()
		c.logger.Debug("already disconnected")
		return
	}
	c.state = Disconnected{}
	c.mu.Unlock()

	c.observe(prev, Disconnected{})
	for _, e := range release(prev, c.logRelease) {
		e()
	}
}

// Handle feeds a radio event into the machine.
func (c *Client) Handle(ev Event) {
	c.mu.Lock()
	prev := c.state
	next, effects := c.transition(prev, ev)
	c.state = next
	c.mu.Unlock()

	c.observe(prev, next)
	for _, e := range effects {
		e()
	}
}

func (c *Client) transition(st State, ev Event) (State, []effect) {
	switch ev := ev.(type) {
	case scanStarted:
		if sessionOf(st) != ev.session {
			return st, append(release(&Scanning{scan: ev.scan}, c.logRelease), ev.failure)
		}
		cur, ok := st.(*Scanning)
		if !ok || cur.Peer != "" {
			// A result was taken before StartScan returned.
			return st, release(&Scanning{scan: ev.scan}, c.logRelease)
		}
		next := *cur
		next.scan = ev.scan
		c.logger.Info("scanning", "service", cur.Service)
		return &next, nil

	case scanFailed:
		c.logger.Error("cannot start scan", "err", ev.err)
		return c.fail(st, ev.session, ev.failure)

	case ScanFailed:
		cur, ok := st.(*Scanning)
		if !ok || cur.Peer != "" {
			c.logger.Debug("scan ended", "err", ev.Err, "state", st)
			return st, nil
		}
		c.logger.Error("scan failed", "service", cur.Service, "err", ev.Err)
		return Disconnected{}, append(release(cur, c.logRelease), cur.failure)

	case ScanResult:
		cur, ok := st.(*Scanning)
		if !ok || cur.Peer != "" {
			return st, nil
		}
		c.logger.Info("found peer", "peer", ev.Peer, "name", ev.Name, "rssi", ev.RSSI)
		next := *cur
		next.Peer = ev.Peer
		next.scan = nil

		var effects []effect
		if cur.scan != nil {
			effects = append(effects, func() {
				if err := cur.scan.Stop(); err != nil {
					c.logRelease("stop scan", err)
				}
			})
		}
		session, peer := cur.session, ev.Peer
		effects = append(effects, func() {
			link, err := c.radio.Connect(peer, c.Handle)
			if err != nil {
				c.Handle(linkFailed{session: session, err: err})
				return
			}
			c.Handle(linkOpened{session: session, link: link})
		})
		return &next, effects

	case linkOpened:
		cur, ok := st.(*Scanning)
		if !ok || cur.session != ev.session {
			return st, release(&Scanning{link: ev.link}, c.logRelease)
		}
		next := *cur
		next.link = ev.link
		if next.linkUp {
			return &next, []effect{c.discover(&next)}
		}
		return &next, nil

	case linkFailed:
		c.logger.Error("cannot connect", "err", ev.err)
		return c.fail(st, ev.session, nil)

	case ConnectionChanged:
		return c.onConnectionChanged(st, ev)

	case ServiceAdded:
		cur, ok := st.(*Scanning)
		if !ok || cur.link == nil {
			c.logger.Error("services discovered while not connecting", "state", st)
			return st, nil
		}
		return c.onDiscovered(cur, ev)

	case CharacteristicWrite:
		cur, ok := st.(*Connected)
		if !ok {
			c.logger.Error("write completed outside a connection", "state", st)
			return st, nil
		}
		switch ev.Characteristic {
		case cur.catalog.ClientToServer.UUID, cur.catalog.ServerToClient.UUID:
		default:
			c.logger.Debug("write completed", "characteristic", ev.Characteristic, "status", ev.Status)
			return st, nil
		}
		w := cur.pendingWrite
		if w == nil {
			return st, nil
		}
		next := *cur
		next.pendingWrite = nil
		if ev.Status != StatusSuccess {
			return &next, []effect{w.failure}
		}
		return &next, []effect{w.success}

	case CharacteristicChanged:
		return c.deliver(st, ev.Characteristic, ev.Value)

	case CharacteristicRead:
		if ev.Status != StatusSuccess {
			c.logger.Error("read failed", "characteristic", ev.Characteristic, "status", ev.Status)
			return st, nil
		}
		return c.deliver(st, ev.Characteristic, ev.Value)

	default:
		c.logger.Debug("ignoring event", "event", ev, "state", st)
		return st, nil
	}
}

func (c *Client) onConnectionChanged(st State, ev ConnectionChanged) (State, []effect) {
	if !ev.Connected {
		switch cur := st.(type) {
		case Disconnected:
			return st, nil
		case *Scanning:
			c.logger.Info("link lost while connecting", "peer", ev.Peer)
			return Disconnected{}, append(release(cur, c.logRelease), cur.failure)
		default:
			c.logger.Info("peer disconnected", "peer", ev.Peer)
			return Disconnected{}, release(st, c.logRelease)
		}
	}

	cur, ok := st.(*Scanning)
	if !ok || cur.linkUp {
		return st, nil
	}
	c.logger.Info("connected", "peer", ev.Peer)
	next := *cur
	next.linkUp = true
	if next.link == nil {
		return &next, nil
	}
	return &next, []effect{c.discover(&next)}
}

func (c *Client) discover(st *Scanning) effect {
	link, service, session := st.link, st.Service, st.session
	return func() {
		if err := link.RequestHighPriority(); err != nil {
			c.logger.Warn("cannot request high connection priority", "err", err)
		}
		if err := link.DiscoverServices(service); err != nil {
			c.logger.Error("cannot discover services", "service", service, "err", err)
			c.Handle(linkFailed{session: session, err: err})
		}
	}
}

func (c *Client) onDiscovered(cur *Scanning, ev ServiceAdded) (State, []effect) {
	if ev.Status != StatusSuccess || ev.Service != cur.Service {
		c.logger.Error("service not found", "service", cur.Service, "status", ev.Status)
		return Disconnected{}, append(release(cur, c.logRelease), cur.failure)
	}

	link := cur.link
	var effects []effect

	serverToClient := cur.catalog.ServerToClient.UUID
	if slices.Contains(ev.Characteristics, serverToClient) {
		effects = append(effects, func() {
			if err := link.EnableNotifications(serverToClient); err != nil {
				c.logger.Error("cannot enable notifications", "characteristic", serverToClient, "err", err)
			}
		})
	} else {
		c.logger.Error("ServerToClient not found", "characteristic", serverToClient)
	}

	state := cur.catalog.State.UUID
	effects = append(effects, func() {
		if err := link.Write(state, stateHandshake, false); err != nil {
			c.logger.Error("cannot write state", "characteristic", state, "err", err)
		}
	}, cur.success)

	return &Connected{
		Service: cur.Service,
		Peer:    cur.Peer,
		link:    link,
		session: cur.session,
		catalog: cur.catalog,
	}, effects
}

func (c *Client) deliver(st State, characteristic uuid.UUID, value []byte) (State, []effect) {
	cur, ok := st.(*Connected)
	if !ok || characteristic != cur.catalog.ServerToClient.UUID || cur.pendingRead == nil {
		return st, nil
	}
	read := cur.pendingRead
	value = slices.Clone(value)
	next := *cur
	next.pendingRead = nil

	return &next, []effect{func() { read(value) }}
}

func sessionOf(st State) *gatt.Session {
	switch s := st.(type) {
	case *Scanning:
		return s.session
	case *Connected:
		return s.session
	default:
		return nil
	}
}

// fail tears down the attempt identified by session and calls the failure
// continuation, or only failure when that attempt is already gone.
func (c *Client) fail(st State, session *gatt.Session, failure func()) (State, []effect) {
	cur, ok := st.(*Scanning)
	if !ok || cur.session != session {
		if failure != nil {
			return st, []effect{failure}
		}
		return st, nil
	}

	return Disconnected{}, append(release(cur, c.logRelease), cur.failure)
}

func (c *Client) observe(prev, next State) {
	if prev.Name() == next.Name() {
		return
	}
	c.logger.Debug("state changed", "from", prev, "to", next)
	metrics.RecordTransition("client", prev.Name(), next.Name())
}

func (c *Client) logRelease(what string, err error) {
	c.logger.Warn("release failed", "op", what, "err", err)
}
