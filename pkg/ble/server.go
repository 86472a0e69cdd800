package ble

import (
	"encoding/hex"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/gatt"
	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
)

// Server is the peripheral role: it advertises the service, accepts one
// peer and exchanges payloads over the ClientToServer and ServerToClient
// characteristics.
type Server struct {
	radio    Radio
	selector *gatt.Selector
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

type advertisingStarted struct {
	target     *Advertising
	server     ServerHandle
	advertiser Advertiser
	success    func()
}

type advertisingFailed struct {
	target *Advertising
	server ServerHandle
	err    error
}

func (advertisingStarted) event() {}
func (advertisingFailed) event()  {}

func NewServer(radio Radio, selector *gatt.Selector, opts ...options.Option) *Server {
	oo := options.NewOptions(opts...)

	return &Server{
		radio:    radio,
		selector: selector,
		logger:   oo.Logger.With("role", "server"),
		state:    Disconnected{},
	}
}

// State returns the current state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Status describes the current state, e.g. "Advertising(<service>)".
func (s *Server) Status() string {
	return s.State().String()
}

// CreateServer registers the service, starts advertising it and moves to
// Advertising. Precondition failures call failure and are returned.
func (s *Server) CreateServer(service uuid.UUID, success, failure func()) error {
	if err := s.radio.Check(); err != nil {
		s.logger.Error("cannot create server", "service", service, "err", err)
		failure()
		return err
	}

	s.mu.Lock()
	prev := s.state
	if _, ok := prev.(Disconnected); !ok {
		s.mu.Unlock()
		s.logger.Error("cannot create server", "service", service, "state", prev)
		failure()
		return ErrInvalidState
	}
	session, catalog := s.selector.Acquire()
	target := &Advertising{
		Service: service,
		session: session,
		catalog: catalog,
		failure: failure,
	}
	s.state = target
	s.mu.Unlock()
	s.observe(prev, target)

	server, err := s.radio.OpenServer(NewServiceSpec(service, catalog), s.Handle)
	if err != nil {
		s.Handle(advertisingFailed{target: target, err: err})
		return err
	}

	advertiser, err := s.radio.StartAdvertising(service, DefaultAdvertiseSettings, s.Handle)
	if err != nil {
		s.Handle(advertisingFailed{target: target, server: server, err: err})
		return err
	}

	s.Handle(advertisingStarted{
		target:     target,
		server:     server,
		advertiser: advertiser,
		success:    success,
	})

	return nil
}

// SendToClient notifies the peer on ServerToClient and reports the outcome
// of the notify call itself.
func (s *Server) SendToClient(payload []byte, success, failure func()) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	cur, ok := st.(*Connected)
	if !ok {
		s.logger.Error("cannot send to client", "state", st)
		failure()
		return
	}

	characteristic := cur.catalog.ServerToClient.UUID
	if err := cur.server.Notify(cur.Peer, characteristic, payload, true); err != nil {
		s.logger.Error("notify failed", "characteristic", characteristic, "err", err)
		failure()
		return
	}
	success()
}

// ReceiveFromClient installs the read slot, replacing any earlier one. It
// is satisfied by the next write to ClientToServer.
func (s *Server) ReceiveFromClient(success func([]byte), failure func()) {
	s.mu.Lock()
	cur, ok := s.state.(*Connected)
	if ok {
		next := *cur
		next.pendingRead = success
		s.state = &next
	}
	st := s.state
	s.mu.Unlock()

	if !ok {
		s.logger.Error("cannot receive from client", "state", st)
		failure()
	}
}

// Disconnect tears the session down from any state.
func (s *Server) Disconnect() {
	s.mu.Lock()
	prev := s.state
	if _, ok := prev.(Disconnected); ok {
		s.mu.Unlock()
		s.logger.Debug("already disconnected")
		return
	}
	s.state = Disconnected{}
	s.mu.Unlock()

	s.observe(prev, Disconnected{})
	for _, e := range release(prev, s.logRelease) {
		e()
	}
}

// Handle feeds a radio event into the machine.
func (s *Server) Handle(ev Event) {
	s.mu.Lock()
	prev := s.state
	next, effects := s.transition(prev, ev)
	s.state = next
	s.mu.Unlock()

	s.observe(prev, next)
	for _, e := range effects {
		e()
	}
}

func (s *Server) transition(st State, ev Event) (State, []effect) {
	switch ev := ev.(type) {
	case advertisingStarted:
		cur, ok := st.(*Advertising)
		if !ok || cur != ev.target {
			// Torn down while the radio was starting.
			orphan := &Advertising{server: ev.server, advertiser: ev.advertiser}
			return st, append(release(orphan, s.logRelease), ev.target.failure)
		}
		next := *cur
		next.server = ev.server
		next.advertiser = ev.advertiser
		s.logger.Info("advertising", "service", cur.Service)
		return &next, []effect{ev.success}

	case advertisingFailed:
		s.logger.Error("cannot start advertising", "service", ev.target.Service, "err", ev.err)
		cur, ok := st.(*Advertising)
		if !ok || cur != ev.target {
			orphan := &Advertising{server: ev.server}
			return st, append(release(orphan, s.logRelease), ev.target.failure)
		}
		next := *cur
		next.server = ev.server
		return Disconnected{}, append(release(&next, s.logRelease), cur.failure)

	case ConnectionChanged:
		return s.onConnectionChanged(st, ev)

	case ServiceAdded:
		if ev.Status == StatusSuccess {
			s.logger.Debug("service added", "service", ev.Service)
			return st, nil
		}
		cur, ok := st.(*Advertising)
		if !ok {
			s.logger.Warn("service add failed", "service", ev.Service, "status", ev.Status, "state", st)
			return st, nil
		}
		s.logger.Error("service add failed", "service", ev.Service, "status", ev.Status)
		return Disconnected{}, append(release(cur, s.logRelease), cur.failure)

	case CharacteristicWrite:
		switch cur := st.(type) {
		case *Connected:
			return s.onWrite(cur, ev)
		case *Advertising:
			s.logger.Warn("write while advertising", "characteristic", ev.Characteristic)
			if ev.ResponseNeeded && cur.server != nil {
				return st, []effect{s.respond(cur.server, ev.Peer, ev.RequestID, StatusFailure, nil)}
			}
		}
		return st, nil

	case CharacteristicRead:
		cur, ok := st.(*Connected)
		if !ok {
			s.logger.Warn("read request outside a connection", "characteristic", ev.Characteristic, "state", st)
			return st, nil
		}
		return s.onRead(cur, ev)

	case DescriptorWrite:
		s.logger.Debug("descriptor write",
			"characteristic", ev.Characteristic,
			"descriptor", ev.Descriptor,
			"value", hex.EncodeToString(ev.Value),
		)
		server := serverHandle(st)
		if ev.ResponseNeeded && server != nil {
			return st, []effect{s.respond(server, ev.Peer, ev.RequestID, StatusSuccess, nil)}
		}
		return st, nil

	default:
		s.logger.Debug("ignoring event", "event", ev, "state", st)
		return st, nil
	}
}

func (s *Server) onConnectionChanged(st State, ev ConnectionChanged) (State, []effect) {
	if !ev.Connected {
		if _, ok := st.(Disconnected); ok {
			return st, nil
		}
		s.logger.Info("peer disconnected", "peer", ev.Peer)
		return Disconnected{}, release(st, s.logRelease)
	}

	switch cur := st.(type) {
	case *Advertising:
		if cur.server == nil {
			s.logger.Warn("peer connected before advertising started", "peer", ev.Peer)
			return st, nil
		}
		s.logger.Info("peer connected", "peer", ev.Peer)
		next := &Connected{
			Service: cur.Service,
			Peer:    ev.Peer,
			server:  cur.server,
			session: cur.session,
			catalog: cur.catalog,
		}
		var effects []effect
		if cur.advertiser != nil {
			effects = append(effects, func() {
				if err := cur.advertiser.Stop(); err != nil {
					s.logRelease("stop advertising", err)
				}
			})
		}
		return next, effects
	case *Connected:
		s.logger.Warn("ignoring second peer", "peer", ev.Peer, "connected", cur.Peer)
	}

	return st, nil
}

func (s *Server) onWrite(cur *Connected, ev CharacteristicWrite) (State, []effect) {
	var next State = cur
	var effects []effect
	status := StatusSuccess
	value := slices.Clone(ev.Value)

	switch {
	case len(value) == 0:
		s.logger.Error("empty write", "characteristic", ev.Characteristic)
		status = StatusFailure
	case ev.Characteristic == cur.catalog.ClientToServer.UUID:
		effects = append(effects, func() {
			if err := cur.server.Notify(cur.Peer, ev.Characteristic, value, false); err != nil {
				s.logger.Error("echo failed", "characteristic", ev.Characteristic, "err", err)
			}
		})
		if read := cur.pendingRead; read != nil {
			n := *cur
			n.pendingRead = nil
			next = &n
			effects = append(effects, func() { read(value) })
		}
	case ev.Characteristic == cur.catalog.ServerToClient.UUID:
	case ev.Characteristic == cur.catalog.State.UUID:
		s.logger.Debug("state written", "value", hex.EncodeToString(value))
	default:
		s.logger.Error("write to unknown characteristic", "characteristic", ev.Characteristic)
		status = StatusFailure
	}

	if ev.ResponseNeeded {
		effects = append(effects, s.respond(cur.server, ev.Peer, ev.RequestID, status, nil))
	}

	return next, effects
}

func (s *Server) onRead(cur *Connected, ev CharacteristicRead) (State, []effect) {
	if _, known := cur.catalog.Lookup(ev.Characteristic); !known {
		return cur, []effect{s.respond(cur.server, ev.Peer, ev.RequestID, StatusFailure, nil)}
	}

	var next State = cur
	value := slices.Clone(ev.Value)
	effects := []effect{s.respond(cur.server, ev.Peer, ev.RequestID, StatusSuccess, value)}
	if read := cur.pendingRead; read != nil && ev.Characteristic == cur.catalog.ServerToClient.UUID {
		n := *cur
		n.pendingRead = nil
		next = &n
		effects = append(effects, func() { read(value) })
	}

	return next, effects
}

func (s *Server) respond(server ServerHandle, peer string, requestID int, status Status, value []byte) effect {
	return func() {
		if err := server.Respond(peer, requestID, status, value); err != nil {
			s.logger.Error("cannot respond", "peer", peer, "request", requestID, "err", err)
		}
	}
}

func (s *Server) observe(prev, next State) {
	if prev.Name() == next.Name() {
		return
	}
	s.logger.Debug("state changed", "from", prev, "to", next)
	metrics.RecordTransition("server", prev.Name(), next.Name())
}

func (s *Server) logRelease(what string, err error) {
	s.logger.Warn("release failed", "op", what, "err", err)
}

func serverHandle(st State) ServerHandle {
	switch s := st.(type) {
	case *Advertising:
		return s.server
	case *Connected:
		return s.server
	}
	return nil
}
