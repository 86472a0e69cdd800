package ble

import (
	"sync"

	"github.com/google/uuid"
)

type notification struct {
	peer           string
	characteristic uuid.UUID
	value          []byte
	confirm        bool
}

type response struct {
	requestID int
	status    Status
	value     []byte
}

type linkWrite struct {
	characteristic uuid.UUID
	value          []byte
	withResponse   bool
}

type fakeHandle struct {
	mu    sync.Mutex
	stops int
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return nil
}

func (h *fakeHandle) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

type fakeServer struct {
	mu        sync.Mutex
	closes    int
	notifyErr error
	notifies  []notification
	responses []response
}

func (s *fakeServer) Notify(peer string, characteristic uuid.UUID, value []byte, confirm bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifies = append(s.notifies, notification{peer, characteristic, value, confirm})
	return s.notifyErr
}

func (s *fakeServer) Respond(_ string, requestID int, status Status, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response{requestID, status, value})
	return nil
}

func (s *fakeServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeLink struct {
	mu            sync.Mutex
	closes        int
	priority      int
	discovered    []uuid.UUID
	notifications []uuid.UUID
	writes        []linkWrite
	writeErr      error
}

func (l *fakeLink) RequestHighPriority() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priority++
	return nil
}

func (l *fakeLink) DiscoverServices(service uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discovered = append(l.discovered, service)
	return nil
}

func (l *fakeLink) EnableNotifications(characteristic uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications = append(l.notifications, characteristic)
	return nil
}

func (l *fakeLink) Write(characteristic uuid.UUID, value []byte, withResponse bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.writes = append(l.writes, linkWrite{characteristic, value, withResponse})
	return nil
}

func (l *fakeLink) Read(uuid.UUID) error {
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

// fakeRadio hands out fresh handles and records what the machines asked for.
type fakeRadio struct {
	mu sync.Mutex

	checkErr     error
	openErr      error
	advertiseErr error
	scanErr      error
	connectErr   error

	spec              ServiceSpec
	advertiseSettings AdvertiseSettings
	scanSettings      ScanSettings
	scanFilter        uuid.UUID
	connectedPeer     string
	earlyResult       *ScanResult
	scanEvents        func(Event)

	servers     []*fakeServer
	advertisers []*fakeHandle
	scans       []*fakeHandle
	links       []*fakeLink
}

func (r *fakeRadio) Check() error {
	return r.checkErr
}

func (r *fakeRadio) OpenServer(spec ServiceSpec, _ func(Event)) (ServerHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.spec = spec
	s := &fakeServer{}
	r.servers = append(r.servers, s)
	return s, nil
}

func (r *fakeRadio) StartAdvertising(_ uuid.UUID, settings AdvertiseSettings, _ func(Event)) (Advertiser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.advertiseErr != nil {
		return nil, r.advertiseErr
	}
	r.advertiseSettings = settings
	a := &fakeHandle{}
	r.advertisers = append(r.advertisers, a)
	return a, nil
}

// StartScan reports earlyResult, when set, before returning, the way a
// radio may deliver an advertisement before the scan start is observed.
func (r *fakeRadio) StartScan(filter uuid.UUID, settings ScanSettings, events func(Event)) (ScanHandle, error) {
	r.mu.Lock()
	if r.scanErr != nil {
		r.mu.Unlock()
		return nil, r.scanErr
	}
	r.scanFilter = filter
	r.scanSettings = settings
	r.scanEvents = events
	s := &fakeHandle{}
	r.scans = append(r.scans, s)
	early := r.earlyResult
	r.mu.Unlock()

	if early != nil {
		events(*early)
	}
	return s, nil
}

// scanEvent delivers ev through the callback of the latest scan.
func (r *fakeRadio) scanEvent(ev Event) {
	r.mu.Lock()
	events := r.scanEvents
	r.mu.Unlock()
	events(ev)
}

func (r *fakeRadio) Connect(peer string, _ func(Event)) (Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectErr != nil {
		return nil, r.connectErr
	}
	r.connectedPeer = peer
	l := &fakeLink{}
	r.links = append(r.links, l)
	return l, nil
}

func (r *fakeRadio) server() *fakeServer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.servers[len(r.servers)-1]
}

func (r *fakeRadio) link() *fakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[len(r.links)-1]
}

// counter records continuation calls.
type counter struct {
	mu     sync.Mutex
	calls  int
	values [][]byte
}

func (c *counter) call() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

func (c *counter) receive(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.values = append(c.values, v)
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
