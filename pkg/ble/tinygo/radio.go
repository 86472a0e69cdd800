//go:build linux

// Package tinygo drives the BLE state machines with tinygo.org/x/bluetooth
// on Linux (BlueZ over D-Bus).
package tinygo

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/gatt"
	"github.com/go-ctap/walletbridge/pkg/options"
)

// Radio implements ble.Radio over a single BlueZ adapter. BlueZ answers
// write requests and CCCD subscriptions itself, so Respond is a no-op and
// descriptor writes never reach the state machines.
type Radio struct {
	adapter   *bluetooth.Adapter
	localName string
	logger    *slog.Logger

	mu           sync.Mutex
	enabled      bool
	services     map[string]*server
	serverEvents func(ble.Event)
	serverPeer   string
	links        map[string]*link
}

var _ ble.Radio = (*Radio)(nil)

// New returns a Radio on the default adapter. localName is included in
// advertisements.
func New(localName string, opts ...options.Option) *Radio {
	oo := options.NewOptions(opts...)

	return &Radio{
		adapter:   bluetooth.DefaultAdapter,
		localName: localName,
		logger:    oo.Logger.With("radio", "bluez"),
		services:  make(map[string]*server),
		links:     make(map[string]*link),
	}
}

// Check enables the adapter on first use and maps BlueZ errors onto the
// ble precondition errors.
func (r *Radio) Check() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enabled {
		return nil
	}

	if err := r.adapter.Enable(); err != nil {
		return classify(err)
	}
	r.adapter.SetConnectHandler(r.onConnect)
	r.enabled = true

	return nil
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "AccessDenied"), strings.Contains(msg, "NotAuthorized"):
		return fmt.Errorf("%w: %v", ble.ErrPermission, err)
	case strings.Contains(msg, "NotReady"), strings.Contains(msg, "powered off"):
		return fmt.Errorf("%w: %v", ble.ErrAdapterDisabled, err)
	default:
		return fmt.Errorf("%w: %v", ble.ErrAdapterUnavailable, err)
	}
}

func (r *Radio) onConnect(device bluetooth.Device, connected bool) {
	peer := device.Address.String()

	r.mu.Lock()
	l, isLink := r.links[peer]
	if isLink && !connected {
		delete(r.links, peer)
	}
	events := r.serverEvents
	r.mu.Unlock()

	switch {
	case isLink && !connected:
		l.events(ble.ConnectionChanged{Peer: peer, Connected: false})
	case isLink:
		// Reported by Connect itself.
	case events != nil:
		r.mu.Lock()
		if connected {
			r.serverPeer = peer
		} else if r.serverPeer == peer {
			r.serverPeer = ""
		}
		r.mu.Unlock()
		events(ble.ConnectionChanged{Peer: peer, Connected: connected})
	}
}

func (r *Radio) peer() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.serverPeer
}

func toBluetooth(id uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(id.String())
}

func fromBluetooth(id bluetooth.UUID) uuid.UUID {
	u, err := uuid.Parse(id.String())
	if err != nil {
		return uuid.Nil
	}
	return u
}

func flags(p gatt.Property) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p.Has(gatt.PropertyBroadcast) {
		f |= bluetooth.CharacteristicBroadcastPermission
	}
	if p.Has(gatt.PropertyRead) {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p.Has(gatt.PropertyWriteWithoutResponse) {
		f |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p.Has(gatt.PropertyWrite) {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p.Has(gatt.PropertyNotify) {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	if p.Has(gatt.PropertyIndicate) {
		f |= bluetooth.CharacteristicIndicatePermission
	}
	return f
}

type server struct {
	radio   *Radio
	key     string
	handles map[uuid.UUID]*bluetooth.Characteristic

	mu     sync.Mutex
	closed bool
	events func(ble.Event)
}

func serviceKey(spec ble.ServiceSpec) string {
	var b strings.Builder
	b.WriteString(spec.Service.String())
	for _, c := range spec.Characteristics {
		b.WriteString("/" + c.UUID.String())
	}
	return b.String()
}

// OpenServer registers spec with BlueZ. BlueZ cannot unregister a service
// added through this API, so reopening the same spec reuses it.
func (r *Radio) OpenServer(spec ble.ServiceSpec, events func(ble.Event)) (ble.ServerHandle, error) {
	key := serviceKey(spec)

	r.mu.Lock()
	r.serverEvents = events
	existing, ok := r.services[key]
	r.mu.Unlock()

	if ok {
		existing.mu.Lock()
		existing.closed = false
		existing.events = events
		existing.mu.Unlock()
		go events(ble.ServiceAdded{Service: spec.Service, Status: ble.StatusSuccess})
		return existing, nil
	}

	s := &server{
		radio:   r,
		key:     key,
		handles: make(map[uuid.UUID]*bluetooth.Characteristic),
		events:  events,
	}

	service, err := toBluetooth(spec.Service)
	if err != nil {
		return nil, err
	}

	configs := make([]bluetooth.CharacteristicConfig, 0, len(spec.Characteristics))
	for _, c := range spec.Characteristics {
		id, err := toBluetooth(c.UUID)
		if err != nil {
			return nil, err
		}
		handle := new(bluetooth.Characteristic)
		s.handles[c.UUID] = handle

		characteristic := c.UUID
		configs = append(configs, bluetooth.CharacteristicConfig{
			Handle: handle,
			UUID:   id,
			Flags:  flags(c.Properties),
			WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
				s.onWrite(characteristic, value)
			},
		})
	}

	if err := r.adapter.AddService(&bluetooth.Service{UUID: service, Characteristics: configs}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.services[key] = s
	r.mu.Unlock()

	go events(ble.ServiceAdded{Service: spec.Service, Status: ble.StatusSuccess})

	return s, nil
}

// onWrite reports a write from the connected peer. BlueZ identifies the
// writer by connection handle only, so the peer is the address last seen by
// the connect handler.
func (s *server) onWrite(characteristic uuid.UUID, value []byte) {
	s.dispatch(ble.CharacteristicWrite{
		Peer:           s.radio.peer(),
		Characteristic: characteristic,
		Value:          slices.Clone(value),
	})
}

func (s *server) dispatch(ev ble.Event) {
	s.mu.Lock()
	closed, events := s.closed, s.events
	s.mu.Unlock()

	if !closed && events != nil {
		events(ev)
	}
}

// Notify updates the characteristic value, which BlueZ sends to every
// subscribed peer.
func (s *server) Notify(_ string, characteristic uuid.UUID, value []byte, _ bool) error {
	handle, ok := s.handles[characteristic]
	if !ok {
		return fmt.Errorf("tinygo: unknown characteristic %s", characteristic)
	}
	_, err := handle.Write(value)
	return err
}

func (s *server) Respond(string, int, ble.Status, []byte) error {
	return nil
}

func (s *server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.events = nil
	s.mu.Unlock()

	s.radio.mu.Lock()
	s.radio.serverEvents = nil
	s.radio.mu.Unlock()

	return nil
}

type advertiser struct {
	adv *bluetooth.Advertisement
}

func (a *advertiser) Stop() error {
	return a.adv.Stop()
}

func (r *Radio) StartAdvertising(service uuid.UUID, settings ble.AdvertiseSettings, _ func(ble.Event)) (ble.Advertiser, error) {
	id, err := toBluetooth(service)
	if err != nil {
		return nil, err
	}

	adv := r.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    r.localName,
		ServiceUUIDs: []bluetooth.UUID{id},
	}); err != nil {
		return nil, err
	}
	if err := adv.Start(); err != nil {
		return nil, err
	}
	r.logger.Debug("advertising", "service", service, "mode", settings.Mode, "txPower", settings.TxPower)

	return &advertiser{adv: adv}, nil
}

type scan struct {
	adapter *bluetooth.Adapter
	once    sync.Once
}

func (s *scan) Stop() error {
	var err error
	s.once.Do(func() {
		err = s.adapter.StopScan()
	})
	return err
}

// StartScan scans in the background. Only advertisements carrying filter
// are reported. BlueZ picks its own scan parameters.
func (r *Radio) StartScan(filter uuid.UUID, _ ble.ScanSettings, events func(ble.Event)) (ble.ScanHandle, error) {
	id, err := toBluetooth(filter)
	if err != nil {
		return nil, err
	}

	s := &scan{adapter: r.adapter}
	go func() {
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(id) {
				return
			}
			events(ble.ScanResult{
				Peer: result.Address.String(),
				Name: result.LocalName(),
				RSSI: result.RSSI,
			})
		})
		if err != nil {
			r.logger.Error("scan stopped", "err", err)
			events(ble.ScanFailed{Err: err})
		}
	}()

	return s, nil
}

type link struct {
	peer   string
	device bluetooth.Device
	events func(ble.Event)
	logger *slog.Logger

	mu              sync.Mutex
	characteristics map[uuid.UUID]bluetooth.DeviceCharacteristic
}

var errUnknownCharacteristic = errors.New("tinygo: characteristic not discovered")

// Connect blocks until the link is up, then reports ConnectionChanged.
func (r *Radio) Connect(peer string, events func(ble.Event)) (ble.Link, error) {
	var addr bluetooth.Address
	addr.Set(peer)

	l := &link{
		peer:            peer,
		events:          events,
		logger:          r.logger.With("peer", peer),
		characteristics: make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
	}
	r.mu.Lock()
	r.links[peer] = l
	r.mu.Unlock()

	device, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		r.mu.Lock()
		delete(r.links, peer)
		r.mu.Unlock()
		return nil, err
	}
	l.device = device

	go events(ble.ConnectionChanged{Peer: peer, Connected: true})

	return l, nil
}

// RequestHighPriority is a no-op; BlueZ negotiates connection parameters.
func (l *link) RequestHighPriority() error {
	return nil
}

func (l *link) DiscoverServices(service uuid.UUID) error {
	id, err := toBluetooth(service)
	if err != nil {
		return err
	}

	go func() {
		services, err := l.device.DiscoverServices([]bluetooth.UUID{id})
		if err != nil || len(services) == 0 {
			l.logger.Error("service discovery failed", "service", service, "err", err)
			l.events(ble.ServiceAdded{Service: service, Status: ble.StatusFailure})
			return
		}

		chars, err := services[0].DiscoverCharacteristics(nil)
		if err != nil {
			l.logger.Error("characteristic discovery failed", "service", service, "err", err)
			l.events(ble.ServiceAdded{Service: service, Status: ble.StatusFailure})
			return
		}

		found := make([]uuid.UUID, 0, len(chars))
		l.mu.Lock()
		for _, c := range chars {
			u := fromBluetooth(c.UUID())
			l.characteristics[u] = c
			found = append(found, u)
		}
		l.mu.Unlock()

		l.events(ble.ServiceAdded{Service: service, Characteristics: found, Status: ble.StatusSuccess})
	}()

	return nil
}

func (l *link) characteristic(id uuid.UUID) (bluetooth.DeviceCharacteristic, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.characteristics[id]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", errUnknownCharacteristic, id)
	}
	return c, nil
}

func (l *link) EnableNotifications(id uuid.UUID) error {
	c, err := l.characteristic(id)
	if err != nil {
		return err
	}

	return c.EnableNotifications(func(value []byte) {
		l.events(ble.CharacteristicChanged{Characteristic: id, Value: slices.Clone(value)})
	})
}

// Write reports completion through CharacteristicWrite when withResponse
// is set.
func (l *link) Write(id uuid.UUID, value []byte, withResponse bool) error {
	c, err := l.characteristic(id)
	if err != nil {
		return err
	}

	if !withResponse {
		_, err := c.WriteWithoutResponse(value)
		return err
	}

	value = slices.Clone(value)
	go func() {
		status := ble.StatusSuccess
		if _, err := c.Write(value); err != nil {
			l.logger.Error("write failed", "characteristic", id, "err", err)
			status = ble.StatusFailure
		}
		l.events(ble.CharacteristicWrite{Peer: l.peer, Characteristic: id, Status: status})
	}()

	return nil
}

func (l *link) Read(id uuid.UUID) error {
	c, err := l.characteristic(id)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 512)
		n, err := c.Read(buf)
		if err != nil {
			l.logger.Error("read failed", "characteristic", id, "err", err)
			l.events(ble.CharacteristicRead{Peer: l.peer, Characteristic: id, Status: ble.StatusFailure})
			return
		}
		l.events(ble.CharacteristicRead{Peer: l.peer, Characteristic: id, Value: buf[:n]})
	}()

	return nil
}

func (l *link) Close() error {
	return l.device.Disconnect()
}
