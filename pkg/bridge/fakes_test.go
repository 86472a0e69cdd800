package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/credentials"
	"github.com/go-ctap/walletbridge/pkg/gatt"
)

type fakePage struct {
	mu      sync.Mutex
	scripts []string
	alerts  []string
	events  chan any
}

func newFakePage() *fakePage {
	return &fakePage{events: make(chan any, 64)}
}

func (p *fakePage) EvaluateScript(script string) {
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	p.mu.Unlock()
	p.events <- script
}

func (p *fakePage) Post(env Envelope) {
	p.events <- env
}

func (p *fakePage) Alert(message string) {
	p.mu.Lock()
	p.alerts = append(p.alerts, message)
	p.mu.Unlock()
	p.events <- message
}

func (p *fakePage) next(t *testing.T) any {
	t.Helper()

	select {
	case ev := <-p.events:
		return ev
	case <-time.After(5 * time.Second):
		require.FailNow(t, "page received nothing")
		return nil
	}
}

func (p *fakePage) envelope(t *testing.T) Envelope {
	t.Helper()

	for {
		if env, ok := p.next(t).(Envelope); ok {
			return env
		}
	}
}

func (p *fakePage) quiet(t *testing.T) {
	t.Helper()

	select {
	case ev := <-p.events:
		require.FailNow(t, "unexpected page event", "%v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

type fakeChrome struct {
	visible chan bool
}

func (c *fakeChrome) SetDisplayedURL(string) {}

func (c *fakeChrome) SetNavigationVisible(visible bool) {
	c.visible <- visible
}

// scriptedBackend settles every operation with results, in order, synchronously.
type scriptedBackend struct {
	name    string
	results []any

	mu      sync.Mutex
	options []string
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Create(op credentials.CreateOperation) {
	b.record(op.OptionsJSON)
	b.settle(op.Success, op.Failure)
}

func (b *scriptedBackend) Get(op credentials.GetOperation) {
	b.record(op.OptionsJSON)
	b.settle(op.Success, op.Failure)
}

func (b *scriptedBackend) record(options string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = append(b.options, options)
}

func (b *scriptedBackend) settle(success func(string), failure func(error)) {
	for _, r := range b.results {
		switch v := r.(type) {
		case string:
			success(v)
		case error:
			failure(v)
		}
	}
}

type nopHandle struct{}

func (nopHandle) Notify(string, uuid.UUID, []byte, bool) error { return nil }
func (nopHandle) Respond(string, int, ble.Status, []byte) error { return nil }
func (nopHandle) Close() error                                  { return nil }
func (nopHandle) Stop() error                                   { return nil }

// serverRadio supports the peripheral role only; scans fail.
type serverRadio struct {
	checkErr error
}

func (r *serverRadio) Check() error {
	return r.checkErr
}

func (r *serverRadio) OpenServer(ble.ServiceSpec, func(ble.Event)) (ble.ServerHandle, error) {
	return nopHandle{}, nil
}

func (r *serverRadio) StartAdvertising(uuid.UUID, ble.AdvertiseSettings, func(ble.Event)) (ble.Advertiser, error) {
	return nopHandle{}, nil
}

func (r *serverRadio) StartScan(uuid.UUID, ble.ScanSettings, func(ble.Event)) (ble.ScanHandle, error) {
	return nil, ble.ErrAdapterUnavailable
}

func (r *serverRadio) Connect(string, func(ble.Event)) (ble.Link, error) {
	return nil, ble.ErrAdapterUnavailable
}

type testBridge struct {
	*Bridge
	page     *fakePage
	chrome   *fakeChrome
	selector *gatt.Selector
	server   *ble.Server
	client   *ble.Client
}

func newTestBridge(t *testing.T, backends credentials.Backends, radio ble.Radio) *testBridge {
	t.Helper()

	loop := NewMainLoop()
	t.Cleanup(loop.Stop)

	tb := &testBridge{
		page:     newFakePage(),
		chrome:   &fakeChrome{visible: make(chan bool, 4)},
		selector: gatt.NewSelector(gatt.ModeReader),
	}
	if radio != nil {
		tb.server = ble.NewServer(radio, tb.selector)
		tb.client = ble.NewClient(radio, tb.selector)
	}

	cfg := Config{
		Version:  "1.2.3",
		Page:     tb.page,
		Chrome:   tb.chrome,
		Loop:     loop,
		Backends: backends,
	}
	if radio != nil {
		cfg.Selector = tb.selector
		cfg.Server = tb.server
		cfg.Client = tb.client
	}
	tb.Bridge = New(cfg)

	return tb
}
