// Package bridge is the native side of the wallet page bridge. The page
// calls methods with a correlation token; every call settles exactly once
// through a resolve or reject Envelope posted on the MainLoop.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-ctap/walletbridge/pkg/ble"
	"github.com/go-ctap/walletbridge/pkg/credentials"
	"github.com/go-ctap/walletbridge/pkg/gatt"
	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
)

var (
	ErrUnknownMethod     = errors.New("bridge: unknown method")
	ErrMissingToken      = errors.New("bridge: missing token")
	ErrMalformedOptions  = errors.New("bridge: malformed options")
	ErrBluetoothDisabled = errors.New("bridge: bluetooth disabled")
	ErrInvalidByteArray  = errors.New("bridge: invalid byte array")
	ErrUnknownAction     = errors.New("bridge: unknown debug action")
	ErrNoBackend         = errors.New("bridge: no credential backend available")
)

// Method names as the page calls them.
const (
	MethodCreate                     = "create"
	MethodGet                        = "get"
	MethodOverrideHints              = "overrideHints"
	MethodBluetoothStatus            = "bluetoothStatus"
	MethodBluetoothTerminate         = "bluetoothTerminate"
	MethodBluetoothCreateServer      = "bluetoothCreateServer"
	MethodBluetoothCreateClient      = "bluetoothCreateClient"
	MethodBluetoothSendToServer      = "bluetoothSendToServer"
	MethodBluetoothSendToClient      = "bluetoothSendToClient"
	MethodBluetoothReceiveFromClient = "bluetoothReceiveFromClient"
	MethodBluetoothReceiveFromServer = "bluetoothReceiveFromServer"
	MethodBluetoothSetMode           = "bluetoothSetMode"
	MethodBluetoothGetMode           = "bluetoothGetMode"
)

// Config wires the bridge. Server, Client and Selector may be nil when
// bluetooth is disabled.
type Config struct {
	Name      string
	Visualize bool
	Endpoint  string
	Version   string

	Page   Page
	Chrome Chrome
	Loop   *MainLoop

	Backends credentials.Backends

	Selector *gatt.Selector
	Server   *ble.Server
	Client   *ble.Client
}

type Bridge struct {
	script ScriptParams
	name   string
	ver    string

	page   Page
	chrome Chrome
	loop   *MainLoop

	backends credentials.Backends

	selector *gatt.Selector
	server   *ble.Server
	client   *ble.Client

	logger *slog.Logger
}

func New(cfg Config, opts ...options.Option) *Bridge {
	oo := options.NewOptions(opts...)

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Chrome == nil {
		cfg.Chrome = nopChrome{}
	}
	if cfg.Loop == nil {
		cfg.Loop = NewMainLoop()
	}

	return &Bridge{
		script: ScriptParams{
			Name:      cfg.Name,
			Visualize: cfg.Visualize,
			Endpoint:  cfg.Endpoint,
		},
		name:     cfg.Name,
		ver:      cfg.Version,
		page:     cfg.Page,
		chrome:   cfg.Chrome,
		loop:     cfg.Loop,
		backends: cfg.Backends,
		selector: cfg.Selector,
		server:   cfg.Server,
		client:   cfg.Client,
		logger:   oo.Logger.With("bridge", cfg.Name),
	}
}

// Name is the global the bridge is exposed under in the page.
func (b *Bridge) Name() string {
	return b.name
}

// Inject renders the page script and hands it to the page.
func (b *Bridge) Inject() error {
	script, err := RenderScript(b.script)
	if err != nil {
		return err
	}

	b.post(func() {
		b.page.EvaluateScript(script)
	})
	return nil
}

// Dispatch routes an asynchronous page call by method name.
func (b *Bridge) Dispatch(method, token, params string) error {
	if token == "" {
		return ErrMissingToken
	}

	switch method {
	case MethodCreate:
		b.Create(token, params)
	case MethodGet:
		b.Get(token, params)
	case MethodBluetoothStatus:
		b.BluetoothStatus(token, params)
	case MethodBluetoothTerminate:
		b.BluetoothTerminate(token, params)
	case MethodBluetoothCreateServer:
		b.BluetoothCreateServer(token, params)
	case MethodBluetoothCreateClient:
		b.BluetoothCreateClient(token, params)
	case MethodBluetoothSendToServer:
		b.BluetoothSendToServer(token, params)
	case MethodBluetoothSendToClient:
		b.BluetoothSendToClient(token, params)
	case MethodBluetoothReceiveFromClient:
		b.BluetoothReceiveFromClient(token, params)
	case MethodBluetoothReceiveFromServer:
		b.BluetoothReceiveFromServer(token, params)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return nil
}

// Create runs navigator.credentials.create. Attestation is always "none".
func (b *Bridge) Create(token, params string) {
	c := b.newCall(token, MethodCreate)

	optionsJSON, err := forceAttestationNone(params)
	if err != nil {
		b.credentialFailure(c, "Credential creation failed: ")(err)
		return
	}

	failure := b.credentialFailure(c, "Credential creation failed: ")
	backend := credentials.Select(b.logger, optionsJSON, b.backends)
	if backend == nil {
		failure(ErrNoBackend)
		return
	}
	b.logger.Debug("create", "token", token, "backend", backend.Name())
	backend.Create(credentials.CreateOperation{
		OptionsJSON: optionsJSON,
		Success:     c.resolveCredential,
		Failure:     failure,
	})
}

// Get runs navigator.credentials.get.
func (b *Bridge) Get(token, params string) {
	c := b.newCall(token, MethodGet)

	failure := b.credentialFailure(c, "Credential request failed: ")
	if !json.Valid([]byte(params)) {
		failure(ErrMalformedOptions)
		return
	}

	backend := credentials.Select(b.logger, params, b.backends)
	if backend == nil {
		failure(ErrNoBackend)
		return
	}
	b.logger.Debug("get", "token", token, "backend", backend.Name())
	backend.Get(credentials.GetOperation{
		OptionsJSON: params,
		Success:     c.resolveCredential,
		Failure:     failure,
	})
}

func (b *Bridge) credentialFailure(c *call, prefix string) func(error) {
	return func(err error) {
		b.logger.Error("credential operation failed", "method", c.method, "token", c.token, "err", err)
		c.settle(KindReject, stringPayload(err.Error()), prefix+err.Error())
	}
}

func (b *Bridge) post(fn func()) {
	if !b.loop.Post(fn) {
		b.logger.Warn("main loop stopped, dropping page update")
	}
}

func (b *Bridge) invoke(method string, payload json.RawMessage) {
	b.post(func() {
		b.page.Post(Envelope{
			Kind:    KindInvoke,
			Method:  method,
			Payload: payload,
		})
	})
}

func (b *Bridge) alert(message string) {
	b.post(func() {
		b.page.Alert(message)
	})
}

// call is one page request. Only its first settlement reaches the page.
type call struct {
	bridge *Bridge
	token  string
	method string
	once   sync.Once
}

func (b *Bridge) newCall(token, method string) *call {
	return &call{
		bridge: b,
		token:  token,
		method: method,
	}
}

func (c *call) settle(kind Kind, payload json.RawMessage, alert string) {
	first := false
	c.once.Do(func() {
		first = true

		outcome := metrics.OutcomeResolved
		if kind == KindReject {
			outcome = metrics.OutcomeRejected
		}
		metrics.RecordBridgeCall(c.method, outcome)

		env := Envelope{
			Token:   c.token,
			Kind:    kind,
			Method:  c.method,
			Payload: payload,
		}
		c.bridge.post(func() {
			if alert != "" {
				c.bridge.page.Alert(alert)
			}
			c.bridge.page.Post(env)
		})
	})

	if !first {
		c.bridge.logger.Debug("ignoring repeated settlement", "method", c.method, "token", c.token, "kind", kind)
	}
}

func (c *call) resolve(payload json.RawMessage) {
	c.settle(KindResolve, payload, "")
}

func (c *call) reject(payload json.RawMessage) {
	c.settle(KindReject, payload, "")
}

func (c *call) resolveCredential(credentialJSON string) {
	c.resolve(jsonPayload(credentialJSON))
}

// forceAttestationNone sets publicKey.attestation to "none", keeping every
// other member as the page sent it.
func forceAttestationNone(params string) (string, error) {
	var opts map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params), &opts); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedOptions, err)
	}

	var publicKey map[string]json.RawMessage
	if err := json.Unmarshal(opts["publicKey"], &publicKey); err != nil || publicKey == nil {
		return "", fmt.Errorf("%w: publicKey is missing", ErrMalformedOptions)
	}
	publicKey["attestation"] = json.RawMessage(`"none"`)

	pk, err := json.Marshal(publicKey)
	if err != nil {
		return "", err
	}
	opts["publicKey"] = pk

	out, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
