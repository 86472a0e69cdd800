// Package httphost serves the bridge to a regular browser: page calls
// arrive as HTTP requests and settlements leave as server-sent events.
package httphost

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/options"
)

var ErrNotInjected = errors.New("httphost: script not injected yet")

// subscriberBuffer is how many events a slow page may lag behind before
// events for it are dropped.
const subscriberBuffer = 64

const (
	eventEnvelope = "envelope"
	eventAlert    = "alert"
)

type event struct {
	name string
	data []byte
}

type subscriber struct {
	events chan event
}

// Host is the bridge.Page of pages connected over HTTP. Every connected
// event stream receives every envelope and alert.
type Host struct {
	mu          sync.Mutex
	script      string
	subscribers map[*subscriber]struct{}

	logger *slog.Logger
}

func New(opts ...options.Option) *Host {
	oo := options.NewOptions(opts...)

	return &Host{
		subscribers: make(map[*subscriber]struct{}),
		logger:      oo.Logger.With("component", "httphost"),
	}
}

// EvaluateScript keeps script; pages load it from /inject.js.
func (h *Host) EvaluateScript(script string) {
	h.mu.Lock()
	h.script = script
	h.mu.Unlock()

	h.logger.Debug("script published", "bytes", len(script))
}

// Script returns the last published script.
func (h *Host) Script() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.script == "" {
		return "", ErrNotInjected
	}
	return h.script, nil
}

func (h *Host) Post(env bridge.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("cannot encode envelope", "method", env.Method, "token", env.Token, "err", err)
		return
	}
	h.publish(event{name: eventEnvelope, data: data})
}

func (h *Host) Alert(message string) {
	data, _ := json.Marshal(message)
	h.publish(event{name: eventAlert, data: data})
}

// Subscribers is the number of connected event streams.
func (h *Host) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers)
}

func (h *Host) publish(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subscribers) == 0 {
		h.logger.Warn("no page connected, dropping event", "event", ev.name, "data", string(ev.data))
		return
	}

	for sub := range h.subscribers {
		select {
		case sub.events <- ev:
		default:
			h.logger.Warn("page not keeping up, dropping event", "event", ev.name)
		}
	}
}

func (h *Host) subscribe() (*subscriber, func()) {
	sub := &subscriber{events: make(chan event, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Info("page connected", "subscribers", n)

	return sub, func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		n := len(h.subscribers)
		h.mu.Unlock()
		h.logger.Info("page disconnected", "subscribers", n)
	}
}
