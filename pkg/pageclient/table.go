// Package pageclient is the page side of the bridge protocol written in Go:
// the pending promise table keyed by token, the base64url codec for
// credential options and results, and an HTTP client for httphost.
package pageclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/options"
)

var ErrRejected = errors.New("pageclient: call rejected")

// Result is the settlement of one call. Err is a *RejectedError for reject
// envelopes.
type Result struct {
	Method  string
	Payload json.RawMessage
	Err     error
}

type RejectedError struct {
	Method  string
	Payload json.RawMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Method, e.Payload)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// Entry is a pending call.
type Entry struct {
	Method string
	result chan Result
}

// Table correlates envelopes with pending calls. An entry is removed on its
// first settlement.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Entry
	logger  *slog.Logger
}

func NewTable(opts ...options.Option) *Table {
	oo := options.NewOptions(opts...)

	return &Table{
		entries: make(map[string]*Entry),
		logger:  oo.Logger,
	}
}

// Register adds an entry for method under a fresh random token.
func (t *Table) Register(method string) (string, <-chan Result) {
	token := uuid.NewString()
	entry := &Entry{
		Method: method,
		result: make(chan Result, 1),
	}

	t.mu.Lock()
	t.entries[token] = entry
	t.mu.Unlock()

	return token, entry.result
}

// Settle delivers a resolve or reject envelope to its entry. It reports
// false for invoke envelopes and unknown tokens.
func (t *Table) Settle(env bridge.Envelope) bool {
	if env.Kind != bridge.KindResolve && env.Kind != bridge.KindReject {
		t.logger.Debug("not a settlement", "kind", env.Kind, "method", env.Method)
		return false
	}

	t.mu.Lock()
	entry, ok := t.entries[env.Token]
	delete(t.entries, env.Token)
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("stale token", "token", env.Token, "method", env.Method, "kind", env.Kind)
		return false
	}

	res := Result{Method: entry.Method, Payload: env.Payload}
	if env.Kind == bridge.KindReject {
		res.Err = &RejectedError{Method: entry.Method, Payload: env.Payload}
	}
	entry.result <- res
	return true
}

// Forget drops token without settling it.
func (t *Table) Forget(token string) {
	t.mu.Lock()
	delete(t.entries, token)
	t.mu.Unlock()
}

// Len is the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Await waits for the settlement of token. On ctx expiry the entry is
// forgotten, so a late settlement becomes a stale one.
func (t *Table) Await(ctx context.Context, token string, result <-chan Result) (Result, error) {
	select {
	case res := <-result:
		return res, res.Err
	case <-ctx.Done():
		t.Forget(token)
		return Result{}, ctx.Err()
	}
}
