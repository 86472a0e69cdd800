package pageclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-ctap/walletbridge/pkg/bridge"
	"github.com/go-ctap/walletbridge/pkg/bridge/httphost"
	"github.com/go-ctap/walletbridge/pkg/options"
)

// Client talks to an httphost the way the injected script does when the
// bridge global is missing.
type Client struct {
	base    string
	http    *http.Client
	table   *Table
	onAlert func(string)
	logger  *slog.Logger
}

// NewClient returns a client for the host at base. onAlert receives alert
// events; nil logs them.
func NewClient(base string, onAlert func(string), opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	c := &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{},
		table:   NewTable(opts...),
		onAlert: onAlert,
		logger:  oo.Logger,
	}
	if c.onAlert == nil {
		c.onAlert = func(message string) {
			c.logger.Info("alert", "message", message)
		}
	}
	return c
}

// Connect opens the event stream. Settlements are delivered until ctx is
// done or the host closes the stream.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/bridge/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return responseError(resp)
	}

	go c.readEvents(resp.Body)
	return nil
}

func (c *Client) readEvents(body io.ReadCloser) {
	defer body.Close()

	var name, data string
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if name != "" {
				c.event(name, data)
			}
			name, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug("event stream ended", "err", err)
	}
}

func (c *Client) event(name, data string) {
	switch name {
	case "envelope":
		var env bridge.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			c.logger.Error("malformed envelope", "data", data, "err", err)
			return
		}
		if env.Kind == bridge.KindInvoke {
			c.logger.Info("host invoked page function", "method", env.Method, "payload", string(env.Payload))
			return
		}
		c.table.Settle(env)
	case "alert":
		var message string
		if err := json.Unmarshal([]byte(data), &message); err != nil {
			message = data
		}
		c.onAlert(message)
	default:
		c.logger.Debug("unknown event", "event", name)
	}
}

// Call runs an asynchronous bridge method and waits for its settlement.
// Connect must have been called.
func (c *Client) Call(ctx context.Context, method, params string) (Result, error) {
	token, result := c.table.Register(method)

	resp, err := c.post(ctx, "/bridge/"+method, token, params)
	if err != nil {
		c.table.Forget(token)
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		c.table.Forget(token)
		return Result{}, responseError(resp)
	}

	return c.table.Await(ctx, token, result)
}

// SetMode switches the bluetooth mode and returns the mode now in effect.
func (c *Client) SetMode(ctx context.Context, mode string) (string, error) {
	return c.syncCall(ctx, bridge.MethodBluetoothSetMode, mode)
}

// Mode returns the bluetooth mode.
func (c *Client) Mode(ctx context.Context) (string, error) {
	return c.syncCall(ctx, bridge.MethodBluetoothGetMode, "")
}

func (c *Client) syncCall(ctx context.Context, method, params string) (string, error) {
	resp, err := c.post(ctx, "/bridge/"+method, "", params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	var mode string
	if err := json.NewDecoder(resp.Body).Decode(&mode); err != nil {
		return "", err
	}
	return mode, nil
}

// DebugMenu lists the debug action titles.
func (c *Client) DebugMenu(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/bridge/debug", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var titles []string
	if err := json.NewDecoder(resp.Body).Decode(&titles); err != nil {
		return nil, err
	}
	return titles, nil
}

// RunDebugAction runs the debug action at index.
func (c *Client) RunDebugAction(ctx context.Context, index int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/bridge/debug/"+strconv.Itoa(index), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return responseError(resp)
	}
	return nil
}

// Pending is the number of calls waiting for a settlement.
func (c *Client) Pending() int {
	return c.table.Len()
}

func (c *Client) post(ctx context.Context, path, token, params string) (*http.Response, error) {
	body, err := json.Marshal(struct {
		Token  string `json:"token,omitempty"`
		Params string `json:"params"`
	}{token, params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

func responseError(resp *http.Response) error {
	var e httphost.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("pageclient: unexpected status %s", resp.Status)
	}
	return fmt.Errorf("pageclient: %s: %s", resp.Status, e.Error)
}
