package ctap

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/options"
)

// Client speaks the CTAP2 command set over an already initialized CTAPHID channel.
// It holds no device state, so one Client may serve several devices.
type Client struct {
	logger  *slog.Logger
	encMode cbor.EncMode
}

func NewClient(opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	return &Client{
		logger:  oo.Logger,
		encMode: oo.EncMode,
	}
}

// call encodes req (when not nil), sends it as command cmd and decodes the
// response payload into a fresh T.
func call[T any](
	cl *Client,
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	cmd ctaptypes.Command,
	name string,
	req any,
) (*T, error) {
	msg := []byte{byte(cmd)}
	if req != nil {
		b, err := cl.encMode.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("cannot marshal %s CBOR request: %w", name, err)
		}
		cl.logger.Debug(name+" CBOR request", "hex", hex.EncodeToString(b))
		msg = slices.Concat(msg, b)
	}

	respRaw, err := ctaphid.CBOR(device, cid, msg)
	if err != nil {
		return nil, err
	}
	cl.logger.Debug(name+" CBOR response", "hex", hex.EncodeToString(respRaw.Data))

	resp := new(T)
	if len(respRaw.Data) == 0 {
		return resp, nil
	}
	if err := cbor.Unmarshal(respRaw.Data, resp); err != nil {
		return nil, fmt.Errorf("cannot unmarshal %s CBOR response: %w", name, err)
	}

	return resp, nil
}

func (cl *Client) GetInfo(device io.ReadWriter, cid ctaphid.ChannelID) (*ctaptypes.AuthenticatorGetInfoResponse, error) {
	return call[ctaptypes.AuthenticatorGetInfoResponse](cl, device, cid, ctaptypes.AuthenticatorGetInfo, "GetInfo", nil)
}

// Selection blocks until the user confirms presence or the command is cancelled.
// A cancelled selection is not an error.
func (cl *Client) Selection(device io.ReadWriter, cid ctaphid.ChannelID) error {
	_, err := ctaphid.CBOR(device, cid, []byte{byte(ctaptypes.AuthenticatorSelection)})
	if err != nil {
		var ctapError *ctaphid.CTAPError
		if !errors.As(err, &ctapError) || ctapError.StatusCode != ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL {
			return err
		}
	}

	return nil
}
