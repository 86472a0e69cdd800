package ctaphid

import (
	"crypto/subtle"
	"errors"
	"io"

	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
)

// exchange writes a single request message and returns the reassembled payload of the
// first non-keepalive reply. CTAPHID_ERROR replies are returned as Error values.
func exchange(dev io.ReadWriter, cid ChannelID, cmd Command, data []byte) ([]byte, error) {
	msg, err := NewMessage(cid, cmd, data)
	if err != nil {
		return nil, err
	}

	if _, err := msg.WriteTo(dev); err != nil {
		return nil, err
	}

	for {
		respMsg := make(Message, 0)
		if _, err := respMsg.ReadFrom(dev); err != nil {
			return nil, err
		}

		if len(respMsg) < 1 {
			return nil, ErrInvalidResponseMessage
		}

		switch head := respMsg[0]; head.command {
		case cmd:
		case CTAPHID_KEEPALIVE:
			continue
		case CTAPHID_ERROR:
			if len(head.data) < 1 {
				return nil, ErrInvalidResponseMessage
			}
			return nil, Error(head.data[0])
		default:
			return nil, ErrUnexpectedCommand
		}

		return respMsg.Payload(), nil
	}
}

// CBOR sends an encapsulated CTAP2 request. The first byte of data is the authenticator command.
func CBOR(dev io.ReadWriter, cid ChannelID, data []byte) (*CBORResponse, error) {
	if len(data) < 1 {
		return nil, ErrInvalidRequest
	}

	payload, err := exchange(dev, cid, CTAPHID_CBOR, data)
	if err != nil {
		return nil, err
	}
	if len(payload) < 1 {
		return nil, ErrInvalidResponseMessage
	}

	code := StatusCode(payload[0])
	if code != CTAP2_OK {
		return nil, newCTAPError(ctaptypes.Command(data[0]), code)
	}

	return &CBORResponse{
		StatusCode: code,
		Data:       payload[1:],
	}, nil
}

// Init allocates a channel. The reply must echo the 8-byte nonce.
func Init(dev io.ReadWriter, cid ChannelID, nonce []byte) (*InitResponse, error) {
	payload, err := exchange(dev, cid, CTAPHID_INIT, nonce)
	if err != nil {
		return nil, err
	}
	if len(payload) < 17 {
		return nil, ErrInvalidResponseMessage
	}

	if subtle.ConstantTimeCompare(payload[:8], nonce) != 1 {
		return nil, ErrNonceMismatch
	}

	return &InitResponse{
		Nonce:                            payload[:8],
		CID:                              ChannelID(payload[8 : 8+4]),
		CTAPHIDProtocolVersionIdentifier: payload[12],
		MajorDeviceVersion:               payload[13],
		MinorDeviceVersion:               payload[14],
		BuildDeviceVersion:               payload[15],
		CapabilityFlags:                  payload[16],
	}, nil
}

func Ping(dev io.ReadWriter, cid ChannelID, ping []byte) (*PingResponse, error) {
	payload, err := exchange(dev, cid, CTAPHID_PING, ping)
	if err != nil {
		return nil, err
	}

	return &PingResponse{Bytes: payload}, nil
}

// Cancel aborts the outstanding request on the channel. The device answers the cancelled
// request itself, so no reply is read here.
func Cancel(dev io.Writer, cid ChannelID) error {
	msg, err := NewMessage(cid, CTAPHID_CANCEL, nil)
	if err != nil {
		return err
	}

	_, err = msg.WriteTo(dev)
	return err
}

func Wink(dev io.ReadWriter, cid ChannelID) error {
	_, err := exchange(dev, cid, CTAPHID_WINK, nil)
	return err
}

// IsKeepaliveCancel reports whether err is the status a device returns for a cancelled request.
func IsKeepaliveCancel(err error) bool {
	return errors.Is(err, CTAP2_ERR_KEEPALIVE_CANCEL)
}
