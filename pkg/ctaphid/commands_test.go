package ctaphid

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice replays queued HID reports and records written ones.
type fakeDevice struct {
	reads  [][]byte
	writes [][]byte
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if len(d.reads) == 0 {
		return 0, errors.New("no more reports")
	}
	n := copy(p, d.reads[0])
	d.reads = d.reads[1:]
	return n, nil
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	d.writes = append(d.writes, bytes.Clone(p))
	return len(p), nil
}

func (d *fakeDevice) queue(t *testing.T, cid ChannelID, cmd Command, data []byte) {
	t.Helper()

	msg, err := NewMessage(cid, cmd, data)
	require.NoError(t, err)

	reports, err := msg.Reports()
	require.NoError(t, err)
	d.reads = append(d.reads, reports...)
}

var testCID = ChannelID{0x01, 0x02, 0x03, 0x04}

func TestCBOR_SkipsKeepalive(t *testing.T) {
	dev := &fakeDevice{}
	dev.queue(t, testCID, CTAPHID_KEEPALIVE, []byte{byte(STATUS_UPNEEDED)})
	dev.queue(t, testCID, CTAPHID_CBOR, []byte{byte(CTAP2_OK), 0xa0})

	resp, err := CBOR(dev, testCID, []byte{byte(ctaptypes.AuthenticatorGetInfo)})
	require.NoError(t, err)

	assert.Equal(t, CTAP2_OK, resp.StatusCode)
	assert.Equal(t, []byte{0xa0}, resp.Data)
	require.Len(t, dev.writes, 1)
	assert.Equal(t, byte(0x00), dev.writes[0][0], "report ID prefix")
}

func TestCBOR_StatusError(t *testing.T) {
	dev := &fakeDevice{}
	dev.queue(t, testCID, CTAPHID_CBOR, []byte{byte(CTAP2_ERR_PIN_INVALID)})

	_, err := CBOR(dev, testCID, []byte{byte(ctaptypes.AuthenticatorClientPIN)})
	require.Error(t, err)

	var ctapErr *CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.Equal(t, ctaptypes.AuthenticatorClientPIN, ctapErr.Command)
	assert.ErrorIs(t, err, CTAP2_ERR_PIN_INVALID)
	assert.Equal(t, "AuthenticatorClientPIN failed (CTAP2_ERR_PIN_INVALID)", err.Error())
}

func TestCBOR_HIDError(t *testing.T) {
	dev := &fakeDevice{}
	dev.queue(t, testCID, CTAPHID_ERROR, []byte{byte(ERR_CHANNEL_BUSY)})

	_, err := CBOR(dev, testCID, []byte{byte(ctaptypes.AuthenticatorGetInfo)})
	assert.ErrorIs(t, err, ERR_CHANNEL_BUSY)
}

func TestInit(t *testing.T) {
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	payload := append(bytes.Clone(nonce), 0xaa, 0xbb, 0xcc, 0xdd, 2, 5, 4, 3, byte(CAPABILITY_WINK|CAPABILITY_CBOR))

	dev := &fakeDevice{}
	dev.queue(t, BROADCAST_CID, CTAPHID_INIT, payload)

	resp, err := Init(dev, BROADCAST_CID, nonce)
	require.NoError(t, err)

	assert.Equal(t, ChannelID{0xaa, 0xbb, 0xcc, 0xdd}, resp.CID)
	assert.True(t, resp.ImplementsCBOR())
	assert.True(t, resp.ImplementsWink())
	assert.False(t, resp.NotImplementsMSG())
}

func TestInit_NonceMismatch(t *testing.T) {
	payload := append([]byte{8, 7, 6, 5, 4, 3, 2, 1}, make([]byte, 9)...)

	dev := &fakeDevice{}
	dev.queue(t, BROADCAST_CID, CTAPHID_INIT, payload)

	_, err := Init(dev, BROADCAST_CID, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.ErrorIs(t, err, ErrNonceMismatch)
}

func TestStatusCode_String(t *testing.T) {
	assert.Equal(t, "CTAP2_ERR_NO_CREDENTIALS", CTAP2_ERR_NO_CREDENTIALS.String())
	assert.Equal(t, "CTAP2_ERR_EXTENSION(0xE3)", StatusCode(0xe3).String())
	assert.Equal(t, "CTAP2_ERR_VENDOR(0xF1)", StatusCode(0xf1).String())
	assert.Equal(t, "StatusCode(0x50)", StatusCode(0x50).String())
}
