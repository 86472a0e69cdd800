package ctaphid

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var respPackets = []string{
	`Ri/vTZAAhgamAQICCQOlAQIDOBggASFYIGUwTZr5xmK+EffrDnBoxG3fLYUnqCxMJY++N2PkjG2VIlggGJxNrQ==`,
	`Ri/vTQDlCT2rXnrYQhN0DM0LWCASXti9f+sreUfUi4WEBlgg9LagOl5Yndw64EuM+UAGwRIRo4lJszckFs5EVw==`,
	`Ri/vTQFS7EH2CRYKamtyYXNvdnMua3k=`,
}

func TestMessage_RoundTrip(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	for _, pStr := range respPackets {
		p, err := base64.StdEncoding.DecodeString(pStr)
		require.NoError(t, err)

		buf.Write(p)
	}
	responseBytes := buf.Bytes()

	m := new(Message)
	_, err := m.ReadFrom(bytes.NewReader(responseBytes))
	require.NoError(t, err)
	require.Len(t, *m, 3)

	out := bytes.NewBuffer(nil)
	_, err = m.WriteTo(out)
	require.NoError(t, err)

	// Drop the report ID written in front of every packet.
	written := make([]byte, 0)
	for _, chunk := range lo.Chunk(out.Bytes(), reportSize+1) {
		written = append(written, chunk[1:]...)
	}

	assert.Equal(t, responseBytes, written)
}

func TestNewMessage_Split(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, initDataSize+contDataSize+1)

	msg, err := NewMessage(testCID, CTAPHID_CBOR, data)
	require.NoError(t, err)
	require.Len(t, msg, 3)

	assert.False(t, msg[0].continuation)
	assert.Len(t, msg[0].data, initDataSize)
	assert.Equal(t, byte(0), msg[1].sequence)
	assert.Len(t, msg[1].data, contDataSize)
	assert.Equal(t, byte(1), msg[2].sequence)
	assert.Len(t, msg[2].data, 1)
}

func TestNewMessage_TooLarge(t *testing.T) {
	_, err := NewMessage(testCID, CTAPHID_CBOR, make([]byte, maxPayloadSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
