package ble

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ctap/walletbridge/pkg/gatt"
)

var testService = uuid.MustParse("00179c7a-eec6-4f88-8646-045fda9ac4d8")

func newTestServer(t *testing.T, mode gatt.Mode) (*Server, *fakeRadio, *gatt.Selector) {
	t.Helper()

	radio := &fakeRadio{}
	selector := gatt.NewSelector(mode)
	return NewServer(radio, selector), radio, selector
}

func connectedServer(t *testing.T) (*Server, *fakeRadio, *gatt.Selector) {
	t.Helper()

	s, radio, selector := newTestServer(t, gatt.ModeReader)
	var success, failure counter
	require.NoError(t, s.CreateServer(testService, success.call, failure.call))
	require.Equal(t, 1, success.count())

	s.Handle(ConnectionChanged{Peer: "AA:BB", Connected: true})
	require.IsType(t, &Connected{}, s.State())

	return s, radio, selector
}

func TestServerCreateThenConnect(t *testing.T) {
	s, radio, selector := newTestServer(t, gatt.ModeReader)

	var success, failure counter
	require.NoError(t, s.CreateServer(testService, success.call, failure.call))

	assert.Equal(t, 1, success.count())
	assert.Zero(t, failure.count())
	assert.Equal(t, "Advertising("+testService.String()+")", s.Status())
	assert.True(t, selector.Active())

	assert.Equal(t, DefaultAdvertiseSettings, radio.advertiseSettings)
	assert.Equal(t, testService, radio.spec.Service)
	require.Len(t, radio.spec.Characteristics, 4)
	for _, c := range radio.spec.Characteristics {
		if c.Properties.Has(gatt.PropertyNotify) {
			require.Len(t, c.Descriptors, 1, c.Role)
			assert.Equal(t, gatt.ClientCharacteristicConfigUUID, c.Descriptors[0].UUID)
			assert.Equal(t, []byte{0x02, 0x00}, c.Descriptors[0].Value)
		} else {
			assert.Empty(t, c.Descriptors, c.Role)
		}
	}

	s.Handle(ConnectionChanged{Peer: "AA:BB", Connected: true})

	st, ok := s.State().(*Connected)
	require.True(t, ok)
	assert.Equal(t, "AA:BB", st.Peer)
	assert.False(t, st.HasPendingRead())
	assert.False(t, st.HasPendingWrite())
	assert.Equal(t, "Connected(AA:BB)", s.Status())
	assert.Equal(t, 1, radio.advertisers[0].count())
	assert.Zero(t, radio.server().closes)
}

func TestServerPreconditions(t *testing.T) {
	for _, want := range []error{ErrPermission, ErrAdapterUnavailable, ErrAdapterDisabled} {
		t.Run(want.Error(), func(t *testing.T) {
			s, radio, selector := newTestServer(t, gatt.ModeReader)
			radio.checkErr = want

			var success, failure counter
			err := s.CreateServer(testService, success.call, failure.call)
			assert.ErrorIs(t, err, want)
			assert.Equal(t, 1, failure.count())
			assert.Zero(t, success.count())
			assert.Equal(t, Disconnected{}, s.State())
			assert.False(t, selector.Active())
		})
	}
}

func TestServerAdvertisingFailure(t *testing.T) {
	s, radio, selector := newTestServer(t, gatt.ModeHolder)
	radio.advertiseErr = errors.New("advertise data too large")

	var success, failure counter
	err := s.CreateServer(testService, success.call, failure.call)
	require.Error(t, err)

	assert.Equal(t, 1, failure.count())
	assert.Zero(t, success.count())
	assert.Equal(t, Disconnected{}, s.State())
	assert.Equal(t, 1, radio.server().closes)
	assert.False(t, selector.Active())
}

func TestServerCreateTwice(t *testing.T) {
	s, _, _ := newTestServer(t, gatt.ModeReader)

	var success, failure counter
	require.NoError(t, s.CreateServer(testService, success.call, failure.call))
	assert.ErrorIs(t, s.CreateServer(testService, success.call, failure.call), ErrInvalidState)
	assert.Equal(t, 1, success.count())
	assert.Equal(t, 1, failure.count())
}

func TestServerServiceAddedFailure(t *testing.T) {
	s, radio, selector := newTestServer(t, gatt.ModeReader)

	var success, failure counter
	require.NoError(t, s.CreateServer(testService, success.call, failure.call))

	s.Handle(ServiceAdded{Service: testService, Status: StatusFailure})

	assert.Equal(t, Disconnected{}, s.State())
	assert.Equal(t, 1, failure.count())
	assert.Equal(t, 1, radio.server().closes)
	assert.Equal(t, 1, radio.advertisers[0].count())
	assert.False(t, selector.Active())
}

func TestServerOperationsOutsideConnected(t *testing.T) {
	s, _, _ := newTestServer(t, gatt.ModeReader)

	check := func() {
		before := s.State()
		var success, failure counter
		s.SendToClient([]byte{1}, success.call, failure.call)
		s.ReceiveFromClient(success.receive, failure.call)
		assert.Equal(t, 2, failure.count())
		assert.Zero(t, success.count())
		assert.Equal(t, before, s.State())
	}

	check()

	var success, failure counter
	require.NoError(t, s.CreateServer(testService, success.call, failure.call))
	check()
}

func TestServerReceiveFromClient(t *testing.T) {
	s, radio, _ := connectedServer(t)
	catalog := gatt.CatalogFor(gatt.ModeReader)

	var read, failure counter
	s.ReceiveFromClient(read.receive, failure.call)
	require.True(t, s.State().(*Connected).HasPendingRead())

	s.Handle(CharacteristicWrite{
		Peer:           "AA:BB",
		RequestID:      7,
		Characteristic: catalog.ClientToServer.UUID,
		Value:          []byte{1, 2, 3},
		ResponseNeeded: true,
	})

	require.Equal(t, 1, read.count())
	assert.Equal(t, []byte{1, 2, 3}, read.values[0])
	assert.False(t, s.State().(*Connected).HasPendingRead())

	server := radio.server()
	require.Len(t, server.notifies, 1)
	assert.Equal(t, catalog.ClientToServer.UUID, server.notifies[0].characteristic)
	assert.Equal(t, []byte{1, 2, 3}, server.notifies[0].value)
	assert.False(t, server.notifies[0].confirm)
	assert.Equal(t, []response{{requestID: 7, status: StatusSuccess}}, server.responses)

	// The slot is single-shot; later writes are still echoed.
	s.Handle(CharacteristicWrite{Characteristic: catalog.ClientToServer.UUID, Value: []byte{4}})
	assert.Equal(t, 1, read.count())
	assert.Len(t, server.notifies, 2)
	assert.Zero(t, failure.count())
}

func TestServerWriteRequests(t *testing.T) {
	catalog := gatt.CatalogFor(gatt.ModeReader)

	tests := []struct {
		name           string
		characteristic uuid.UUID
		value          []byte
		want           Status
	}{
		{"state handshake", catalog.State.UUID, []byte{0x01}, StatusSuccess},
		{"server to client", catalog.ServerToClient.UUID, []byte{0x01}, StatusSuccess},
		{"empty payload", catalog.ClientToServer.UUID, nil, StatusFailure},
		{"unknown characteristic", uuid.New(), []byte{0x01}, StatusFailure},
		{"holder characteristic", gatt.CatalogFor(gatt.ModeHolder).ClientToServer.UUID, []byte{0x01}, StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, radio, _ := connectedServer(t)

			s.Handle(CharacteristicWrite{
				RequestID:      1,
				Characteristic: tt.characteristic,
				Value:          tt.value,
				ResponseNeeded: true,
			})

			server := radio.server()
			require.Len(t, server.responses, 1)
			assert.Equal(t, tt.want, server.responses[0].status)
			assert.Empty(t, server.notifies)
		})
	}
}

func TestServerWriteWithoutResponse(t *testing.T) {
	s, radio, _ := connectedServer(t)

	s.Handle(CharacteristicWrite{
		Characteristic: gatt.CatalogFor(gatt.ModeReader).State.UUID,
		Value:          []byte{0x01},
	})
	assert.Empty(t, radio.server().responses)
}

func TestServerReadRequest(t *testing.T) {
	s, radio, _ := connectedServer(t)
	catalog := gatt.CatalogFor(gatt.ModeReader)

	var read, failure counter
	s.ReceiveFromClient(read.receive, failure.call)

	s.Handle(CharacteristicRead{RequestID: 3, Characteristic: catalog.ServerToClient.UUID, Value: []byte{9}})
	require.Equal(t, 1, read.count())
	assert.Equal(t, []byte{9}, read.values[0])

	s.Handle(CharacteristicRead{RequestID: 4, Characteristic: uuid.New()})

	server := radio.server()
	require.Len(t, server.responses, 2)
	assert.Equal(t, response{requestID: 3, status: StatusSuccess, value: []byte{9}}, server.responses[0])
	assert.Equal(t, StatusFailure, server.responses[1].status)
}

func TestServerDescriptorWrite(t *testing.T) {
	s, radio, _ := connectedServer(t)

	s.Handle(DescriptorWrite{
		RequestID:      5,
		Descriptor:     gatt.ClientCharacteristicConfigUUID,
		Value:          gatt.EnableNotificationValue,
		ResponseNeeded: true,
	})
	assert.Equal(t, []response{{requestID: 5, status: StatusSuccess}}, radio.server().responses)
}

func TestServerSendToClient(t *testing.T) {
	s, radio, _ := connectedServer(t)

	var success, failure counter
	s.SendToClient([]byte{1, 2, 3, 4, 5, 6}, success.call, failure.call)
	assert.Equal(t, 1, success.count())

	server := radio.server()
	require.Len(t, server.notifies, 1)
	assert.Equal(t, gatt.CatalogFor(gatt.ModeReader).ServerToClient.UUID, server.notifies[0].characteristic)
	assert.True(t, server.notifies[0].confirm)
	assert.Equal(t, "AA:BB", server.notifies[0].peer)

	server.notifyErr = errors.New("gatt busy")
	s.SendToClient([]byte{6, 5, 4, 3, 2, 1}, success.call, failure.call)
	assert.Equal(t, 1, success.count())
	assert.Equal(t, 1, failure.count())
	assert.IsType(t, &Connected{}, s.State())
}

func TestServerDisconnectReleasesOnce(t *testing.T) {
	sequences := [][]bool{
		{false},
		{true, false},
		{true, false, false},
		{false, true, false},
		{true, true, false, true, false},
	}

	for _, seq := range sequences {
		s, radio, selector := newTestServer(t, gatt.ModeReader)

		var success, failure counter
		require.NoError(t, s.CreateServer(testService, success.call, failure.call))

		for _, connected := range seq {
			s.Handle(ConnectionChanged{Peer: "AA:BB", Connected: connected})
			if !connected {
				assert.Equal(t, Disconnected{}, s.State())
			}
		}
		s.Disconnect()

		assert.Equal(t, Disconnected{}, s.State())
		assert.Equal(t, 1, radio.server().closes)
		assert.LessOrEqual(t, radio.advertisers[0].count(), 1)
		assert.False(t, selector.Active())
	}
}

func TestServerModeLockedWhileActive(t *testing.T) {
	s, _, selector := connectedServer(t)

	assert.ErrorIs(t, selector.SetMode(gatt.ModeHolder), gatt.ErrSessionActive)
	assert.Equal(t, gatt.ModeReader, selector.Mode())

	s.Disconnect()
	assert.NoError(t, selector.SetMode(gatt.ModeHolder))
}
