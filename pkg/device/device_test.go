package device_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/go-ctap/walletbridge/pkg/ctap"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/device"
	"github.com/go-ctap/walletbridge/pkg/device/devicetest"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	"github.com/ldclabs/cose/iana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPIN = "123456"

func openDevice(t *testing.T) (*device.Device, *devicetest.Authenticator) {
	t.Helper()

	auth := devicetest.New(testPIN)
	dev, err := device.Open(auth, "fake://0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	return dev, auth
}

func TestOpen(t *testing.T) {
	dev, _ := openDevice(t)

	info := dev.GetInfo()
	assert.True(t, info.Versions.Supports(ctaptypes.FIDO_2_1))
	assert.Equal(t, devicetest.AAGUID, info.AAGUID)
	assert.Equal(t, ctaptypes.PinUvAuthProtocolTwo, info.PreferredPinUvAuthProtocol())
	assert.True(t, dev.ClientPINSet())

	require.NoError(t, dev.Ping([]byte("ping")))
	require.NoError(t, dev.Wink())

	retries, powerCycle, err := dev.GetPINRetries()
	require.NoError(t, err)
	assert.Equal(t, uint(8), retries)
	assert.False(t, powerCycle)
}

func TestGetPinUvAuthTokenUsingPIN_Invalid(t *testing.T) {
	dev, _ := openDevice(t)

	_, err := dev.GetPinUvAuthTokenUsingPIN("000000", ctaptypes.PermissionMakeCredential, "wallet.example")
	assert.ErrorIs(t, err, ctaphid.CTAP2_ERR_PIN_INVALID)
}

func TestMakeCredential_RequiresToken(t *testing.T) {
	dev, _ := openDevice(t)

	_, err := dev.MakeCredential(nil, ctap.MakeCredentialParams{})
	assert.ErrorIs(t, err, device.ErrPinUvAuthTokenRequired)
}

func TestMakeCredentialThenGetAssertion(t *testing.T) {
	dev, auth := openDevice(t)

	token, err := dev.GetPinUvAuthTokenUsingPIN(testPIN, ctaptypes.PermissionMakeCredential, "wallet.example")
	require.NoError(t, err)

	resp, err := dev.MakeCredential(token, ctap.MakeCredentialParams{
		ClientData: []byte(`{"type":"webauthn.create"}`),
		RP:         webauthntypes.PublicKeyCredentialRpEntity{ID: "wallet.example", Name: "Wallet"},
		User: webauthntypes.PublicKeyCredentialUserEntity{
			ID:          []byte{1, 2, 3},
			Name:        "alice",
			DisplayName: "Alice",
		},
		PubKeyCredParams: []webauthntypes.PublicKeyCredentialParameters{{
			Type:      webauthntypes.PublicKeyCredentialTypePublicKey,
			Algorithm: iana.AlgorithmES256,
		}},
		Extensions: &ctaptypes.CreateExtensionInputs{
			CreateHMACSecretInput: &ctaptypes.CreateHMACSecretInput{HMACSecret: true},
		},
		Options: map[ctaptypes.Option]bool{ctaptypes.OptionResidentKeys: true},
	})
	require.NoError(t, err)

	require.NotNil(t, resp.AuthData.AttestedCredentialData)
	credID := resp.AuthData.AttestedCredentialData.CredentialID
	require.Len(t, auth.Credentials(), 1)
	assert.Equal(t, auth.Credentials()[0].ID, credID)
	assert.True(t, resp.AuthData.Flags.UserVerified())
	require.NotNil(t, resp.AuthData.Extensions)
	assert.True(t, resp.AuthData.Extensions.HMACSecret)

	token, err = dev.GetPinUvAuthTokenUsingPIN(testPIN, ctaptypes.PermissionGetAssertion, "wallet.example")
	require.NoError(t, err)

	salt := sha256.Sum256([]byte("salt"))
	var assertions []*ctaptypes.AuthenticatorGetAssertionResponse
	for assertion, err := range dev.GetAssertion(token, ctap.GetAssertionParams{
		RPID:       "wallet.example",
		ClientData: []byte(`{"type":"webauthn.get"}`),
	}, &device.HMACSecretInput{Salt1: salt[:]}) {
		require.NoError(t, err)
		assertions = append(assertions, assertion)
	}

	require.Len(t, assertions, 1)
	assert.True(t, bytes.Equal(credID, assertions[0].Credential.ID))
	require.NotNil(t, assertions[0].HMACSecret)
	assert.Len(t, assertions[0].HMACSecret.Output1, 32)
	assert.Empty(t, assertions[0].HMACSecret.Output2)
}

func TestGetAssertion_Multiple(t *testing.T) {
	dev, auth := openDevice(t)
	auth.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}, DisplayName: "Alice"})
	auth.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{2}, DisplayName: "Bob"})
	auth.AddCredential("other.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{3}, DisplayName: "Carol"})

	token, err := dev.GetPinUvAuthTokenUsingPIN(testPIN, ctaptypes.PermissionGetAssertion, "wallet.example")
	require.NoError(t, err)

	names := make([]string, 0)
	for assertion, err := range dev.GetAssertion(token, ctap.GetAssertionParams{
		RPID:       "wallet.example",
		ClientData: []byte(`{}`),
	}, nil) {
		require.NoError(t, err)
		names = append(names, assertion.User.DisplayName)
	}

	assert.Equal(t, []string{"Alice", "Bob"}, names)
	assert.Contains(t, auth.Commands(), ctaptypes.AuthenticatorGetNextAssertion)
}

func TestGetAssertion_NoCredentials(t *testing.T) {
	dev, _ := openDevice(t)

	token, err := dev.GetPinUvAuthTokenUsingPIN(testPIN, ctaptypes.PermissionGetAssertion, "wallet.example")
	require.NoError(t, err)

	for _, err := range dev.GetAssertion(token, ctap.GetAssertionParams{RPID: "wallet.example"}, nil) {
		assert.ErrorIs(t, err, ctaphid.CTAP2_ERR_NO_CREDENTIALS)
	}
}

func TestClose(t *testing.T) {
	dev, auth := openDevice(t)

	require.NoError(t, dev.Close())
	assert.True(t, auth.Closed())
	assert.Error(t, dev.Wink())
}

func TestSelection(t *testing.T) {
	dev, _ := openDevice(t)

	require.NoError(t, dev.Selection(context.Background()))
}

func TestSelection_Touch(t *testing.T) {
	dev, key := openDevice(t)
	key.RequireTouch()

	errc := make(chan error, 1)
	go func() { errc <- dev.Selection(context.Background()) }()

	require.Eventually(t, key.Waiting, 5*time.Second, time.Millisecond)
	key.Touch()
	require.NoError(t, <-errc)
}

func TestSelection_Cancel(t *testing.T) {
	dev, key := openDevice(t)
	key.RequireTouch()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- dev.Selection(ctx) }()

	require.Eventually(t, key.Waiting, 5*time.Second, time.Millisecond)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, key.Waiting())
}
