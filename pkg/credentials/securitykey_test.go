package credentials

import (
	"context"
	"encoding/json"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/device"
	"github.com/go-ctap/walletbridge/pkg/device/devicetest"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPIN = "123456"

	createOptions = `{"publicKey":{
		"rp":{"id":"wallet.example","name":"Wallet"},
		"user":{"id":"AQID","name":"alice","displayName":"Alice"},
		"challenge":"3q2-7w",
		"pubKeyCredParams":[{"type":"public-key","alg":-7}],
		"authenticatorSelection":{"residentKey":"required"},
		"attestation":"none",
		"extensions":{"credProps":true,"prf":{}},
		"hints":["security-key"]
	}}`

	getOptions = `{"publicKey":{
		"rpId":"wallet.example",
		"challenge":"3q2-7w",
		"extensions":{"prf":{"eval":{"first":"AQID"}}}
	}}`
)

// handle keeps the fake authenticator usable across ceremonies.
type handle struct {
	*devicetest.Authenticator
	closes atomic.Int32
}

func (h *handle) Close() error {
	h.closes.Add(1)
	return nil
}

type fakeSource struct {
	handle *handle
	second *handle
	absent atomic.Bool
}

func (s *fakeSource) Paths() ([]string, error) {
	if s.absent.Load() {
		return nil, nil
	}
	if s.second != nil {
		return []string{"fake://0", "fake://1"}, nil
	}
	return []string{"fake://0"}, nil
}

func (s *fakeSource) Open(path string) (*device.Device, error) {
	if path == "fake://1" {
		return device.Open(s.second, path)
	}
	return device.Open(s.handle, path)
}

type outcome struct {
	result string
	err    error
}

func createOp(options string) (CreateOperation, <-chan outcome) {
	ch := make(chan outcome, 1)
	return CreateOperation{
		OptionsJSON: options,
		Success:     func(result string) { ch <- outcome{result: result} },
		Failure:     func(err error) { ch <- outcome{err: err} },
	}, ch
}

func getOp(options string) (GetOperation, <-chan outcome) {
	ch := make(chan outcome, 1)
	return GetOperation{
		OptionsJSON: options,
		Success:     func(result string) { ch <- outcome{result: result} },
		Failure:     func(err error) { ch <- outcome{err: err} },
	}, ch
}

func await(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()

	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		require.FailNow(t, "operation did not settle")
		return outcome{}
	}
}

func staticPIN(pin string) PINPrompter {
	return PINPrompterFunc(func(context.Context, string) (string, error) {
		return pin, nil
	})
}

func newSecurityKey(t *testing.T, prompter PINPrompter, chooser CredentialChooser) (*SecurityKey, *fakeSource) {
	t.Helper()

	source := &fakeSource{handle: &handle{Authenticator: devicetest.New(testPIN)}}
	sk := NewSecurityKey(source, prompter, chooser, options.WithPollInterval(time.Millisecond))
	t.Cleanup(func() { _ = sk.Close() })

	return sk, source
}

func TestSecurityKey_Create(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(testPIN), nil)

	op, ch := createOp(createOptions)
	sk.Create(op)
	o := await(t, ch)
	require.NoError(t, o.err)

	var cred PublicKeyCredential[AttestationResponse]
	require.NoError(t, json.Unmarshal([]byte(o.result), &cred))

	creds := source.handle.Credentials()
	require.Len(t, creds, 1)
	assert.Equal(t, []byte(creds[0].ID), []byte(cred.RawID))
	assert.Equal(t, []byte{1, 2, 3}, creds[0].User.ID)
	assert.Equal(t, "public-key", cred.Type)
	assert.Equal(t, []string{"usb"}, cred.Response.Transports)
	assert.Equal(t, int64(-7), cred.Response.PublicKeyAlgorithm)
	assert.NotEmpty(t, cred.Response.PublicKey)
	assert.NotEmpty(t, cred.Response.AuthenticatorData)

	require.NotNil(t, cred.ClientExtensionResults.CredProps)
	assert.True(t, cred.ClientExtensionResults.CredProps.ResidentKey)
	require.NotNil(t, cred.ClientExtensionResults.PRF)
	require.NotNil(t, cred.ClientExtensionResults.PRF.Enabled)
	assert.True(t, *cred.ClientExtensionResults.PRF.Enabled)

	var cd protocol.CollectedClientData
	require.NoError(t, json.Unmarshal(cred.Response.ClientDataJSON, &cd))
	assert.Equal(t, protocol.CreateCeremony, cd.Type)
	assert.Equal(t, "3q2-7w", cd.Challenge)
	assert.Equal(t, "https://wallet.example", cd.Origin)

	var att ctaptypes.AttestationObject
	require.NoError(t, cbor.Unmarshal(cred.Response.AttestationObject, &att))
	assert.Equal(t, webauthntypes.AttestationStatementFormatIdentifierNone, att.Format)
	assert.Empty(t, att.AttestationStatement)

	assert.Equal(t, int32(1), source.handle.closes.Load())
}

func TestSecurityKey_Get(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(testPIN), nil)
	source.handle.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{
		ID:          []byte{9},
		DisplayName: "Alice",
	})

	op, ch := getOp(getOptions)
	sk.Get(op)
	o := await(t, ch)
	require.NoError(t, o.err)

	var cred PublicKeyCredential[AssertionResponse]
	require.NoError(t, json.Unmarshal([]byte(o.result), &cred))

	assert.Equal(t, []byte(source.handle.Credentials()[0].ID), []byte(cred.RawID))
	assert.Equal(t, []byte{9}, []byte(cred.Response.UserHandle))
	assert.NotEmpty(t, cred.Response.Signature)

	require.NotNil(t, cred.ClientExtensionResults.PRF)
	require.NotNil(t, cred.ClientExtensionResults.PRF.Results)
	assert.Len(t, cred.ClientExtensionResults.PRF.Results.First, 32)
	assert.Empty(t, cred.ClientExtensionResults.PRF.Results.Second)

	var cd protocol.CollectedClientData
	require.NoError(t, json.Unmarshal(cred.Response.ClientDataJSON, &cd))
	assert.Equal(t, protocol.AssertCeremony, cd.Type)
	assert.Equal(t, "https://wallet.example", cd.Origin)
}

func TestSecurityKey_GetSelectsCandidate(t *testing.T) {
	var offered []string
	chooser := CredentialChooserFunc(func(_ context.Context, rpID string, candidates []Candidate) (int, error) {
		assert.Equal(t, "wallet.example", rpID)
		for _, c := range candidates {
			offered = append(offered, c.Label())
		}
		return 1, nil
	})

	sk, source := newSecurityKey(t, staticPIN(testPIN), chooser)
	source.handle.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}, DisplayName: "Alice"})
	bob := source.handle.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{2}, DisplayName: "Bob"})

	op, ch := getOp(getOptions)
	sk.Get(op)
	o := await(t, ch)
	require.NoError(t, o.err)

	var cred PublicKeyCredential[AssertionResponse]
	require.NoError(t, json.Unmarshal([]byte(o.result), &cred))
	assert.Equal(t, []string{"Alice", "Bob"}, offered)
	assert.Equal(t, bob.ID, []byte(cred.RawID))
	assert.Equal(t, []byte{2}, []byte(cred.Response.UserHandle))
}

func TestSecurityKey_GetSelectionCancelled(t *testing.T) {
	chooser := CredentialChooserFunc(func(context.Context, string, []Candidate) (int, error) {
		return -1, ErrSelectionCancelled
	})

	sk, source := newSecurityKey(t, staticPIN(testPIN), chooser)
	source.handle.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}, DisplayName: "Alice"})
	source.handle.AddCredential("wallet.example", webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{2}, DisplayName: "Bob"})

	op, ch := getOp(getOptions)
	sk.Get(op)
	o := await(t, ch)
	assert.ErrorIs(t, o.err, ErrSelectionCancelled)
	assert.Equal(t, int32(1), source.handle.closes.Load())
}

func TestSecurityKey_GetNoCredentials(t *testing.T) {
	sk, _ := newSecurityKey(t, staticPIN(testPIN), nil)

	op, ch := getOp(getOptions)
	sk.Get(op)
	o := await(t, ch)
	assert.ErrorIs(t, o.err, ctaphid.CTAP2_ERR_NO_CREDENTIALS)
}

func TestSecurityKey_EmptyPIN(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(""), nil)

	op, ch := createOp(createOptions)
	sk.Create(op)
	o := await(t, ch)
	assert.ErrorIs(t, o.err, ErrAuthenticationRequired)
	assert.Empty(t, source.handle.Credentials())
	assert.Equal(t, int32(1), source.handle.closes.Load())
}

func TestSecurityKey_NoPINSet(t *testing.T) {
	var prompts atomic.Int32
	prompter := PINPrompterFunc(func(context.Context, string) (string, error) {
		prompts.Add(1)
		return testPIN, nil
	})

	source := &fakeSource{handle: &handle{Authenticator: devicetest.New("")}}
	sk := NewSecurityKey(source, prompter, nil, options.WithPollInterval(time.Millisecond))
	t.Cleanup(func() { _ = sk.Close() })

	op, ch := createOp(createOptions)
	sk.Create(op)
	o := await(t, ch)
	require.NoError(t, o.err)
	assert.Len(t, source.handle.Credentials(), 1)
	assert.Zero(t, prompts.Load())
	assert.NotContains(t, source.handle.Commands(), ctaptypes.AuthenticatorClientPIN)
}

func TestSecurityKey_WrongPIN(t *testing.T) {
	sk, _ := newSecurityKey(t, staticPIN("000000"), nil)

	op, ch := createOp(createOptions)
	sk.Create(op)
	o := await(t, ch)

	var ctapErr *ctaphid.CTAPError
	require.ErrorAs(t, o.err, &ctapErr)
	assert.Equal(t, ctaphid.CTAP2_ERR_PIN_INVALID, ctapErr.StatusCode)
}

func TestSecurityKey_InvalidOptions(t *testing.T) {
	sk, _ := newSecurityKey(t, staticPIN(testPIN), nil)

	op, ch := createOp(`{"publicKey":{"rp":{"id":"wallet.example"}}}`)
	sk.Create(op)
	o := await(t, ch)
	assert.ErrorIs(t, o.err, ErrInvalidOptions)
}

func TestSecurityKey_Superseded(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(testPIN), nil)
	source.absent.Store(true)

	first, firstCh := createOp(createOptions)
	sk.Create(first)
	second, secondCh := getOp(getOptions)
	sk.Get(second)

	assert.ErrorIs(t, await(t, firstCh).err, ErrOperationSuperseded)

	require.NoError(t, sk.Close())
	assert.ErrorIs(t, await(t, secondCh).err, ErrClosed)

	late, lateCh := createOp(createOptions)
	sk.Create(late)
	assert.ErrorIs(t, await(t, lateCh).err, ErrClosed)
}

func TestSecurityKey_WaitsForDevice(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(testPIN), nil)
	source.absent.Store(true)

	op, ch := createOp(createOptions)
	sk.Create(op)

	select {
	case <-ch:
		require.FailNow(t, "settled without a device")
	case <-time.After(20 * time.Millisecond):
	}

	source.absent.Store(false)
	require.NoError(t, await(t, ch).err)
}

func TestSecurityKey_SelectsTouchedKey(t *testing.T) {
	sk, source := newSecurityKey(t, staticPIN(testPIN), nil)
	source.second = &handle{Authenticator: devicetest.New(testPIN)}

	op, ch := createOp(createOptions)
	sk.Create(op)
	require.NoError(t, await(t, ch).err)

	var made int
	for _, h := range []*handle{source.handle, source.second} {
		assert.Contains(t, h.Commands(), ctaptypes.AuthenticatorSelection)
		assert.EqualValues(t, 1, h.closes.Load())
		if slices.Contains(h.Commands(), ctaptypes.AuthenticatorMakeCredential) {
			made++
		}
	}
	assert.Equal(t, 1, made)
}
