// Package devicetest provides an in-memory CTAP2 authenticator that speaks
// CTAPHID over io.ReadWriteCloser, for tests of code driving a device.Device.
package devicetest

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/walletbridge/pkg/crypto"
	"github.com/go-ctap/walletbridge/pkg/crypto/protocolone"
	"github.com/go-ctap/walletbridge/pkg/crypto/protocoltwo"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	cosecdh "github.com/ldclabs/cose/key/ecdh"
	cosecdsa "github.com/ldclabs/cose/key/ecdsa"
)

// AAGUID identifies credentials minted by the fake authenticator.
var AAGUID = uuid.MustParse("3f8a1c52-7d3e-4b7a-9f0d-2a6c9e5b1d47")

// Credential is a discoverable credential held by the Authenticator.
type Credential struct {
	RPID       string
	ID         []byte
	User       webauthntypes.PublicKeyCredentialUserEntity
	PrivateKey *ecdsa.PrivateKey
	credRandom []byte
	signCount  uint32
}

// Authenticator is a FIDO2.1 security key with clientPin, pinUvAuthToken and hmac-secret.
type Authenticator struct {
	mu sync.Mutex

	pin        string
	pinRetries uint
	encMode    cbor.EncMode
	cid        ctaphid.ChannelID

	keyAgreement  *ecdh.PrivateKey
	pinToken      []byte
	tokenProtocol ctaptypes.PinUvAuthProtocol

	creds   []*Credential
	pending []*ctaptypes.AuthenticatorGetAssertionResponse

	inbound  []byte
	outbound [][]byte
	commands []ctaptypes.Command
	closed   bool

	// Selection waits for Touch when awaitTouch is set.
	awaitTouch   bool
	touched      bool
	touchPending bool
	touchCID     ctaphid.ChannelID
	ready        *sync.Cond
}

// New returns an authenticator protected by pin.
func New(pin string) *Authenticator {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()

	a := &Authenticator{
		pin:        pin,
		pinRetries: 8,
		encMode:    encMode,
		cid:        ctaphid.ChannelID{0xca, 0xfe, 0x00, 0x01},
	}
	a.ready = sync.NewCond(&a.mu)
	return a
}

// RequireTouch makes authenticatorSelection block until Touch is called or
// the request is cancelled with CTAPHID_CANCEL.
func (a *Authenticator) RequireTouch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.awaitTouch = true
}

// Touch confirms user presence for a waiting or the next selection.
func (a *Authenticator) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.touchPending {
		a.touched = true
		return
	}
	a.touchPending = false
	_ = a.reply(a.touchCID, ctaphid.CTAPHID_CBOR, []byte{byte(ctaphid.CTAP2_OK)})
}

// Waiting reports whether a selection is waiting for Touch.
func (a *Authenticator) Waiting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.touchPending
}

// AddCredential registers a discoverable credential, as if created earlier.
func (a *Authenticator) AddCredential(rpID string, user webauthntypes.PublicKeyCredentialUserEntity) *Credential {
	a.mu.Lock()
	defer a.mu.Unlock()

	cred, err := a.newCredential(rpID, user)
	if err != nil {
		panic(err)
	}
	return cred
}

// Credentials returns the credentials created so far.
func (a *Authenticator) Credentials() []*Credential {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.creds)
}

// Commands returns the CTAP2 commands received so far, in order.
func (a *Authenticator) Commands() []ctaptypes.Command {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.commands)
}

// Closed reports whether Close was called.
func (a *Authenticator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.closed
}

func (a *Authenticator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.ready.Broadcast()
	return nil
}

// Write accepts one HID output report (report ID first).
func (a *Authenticator) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) < 1 {
		return 0, nil
	}
	a.inbound = append(a.inbound, p[1:]...)

	msg := make(ctaphid.Message, 0)
	if _, err := msg.ReadFrom(bytes.NewReader(a.inbound)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return len(p), nil
		}
		return 0, err
	}
	a.inbound = nil

	if err := a.handle(msg); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns the next queued HID input report.
func (a *Authenticator) Read(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for !a.closed && len(a.outbound) == 0 && a.touchPending {
		a.ready.Wait()
	}
	if a.closed || len(a.outbound) == 0 {
		return 0, io.EOF
	}

	n := copy(p, a.outbound[0])
	a.outbound = a.outbound[1:]
	return n, nil
}

func (a *Authenticator) reply(cid ctaphid.ChannelID, cmd ctaphid.Command, data []byte) error {
	msg, err := ctaphid.NewMessage(cid, cmd, data)
	if err != nil {
		return err
	}
	reports, err := msg.Reports()
	if err != nil {
		return err
	}
	a.outbound = append(a.outbound, reports...)
	a.ready.Broadcast()
	return nil
}

func (a *Authenticator) handle(msg ctaphid.Message) error {
	payload := msg.Payload()

	switch msg.Command() {
	case ctaphid.CTAPHID_INIT:
		resp := slices.Concat(payload, a.cid[:], []byte{
			2, 1, 0, 0,
			byte(ctaphid.CAPABILITY_WINK | ctaphid.CAPABILITY_CBOR),
		})
		return a.reply(msg.CID(), ctaphid.CTAPHID_INIT, resp)
	case ctaphid.CTAPHID_PING:
		return a.reply(msg.CID(), ctaphid.CTAPHID_PING, payload)
	case ctaphid.CTAPHID_WINK:
		return a.reply(msg.CID(), ctaphid.CTAPHID_WINK, nil)
	case ctaphid.CTAPHID_CANCEL:
		if !a.touchPending {
			return nil
		}
		a.touchPending = false
		return a.reply(a.touchCID, ctaphid.CTAPHID_CBOR, []byte{byte(ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL)})
	case ctaphid.CTAPHID_CBOR:
		if len(payload) > 0 && ctaptypes.Command(payload[0]) == ctaptypes.AuthenticatorSelection &&
			a.awaitTouch && !a.touched {
			a.commands = append(a.commands, ctaptypes.AuthenticatorSelection)
			a.touchCID = msg.CID()
			a.touchPending = true
			return nil
		}
		if len(payload) > 0 && ctaptypes.Command(payload[0]) == ctaptypes.AuthenticatorSelection {
			a.touched = false
		}
		status, body := a.command(payload)
		return a.reply(msg.CID(), ctaphid.CTAPHID_CBOR, slices.Concat([]byte{byte(status)}, body))
	default:
		return a.reply(msg.CID(), ctaphid.CTAPHID_ERROR, []byte{byte(ctaphid.ERR_INVALID_CMD)})
	}
}

func (a *Authenticator) command(payload []byte) (ctaphid.StatusCode, []byte) {
	if len(payload) < 1 {
		return ctaphid.CTAP1_ERR_INVALID_LENGTH, nil
	}
	cmd := ctaptypes.Command(payload[0])
	a.commands = append(a.commands, cmd)

	switch cmd {
	case ctaptypes.AuthenticatorGetInfo:
		return a.encode(map[int]any{
			1: []string{string(ctaptypes.FIDO_2_0), string(ctaptypes.FIDO_2_1)},
			2: []string{string(webauthntypes.ExtensionIdentifierHMACSecret)},
			3: AAGUID[:],
			4: map[string]bool{
				string(ctaptypes.OptionResidentKeys):   true,
				string(ctaptypes.OptionUserPresence):   true,
				string(ctaptypes.OptionClientPIN):      a.pin != "",
				string(ctaptypes.OptionPinUvAuthToken): true,
			},
			5: 1200,
			6: []int{int(ctaptypes.PinUvAuthProtocolTwo), int(ctaptypes.PinUvAuthProtocolOne)},
		})
	case ctaptypes.AuthenticatorClientPIN:
		return a.clientPIN(payload[1:])
	case ctaptypes.AuthenticatorMakeCredential:
		return a.makeCredential(payload[1:])
	case ctaptypes.AuthenticatorGetAssertion:
		return a.getAssertion(payload[1:])
	case ctaptypes.AuthenticatorGetNextAssertion:
		if len(a.pending) == 0 {
			return ctaphid.CTAP2_ERR_NOT_ALLOWED, nil
		}
		next := a.pending[0]
		a.pending = a.pending[1:]
		return a.encode(next)
	case ctaptypes.AuthenticatorSelection:
		return ctaphid.CTAP2_OK, nil
	default:
		return ctaphid.CTAP1_ERR_INVALID_COMMAND, nil
	}
}

func (a *Authenticator) encode(v any) (ctaphid.StatusCode, []byte) {
	b, err := a.encMode.Marshal(v)
	if err != nil {
		return ctaphid.CTAP1_ERR_OTHER, nil
	}
	return ctaphid.CTAP2_OK, b
}

func (a *Authenticator) sharedSecret(protocol ctaptypes.PinUvAuthProtocol, platformKey key.Key) ([]byte, error) {
	if a.keyAgreement == nil {
		return nil, errors.New("devicetest: no key agreement")
	}

	peer, err := cosecdh.KeyToPublic(platformKey)
	if err != nil {
		return nil, err
	}
	z, err := a.keyAgreement.ECDH(peer)
	if err != nil {
		return nil, err
	}

	switch protocol {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.KDF(z), nil
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.KDF(z)
	default:
		return nil, crypto.ErrInvalidAuthProtocol
	}
}

func encrypt(protocol ctaptypes.PinUvAuthProtocol, secret, plaintext []byte) ([]byte, error) {
	if protocol == ctaptypes.PinUvAuthProtocolOne {
		return protocolone.Encrypt(secret, plaintext)
	}
	return protocoltwo.Encrypt(secret, plaintext)
}

func decrypt(protocol ctaptypes.PinUvAuthProtocol, secret, ciphertext []byte) ([]byte, error) {
	if protocol == ctaptypes.PinUvAuthProtocolOne {
		return protocolone.Decrypt(secret, ciphertext)
	}
	return protocoltwo.Decrypt(secret, ciphertext)
}

func (a *Authenticator) clientPIN(body []byte) (ctaphid.StatusCode, []byte) {
	var req ctaptypes.AuthenticatorClientPINRequest
	if err := cbor.Unmarshal(body, &req); err != nil {
		return ctaphid.CTAP2_ERR_INVALID_CBOR, nil
	}

	switch req.SubCommand {
	case ctaptypes.ClientPINSubCommandGetPINRetries:
		return a.encode(map[int]any{3: a.pinRetries})
	case ctaptypes.ClientPINSubCommandGetKeyAgreement:
		priv, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		a.keyAgreement = priv

		coseKey, err := cosecdh.KeyFromPublic(priv.PublicKey())
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		// ECDH-ES+HKDF-256
		_ = coseKey.Set(iana.KeyParameterAlg, -25)
		delete(coseKey, iana.KeyParameterKid)

		return a.encode(map[int]any{1: coseKey})
	case ctaptypes.ClientPINSubCommandGetPinToken,
		ctaptypes.ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions:
		if a.pin == "" {
			return ctaphid.CTAP2_ERR_PIN_NOT_SET, nil
		}
		if a.pinRetries == 0 {
			return ctaphid.CTAP2_ERR_PIN_BLOCKED, nil
		}

		secret, err := a.sharedSecret(req.PinUvAuthProtocol, req.KeyAgreement)
		if err != nil {
			return ctaphid.CTAP1_ERR_INVALID_PARAMETER, nil
		}
		pinHash, err := decrypt(req.PinUvAuthProtocol, secret, req.PinHashEnc)
		if err != nil {
			return ctaphid.CTAP1_ERR_INVALID_PARAMETER, nil
		}

		want := sha256.Sum256([]byte(a.pin))
		if !hmac.Equal(pinHash, want[:16]) {
			a.pinRetries--
			return ctaphid.CTAP2_ERR_PIN_INVALID, nil
		}

		a.pinToken = make([]byte, 32)
		if _, err := rand.Read(a.pinToken); err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		a.tokenProtocol = req.PinUvAuthProtocol

		tokenEnc, err := encrypt(req.PinUvAuthProtocol, secret, a.pinToken)
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		return a.encode(map[int]any{2: tokenEnc})
	default:
		return ctaphid.CTAP1_ERR_INVALID_COMMAND, nil
	}
}

func (a *Authenticator) verifyToken(clientDataHash, pinUvAuthParam []byte) ctaphid.StatusCode {
	if a.pin == "" {
		return ctaphid.CTAP2_OK
	}
	if pinUvAuthParam == nil {
		return ctaphid.CTAP2_ERR_PUAT_REQUIRED
	}
	if a.pinToken == nil {
		return ctaphid.CTAP2_ERR_PIN_AUTH_INVALID
	}

	want := crypto.Authenticate(a.tokenProtocol, a.pinToken, clientDataHash)
	if !hmac.Equal(want, pinUvAuthParam) {
		return ctaphid.CTAP2_ERR_PIN_AUTH_INVALID
	}
	return ctaphid.CTAP2_OK
}

func (a *Authenticator) newCredential(rpID string, user webauthntypes.PublicKeyCredentialUserEntity) (*Credential, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		RPID:       rpID,
		ID:         make([]byte, 16),
		User:       user,
		PrivateKey: priv,
		credRandom: make([]byte, 32),
	}
	if _, err := rand.Read(cred.ID); err != nil {
		return nil, err
	}
	if _, err := rand.Read(cred.credRandom); err != nil {
		return nil, err
	}

	// A newer credential for the same user handle replaces the older one.
	a.creds = slices.DeleteFunc(a.creds, func(c *Credential) bool {
		return c.RPID == rpID && bytes.Equal(c.User.ID, user.ID)
	})
	a.creds = append(a.creds, cred)

	return cred, nil
}

func (a *Authenticator) authData(cred *Credential, flags ctaptypes.AuthDataFlag, attested bool, extensions []byte) ([]byte, error) {
	rpIDHash := sha256.Sum256([]byte(cred.RPID))
	cred.signCount++

	data := slices.Concat(rpIDHash[:], []byte{byte(flags)}, binary.BigEndian.AppendUint32(nil, cred.signCount))
	if attested {
		coseKey, err := cosecdsa.KeyFromPublic(&cred.PrivateKey.PublicKey)
		if err != nil {
			return nil, err
		}
		_ = coseKey.Set(iana.KeyParameterAlg, iana.AlgorithmES256)
		delete(coseKey, iana.KeyParameterKid)

		coseKeyRaw, err := a.encMode.Marshal(coseKey)
		if err != nil {
			return nil, err
		}

		data = slices.Concat(
			data,
			AAGUID[:],
			binary.BigEndian.AppendUint16(nil, uint16(len(cred.ID))),
			cred.ID,
			coseKeyRaw,
		)
	}

	return slices.Concat(data, extensions), nil
}

func (a *Authenticator) sign(cred *Credential, authData, clientDataHash []byte) ([]byte, error) {
	digest := sha256.Sum256(slices.Concat(authData, clientDataHash))
	return ecdsa.SignASN1(rand.Reader, cred.PrivateKey, digest[:])
}

func (a *Authenticator) makeCredential(body []byte) (ctaphid.StatusCode, []byte) {
	var req ctaptypes.AuthenticatorMakeCredentialRequest
	if err := cbor.Unmarshal(body, &req); err != nil {
		return ctaphid.CTAP2_ERR_INVALID_CBOR, nil
	}
	if status := a.verifyToken(req.ClientDataHash, req.PinUvAuthParam); status != ctaphid.CTAP2_OK {
		return status, nil
	}

	if !slices.ContainsFunc(req.PubKeyCredParams, func(p webauthntypes.PublicKeyCredentialParameters) bool {
		return p.Algorithm == iana.AlgorithmES256
	}) {
		return ctaphid.CTAP2_ERR_UNSUPPORTED_ALGORITHM, nil
	}

	for _, excluded := range req.ExcludeList {
		if slices.ContainsFunc(a.creds, func(c *Credential) bool {
			return c.RPID == req.RP.ID && bytes.Equal(c.ID, excluded.ID)
		}) {
			return ctaphid.CTAP2_ERR_CREDENTIAL_EXCLUDED, nil
		}
	}

	cred, err := a.newCredential(req.RP.ID, req.User)
	if err != nil {
		return ctaphid.CTAP1_ERR_OTHER, nil
	}

	flags := ctaptypes.AuthDataFlagUserPresent | ctaptypes.AuthDataFlagAttestedCredentialDataIncluded
	if req.PinUvAuthParam != nil {
		flags |= ctaptypes.AuthDataFlagUserVerified
	}

	var extensions []byte
	if req.Extensions != nil && req.Extensions.CreateHMACSecretInput != nil {
		extensions, err = a.encMode.Marshal(map[string]any{
			string(webauthntypes.ExtensionIdentifierHMACSecret): true,
		})
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		flags |= ctaptypes.AuthDataFlagExtensionDataIncluded
	}

	authData, err := a.authData(cred, flags, true, extensions)
	if err != nil {
		return ctaphid.CTAP1_ERR_OTHER, nil
	}
	sig, err := a.sign(cred, authData, req.ClientDataHash)
	if err != nil {
		return ctaphid.CTAP1_ERR_OTHER, nil
	}

	return a.encode(&ctaptypes.AuthenticatorMakeCredentialResponse{
		Format:      webauthntypes.AttestationStatementFormatIdentifierPacked,
		AuthDataRaw: authData,
		AttestationStatement: map[string]any{
			"alg": iana.AlgorithmES256,
			"sig": sig,
		},
	})
}

func (a *Authenticator) getAssertion(body []byte) (ctaphid.StatusCode, []byte) {
	var req ctaptypes.AuthenticatorGetAssertionRequest
	if err := cbor.Unmarshal(body, &req); err != nil {
		return ctaphid.CTAP2_ERR_INVALID_CBOR, nil
	}
	if status := a.verifyToken(req.ClientDataHash, req.PinUvAuthParam); status != ctaphid.CTAP2_OK {
		return status, nil
	}

	matches := make([]*Credential, 0)
	for _, c := range a.creds {
		if c.RPID != req.RPID {
			continue
		}
		if len(req.AllowList) > 0 && !slices.ContainsFunc(req.AllowList, func(d webauthntypes.PublicKeyCredentialDescriptor) bool {
			return bytes.Equal(d.ID, c.ID)
		}) {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) == 0 {
		return ctaphid.CTAP2_ERR_NO_CREDENTIALS, nil
	}

	flags := ctaptypes.AuthDataFlagUserPresent
	if req.PinUvAuthParam != nil {
		flags |= ctaptypes.AuthDataFlagUserVerified
	}

	var salt []byte
	var secret []byte
	var protocol ctaptypes.PinUvAuthProtocol
	if req.Extensions != nil && req.Extensions.GetHMACSecretInput != nil {
		in := req.Extensions.HMACSecret
		protocol = in.PinUvAuthProtocol
		if protocol == 0 {
			protocol = ctaptypes.PinUvAuthProtocolOne
		}

		var err error
		secret, err = a.sharedSecret(protocol, in.KeyAgreement)
		if err != nil {
			return ctaphid.CTAP1_ERR_INVALID_PARAMETER, nil
		}
		if !hmac.Equal(crypto.Authenticate(protocol, secret, in.SaltEnc), in.SaltAuth) {
			return ctaphid.CTAP2_ERR_PIN_AUTH_INVALID, nil
		}
		salt, err = decrypt(protocol, secret, in.SaltEnc)
		if err != nil || (len(salt) != 32 && len(salt) != 64) {
			return ctaphid.CTAP1_ERR_INVALID_PARAMETER, nil
		}
	}

	responses := make([]*ctaptypes.AuthenticatorGetAssertionResponse, 0, len(matches))
	for _, cred := range matches {
		credFlags := flags

		var extensions []byte
		if salt != nil {
			output := hmacSHA256(cred.credRandom, salt[:32])
			if len(salt) == 64 {
				output = slices.Concat(output, hmacSHA256(cred.credRandom, salt[32:]))
			}
			outputEnc, err := encrypt(protocol, secret, output)
			if err != nil {
				return ctaphid.CTAP1_ERR_OTHER, nil
			}
			extensions, err = a.encMode.Marshal(map[string]any{
				string(webauthntypes.ExtensionIdentifierHMACSecret): outputEnc,
			})
			if err != nil {
				return ctaphid.CTAP1_ERR_OTHER, nil
			}
			credFlags |= ctaptypes.AuthDataFlagExtensionDataIncluded
		}

		authData, err := a.authData(cred, credFlags, false, extensions)
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}
		sig, err := a.sign(cred, authData, req.ClientDataHash)
		if err != nil {
			return ctaphid.CTAP1_ERR_OTHER, nil
		}

		user := cred.User
		responses = append(responses, &ctaptypes.AuthenticatorGetAssertionResponse{
			Credential: webauthntypes.PublicKeyCredentialDescriptor{
				Type: webauthntypes.PublicKeyCredentialTypePublicKey,
				ID:   cred.ID,
			},
			AuthDataRaw: authData,
			Signature:   sig,
			User:        &user,
		})
	}

	first := responses[0]
	if len(responses) > 1 {
		first.NumberOfCredentials = uint(len(responses))
	}
	a.pending = responses[1:]

	return a.encode(first)
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
