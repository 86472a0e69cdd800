package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/walletbridge/pkg/ctap"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/device"
	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/sugar"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	ghid "github.com/go-ctap/hid"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// PINPrompter asks the user for the PIN of the device at path. An empty PIN
// or an error aborts the ceremony with ErrAuthenticationRequired.
type PINPrompter interface {
	PromptPIN(ctx context.Context, path string) (string, error)
}

// PINPrompterFunc adapts a function to PINPrompter.
type PINPrompterFunc func(ctx context.Context, path string) (string, error)

func (f PINPrompterFunc) PromptPIN(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// CredentialChooser lets the user pick one of several discoverable
// credentials. It returns the chosen index, or ErrSelectionCancelled.
type CredentialChooser interface {
	ChooseCredential(ctx context.Context, rpID string, candidates []Candidate) (int, error)
}

// CredentialChooserFunc adapts a function to CredentialChooser.
type CredentialChooserFunc func(ctx context.Context, rpID string, candidates []Candidate) (int, error)

func (f CredentialChooserFunc) ChooseCredential(ctx context.Context, rpID string, candidates []Candidate) (int, error) {
	return f(ctx, rpID, candidates)
}

// DeviceSource finds and opens authenticators.
type DeviceSource interface {
	Paths() ([]string, error)
	Open(path string) (*device.Device, error)
}

type hidSource struct {
	opts []options.Option
}

// HIDSource enumerates FIDO HID interfaces and opens them with device.New.
func HIDSource(opts ...options.Option) DeviceSource {
	return &hidSource{opts: opts}
}

func (s *hidSource) Paths() ([]string, error) {
	devInfos, err := sugar.EnumerateFIDODevices(s.opts...)
	if err != nil {
		return nil, err
	}
	return lo.Map(devInfos, func(devInfo *ghid.DeviceInfo, _ int) string {
		return devInfo.Path
	}), nil
}

func (s *hidSource) Open(path string) (*device.Device, error) {
	return device.New(path, s.opts...)
}

type pendingOperation struct {
	operation   string
	optionsJSON string
	success     func(string)
	failure     func(error)
}

// SecurityKey runs ceremonies on a roaming CTAP2 authenticator. Requests are
// parked in a single slot until device discovery finds a key; a newer
// request replaces and fails the parked one. The PIN is asked for only when
// the key has one set; keys without a PIN run ceremonies on user presence.
type SecurityKey struct {
	source   DeviceSource
	prompter PINPrompter
	chooser  CredentialChooser
	logger   *slog.Logger
	encMode  cbor.EncMode
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	discovery sync.Once

	mu      sync.Mutex
	pending *pendingOperation
	closed  bool
}

// NewSecurityKey returns the CTAP2 backend. A nil source enumerates HID devices.
func NewSecurityKey(source DeviceSource, prompter PINPrompter, chooser CredentialChooser, opts ...options.Option) *SecurityKey {
	oo := options.NewOptions(opts...)
	if source == nil {
		source = HIDSource(opts...)
	}

	ctx, cancel := context.WithCancel(oo.Context)
	return &SecurityKey{
		source:   source,
		prompter: prompter,
		chooser:  chooser,
		logger:   oo.Logger.With("backend", BackendSecurityKey),
		encMode:  oo.EncMode,
		interval: oo.PollInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (sk *SecurityKey) Name() string {
	return BackendSecurityKey
}

func (sk *SecurityKey) Create(op CreateOperation) {
	sk.park(&pendingOperation{
		operation:   metrics.OperationCreate,
		optionsJSON: op.OptionsJSON,
		success:     op.Success,
		failure:     op.Failure,
	})
}

func (sk *SecurityKey) Get(op GetOperation) {
	sk.park(&pendingOperation{
		operation:   metrics.OperationGet,
		optionsJSON: op.OptionsJSON,
		success:     op.Success,
		failure:     op.Failure,
	})
}

// Close stops discovery and fails the parked operation, if any.
func (sk *SecurityKey) Close() error {
	sk.mu.Lock()
	sk.closed = true
	p := sk.pending
	sk.pending = nil
	sk.mu.Unlock()

	sk.cancel()
	if p != nil {
		settle(BackendSecurityKey, p.operation, p.success, p.failure, "", ErrClosed)
	}
	return nil
}

func (sk *SecurityKey) park(p *pendingOperation) {
	sk.mu.Lock()
	if sk.closed {
		sk.mu.Unlock()
		settle(BackendSecurityKey, p.operation, p.success, p.failure, "", ErrClosed)
		return
	}
	old := sk.pending
	sk.pending = p
	sk.mu.Unlock()

	if old != nil {
		sk.logger.Debug("pending operation superseded", "operation", old.operation)
		settle(BackendSecurityKey, old.operation, old.success, old.failure, "", ErrOperationSuperseded)
	}

	sk.discovery.Do(func() {
		go sk.discover()
	})
}

func (sk *SecurityKey) take() *pendingOperation {
	sk.mu.Lock()
	defer sk.mu.Unlock()

	p := sk.pending
	sk.pending = nil
	return p
}

func (sk *SecurityKey) hasPending() bool {
	sk.mu.Lock()
	defer sk.mu.Unlock()

	return sk.pending != nil
}

func (sk *SecurityKey) discover() {
	ticker := time.NewTicker(sk.interval)
	defer ticker.Stop()

	sk.logger.Debug("device discovery started", "interval", sk.interval)
	for {
		sk.poll()

		select {
		case <-sk.ctx.Done():
			sk.logger.Debug("device discovery stopped")
			return
		case <-ticker.C:
		}
	}
}

func (sk *SecurityKey) poll() {
	if !sk.hasPending() {
		return
	}

	paths, err := sk.source.Paths()
	if err != nil {
		sk.logger.Warn("device enumeration failed", "err", err)
		return
	}
	if len(paths) == 0 {
		return
	}

	p := sk.take()
	if p == nil {
		return
	}

	// With several keys attached the user picks one by touching it.
	dev, err := sugar.Select(sk.ctx, paths, sk.source.Open)
	if err != nil {
		err = fmt.Errorf("open device: %w", err)
		sk.logError(p.operation, err)
		settle(BackendSecurityKey, p.operation, p.success, p.failure, "", err)
		return
	}

	result, err := sk.perform(dev, p)
	if err != nil {
		sk.logError(p.operation, err)
	}
	settle(BackendSecurityKey, p.operation, p.success, p.failure, result, err)
}

func (sk *SecurityKey) logError(operation string, err error) {
	var ctapErr *ctaphid.CTAPError
	if errors.As(err, &ctapErr) {
		sk.logger.Error("ctap command failed",
			"operation", operation,
			"command", ctapErr.Command.String(),
			"status", ctapErr.StatusCode.String(),
			"code", byte(ctapErr.StatusCode),
		)
		return
	}
	sk.logger.Error("ceremony failed", "operation", operation, "err", err)
}

func (sk *SecurityKey) perform(dev *device.Device, p *pendingOperation) (string, error) {
	path := dev.Path
	logger := sk.logger.With("path", path, "operation", p.operation)

	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("cannot close device", "err", err)
		}
	}()

	var pin string
	if dev.ClientPINSet() {
		if sk.prompter == nil {
			return "", ErrAuthenticationRequired
		}
		var err error
		pin, err = sk.prompter.PromptPIN(sk.ctx, path)
		if err != nil {
			return "", newErrorMessage(ErrAuthenticationRequired, err.Error())
		}
		if pin == "" {
			return "", ErrAuthenticationRequired
		}
	}

	logger.Debug("running ceremony")
	switch p.operation {
	case metrics.OperationCreate:
		return sk.makeCredential(dev, pin, p.optionsJSON)
	default:
		return sk.getAssertion(dev, pin, p.optionsJSON)
	}
}

func (sk *SecurityKey) token(dev *device.Device, pin string, permission ctaptypes.Permission, rpID string) ([]byte, error) {
	if pin == "" {
		return nil, nil
	}
	return dev.GetPinUvAuthTokenUsingPIN(pin, permission, rpID)
}

func (sk *SecurityKey) makeCredential(dev *device.Device, pin string, optionsJSON string) (string, error) {
	cc, err := decodeCreation(optionsJSON)
	if err != nil {
		return "", err
	}
	pk := cc.Response

	userID, err := decodeUserID(pk.User.ID)
	if err != nil {
		return "", err
	}
	ext, err := decodeExtensions(pk.Extensions)
	if err != nil {
		return "", err
	}

	domain := pk.RelyingParty.ID
	clientData, err := ClientDataJSON(protocol.CreateCeremony, pk.Challenge, domain)
	if err != nil {
		return "", err
	}

	token, err := sk.token(dev, pin, ctaptypes.PermissionMakeCredential, domain)
	if err != nil {
		return "", err
	}

	rk := residentKeyRequired(pk.AuthenticatorSelection)
	params := ctap.MakeCredentialParams{
		ClientData: clientData,
		RP: webauthntypes.PublicKeyCredentialRpEntity{
			ID:   domain,
			Name: pk.RelyingParty.Name,
		},
		User: webauthntypes.PublicKeyCredentialUserEntity{
			ID:          userID,
			Name:        pk.User.Name,
			DisplayName: pk.User.DisplayName,
		},
		PubKeyCredParams: credentialParameters(pk.Parameters),
		ExcludeList:      descriptors(pk.CredentialExcludeList),
	}
	if rk {
		params.Options = map[ctaptypes.Option]bool{ctaptypes.OptionResidentKeys: true}
	}
	if ext.HMACCreateSecret || ext.PRF != nil {
		params.Extensions = &ctaptypes.CreateExtensionInputs{
			CreateHMACSecretInput: &ctaptypes.CreateHMACSecretInput{HMACSecret: true},
		}
	}

	resp, err := dev.MakeCredential(token, params)
	if err != nil {
		return "", err
	}

	attestationObject, err := resp.AttestationObject(sk.encMode, string(pk.Attestation))
	if err != nil {
		return "", err
	}

	attested := resp.AuthData.AttestedCredentialData
	response := AttestationResponse{
		ClientDataJSON:     clientData,
		AttestationObject:  attestationObject,
		AuthenticatorData:  resp.AuthDataRaw,
		Transports:         []string{string(webauthntypes.AuthenticatorTransportUSB)},
		PublicKeyAlgorithm: int64(attested.PublicKeyAlgorithm()),
	}
	if spki, ok := attested.SubjectPublicKeyInfo(); ok {
		response.PublicKey = spki
	}

	cred := newPublicKeyCredential(attested.CredentialID, response)

	hmacSecret := resp.AuthData.Extensions != nil &&
		resp.AuthData.Extensions.CreateHMACSecretOutput != nil &&
		resp.AuthData.Extensions.HMACSecret
	if ext.CredProps {
		cred.ClientExtensionResults.CredProps = &webauthntypes.CredentialPropertiesOutput{ResidentKey: rk}
	}
	if ext.HMACCreateSecret {
		cred.ClientExtensionResults.HMACCreateSecret = &hmacSecret
	}
	if ext.PRF != nil {
		cred.ClientExtensionResults.PRF = &webauthntypes.AuthenticationExtensionsPRFOutputs{Enabled: &hmacSecret}
	}

	b, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type assertionResult = mo.Either3[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error]

func (sk *SecurityKey) getAssertion(dev *device.Device, pin string, optionsJSON string) (string, error) {
	ca, err := decodeAssertion(optionsJSON)
	if err != nil {
		return "", err
	}
	pk := ca.Response

	ext, err := decodeExtensions(pk.Extensions)
	if err != nil {
		return "", err
	}

	domain := pk.RelyingPartyID
	clientData, err := ClientDataJSON(protocol.AssertCeremony, pk.Challenge, domain)
	if err != nil {
		return "", err
	}

	allow := descriptors(pk.AllowedCredentials)
	narrowed := false
	for {
		result := sk.assert(dev, pin, domain, clientData, allow, ext, narrowed)

		if err, ok := result.Arg3(); ok {
			return "", err
		}
		if assertion, ok := result.Arg1(); ok {
			return sk.encodeAssertion(assertion, clientData, allow, ext)
		}

		candidates := result.MustArg2()
		metrics.RecordCeremony(BackendSecurityKey, metrics.OperationGet, metrics.OutcomeSelect)

		chosen, err := sk.choose(domain, candidates)
		if err != nil {
			return "", err
		}
		allow = []webauthntypes.PublicKeyCredentialDescriptor{{
			Type: webauthntypes.PublicKeyCredentialTypePublicKey,
			ID:   chosen.CredentialID,
		}}
		narrowed = true
	}
}

// assert runs one authenticatorGetAssertion round. Several assertions come
// back as candidates unless the allow list was already narrowed by a choice.
func (sk *SecurityKey) assert(
	dev *device.Device,
	pin string,
	rpID string,
	clientData []byte,
	allow []webauthntypes.PublicKeyCredentialDescriptor,
	ext *webauthntypes.AuthenticationExtensionsClientInputs,
	narrowed bool,
) assertionResult {
	token, err := sk.token(dev, pin, ctaptypes.PermissionGetAssertion, rpID)
	if err != nil {
		return mo.NewEither3Arg3[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error](err)
	}

	params := ctap.GetAssertionParams{
		RPID:       rpID,
		ClientData: clientData,
		AllowList:  allow,
	}

	assertions := make([]*ctaptypes.AuthenticatorGetAssertionResponse, 0)
	for assertion, err := range dev.GetAssertion(token, params, prfSalts(ext, allow)) {
		if err != nil {
			return mo.NewEither3Arg3[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error](err)
		}
		assertions = append(assertions, assertion)
	}

	switch {
	case len(assertions) == 0:
		return mo.NewEither3Arg3[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error](ErrNoCredentials)
	case len(assertions) > 1 && !narrowed:
		candidates := lo.Map(assertions, func(a *ctaptypes.AuthenticatorGetAssertionResponse, _ int) Candidate {
			c := Candidate{CredentialID: a.Credential.ID}
			if a.User != nil {
				c.UserID = a.User.ID
				c.Name = a.User.Name
				c.DisplayName = a.User.DisplayName
			}
			return c
		})
		return mo.NewEither3Arg2[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error](candidates)
	default:
		return mo.NewEither3Arg1[*ctaptypes.AuthenticatorGetAssertionResponse, []Candidate, error](assertions[0])
	}
}

func (sk *SecurityKey) choose(rpID string, candidates []Candidate) (Candidate, error) {
	if sk.chooser == nil {
		sk.logger.Debug("no credential chooser, taking the first candidate", "candidates", len(candidates))
		return candidates[0], nil
	}

	idx, err := sk.chooser.ChooseCredential(sk.ctx, rpID, candidates)
	if err != nil {
		if errors.Is(err, ErrSelectionCancelled) {
			return Candidate{}, err
		}
		return Candidate{}, newErrorMessage(ErrSelectionCancelled, err.Error())
	}
	if idx < 0 || idx >= len(candidates) {
		return Candidate{}, ErrSelectionCancelled
	}
	return candidates[idx], nil
}

func (sk *SecurityKey) encodeAssertion(
	assertion *ctaptypes.AuthenticatorGetAssertionResponse,
	clientData []byte,
	allow []webauthntypes.PublicKeyCredentialDescriptor,
	ext *webauthntypes.AuthenticationExtensionsClientInputs,
) (string, error) {
	// The authenticator may omit the credential when the allow list has one entry.
	rawID := assertion.Credential.ID
	if len(rawID) == 0 && len(allow) == 1 {
		rawID = allow[0].ID
	}

	response := AssertionResponse{
		ClientDataJSON:    clientData,
		AuthenticatorData: assertion.AuthDataRaw,
		Signature:         assertion.Signature,
	}
	if assertion.User != nil {
		response.UserHandle = assertion.User.ID
	}

	cred := newPublicKeyCredential(rawID, response)
	if ext.PRF != nil && assertion.HMACSecret != nil {
		cred.ClientExtensionResults.PRF = webauthntypes.PRFResults(assertion.HMACSecret)
	}

	b, err := json.Marshal(cred)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// prfSalts maps prf.eval (or the evalByCredential entry of a single allowed
// credential) onto hmac-secret salts.
func prfSalts(ext *webauthntypes.AuthenticationExtensionsClientInputs, allow []webauthntypes.PublicKeyCredentialDescriptor) *device.HMACSecretInput {
	if ext.PRF == nil {
		return nil
	}

	var credentialID string
	if len(allow) == 1 {
		credentialID = base64.RawURLEncoding.EncodeToString(allow[0].ID)
	}
	values := ext.PRF.Select(credentialID)
	if values == nil || len(values.First) == 0 {
		return nil
	}

	in := &device.HMACSecretInput{Salt1: webauthntypes.PRFSalt(values.First)}
	if len(values.Second) > 0 {
		in.Salt2 = webauthntypes.PRFSalt(values.Second)
	}
	return in
}
