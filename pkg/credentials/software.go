package credentials

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/descope/virtualwebauthn"
	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
)

type softCredential struct {
	rpID          string
	authenticator virtualwebauthn.Authenticator
	credential    virtualwebauthn.Credential
}

// Software is an in-memory authenticator for development. Credentials live
// as long as the process.
type Software struct {
	logger *slog.Logger

	mu    sync.Mutex
	creds []*softCredential
}

func NewSoftware(opts ...options.Option) *Software {
	oo := options.NewOptions(opts...)

	return &Software{
		logger: oo.Logger.With("backend", BackendSoftware),
	}
}

func (s *Software) Name() string {
	return BackendSoftware
}

func (s *Software) Create(op CreateOperation) {
	go func() {
		result, err := s.create(op.OptionsJSON)
		if err != nil {
			s.logger.Error("create failed", "err", err)
		}
		settle(BackendSoftware, metrics.OperationCreate, op.Success, op.Failure, result, err)
	}()
}

func (s *Software) Get(op GetOperation) {
	go func() {
		result, err := s.get(op.OptionsJSON)
		if err != nil {
			s.logger.Error("get failed", "err", err)
		}
		settle(BackendSoftware, metrics.OperationGet, op.Success, op.Failure, result, err)
	}()
}

// Len returns the number of credentials created so far.
func (s *Software) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.creds)
}

func (s *Software) create(optionsJSON string) (string, error) {
	cc, err := decodeCreation(optionsJSON)
	if err != nil {
		return "", err
	}
	userID, err := decodeUserID(cc.Response.User.ID)
	if err != nil {
		return "", err
	}

	request, err := withoutHints(optionsJSON)
	if err != nil {
		return "", err
	}
	attestationOptions, err := virtualwebauthn.ParseAttestationOptions(request)
	if err != nil {
		return "", newErrorMessage(ErrInvalidOptions, err.Error())
	}

	rpID := cc.Response.RelyingParty.ID
	rp := virtualwebauthn.RelyingParty{
		Name:   cc.Response.RelyingParty.Name,
		ID:     rpID,
		Origin: "https://" + rpID,
	}

	authenticator := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: userID,
	})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	response := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *attestationOptions)
	authenticator.AddCredential(credential)

	s.mu.Lock()
	s.creds = append(s.creds, &softCredential{
		rpID:          rpID,
		authenticator: authenticator,
		credential:    credential,
	})
	s.mu.Unlock()

	s.logger.Debug("credential created", "rpId", rpID)
	return response, nil
}

func (s *Software) get(optionsJSON string) (string, error) {
	ca, err := decodeAssertion(optionsJSON)
	if err != nil {
		return "", err
	}

	request, err := withoutHints(optionsJSON)
	if err != nil {
		return "", err
	}
	assertionOptions, err := virtualwebauthn.ParseAssertionOptions(request)
	if err != nil {
		return "", newErrorMessage(ErrInvalidOptions, err.Error())
	}

	rpID := ca.Response.RelyingPartyID
	allow := descriptors(ca.Response.AllowedCredentials)

	s.mu.Lock()
	var match *softCredential
	for _, c := range slices.Backward(s.creds) {
		if c.rpID != rpID {
			continue
		}
		if len(allow) > 0 && !slices.ContainsFunc(allow, func(d webauthntypes.PublicKeyCredentialDescriptor) bool {
			return bytes.Equal(d.ID, c.credential.ID)
		}) {
			continue
		}
		match = c
		break
	}
	s.mu.Unlock()

	if match == nil {
		return "", ErrNoCredentials
	}

	rp := virtualwebauthn.RelyingParty{
		ID:     rpID,
		Origin: "https://" + rpID,
	}
	return virtualwebauthn.CreateAssertionResponse(rp, match.authenticator, match.credential, *assertionOptions), nil
}

// withoutHints returns the publicKey member with hints removed.
func withoutHints(optionsJSON string) (string, error) {
	raw, err := publicKeyJSON(optionsJSON)
	if err != nil {
		return "", err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", newErrorMessage(ErrInvalidOptions, err.Error())
	}
	delete(fields, "hints")

	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
