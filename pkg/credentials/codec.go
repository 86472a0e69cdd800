package credentials

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/samber/lo"
)

// AttestationResponse is AuthenticatorAttestationResponse in its JSON form.
type AttestationResponse struct {
	ClientDataJSON     protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject  protocol.URLEncodedBase64 `json:"attestationObject"`
	AuthenticatorData  protocol.URLEncodedBase64 `json:"authenticatorData,omitempty"`
	Transports         []string                  `json:"transports,omitempty"`
	PublicKey          protocol.URLEncodedBase64 `json:"publicKey,omitempty"`
	PublicKeyAlgorithm int64                     `json:"publicKeyAlgorithm,omitempty"`
}

// AssertionResponse is AuthenticatorAssertionResponse in its JSON form.
type AssertionResponse struct {
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
	UserHandle        protocol.URLEncodedBase64 `json:"userHandle,omitempty"`
}

// PublicKeyCredential is the JSON the page decodes back into a PublicKeyCredential.
type PublicKeyCredential[R AttestationResponse | AssertionResponse] struct {
	ID                      string                                              `json:"id"`
	RawID                   protocol.URLEncodedBase64                           `json:"rawId"`
	Type                    string                                              `json:"type"`
	AuthenticatorAttachment string                                              `json:"authenticatorAttachment,omitempty"`
	Response                R                                                   `json:"response"`
	ClientExtensionResults  webauthntypes.AuthenticationExtensionsClientOutputs `json:"clientExtensionResults"`
}

func newPublicKeyCredential[R AttestationResponse | AssertionResponse](rawID []byte, response R) PublicKeyCredential[R] {
	return PublicKeyCredential[R]{
		ID:                      base64.RawURLEncoding.EncodeToString(rawID),
		RawID:                   rawID,
		Type:                    string(webauthntypes.PublicKeyCredentialTypePublicKey),
		AuthenticatorAttachment: string(protocol.CrossPlatform),
		Response:                response,
	}
}

func decodeCreation(optionsJSON string) (*protocol.CredentialCreation, error) {
	var cc protocol.CredentialCreation
	if err := json.Unmarshal([]byte(optionsJSON), &cc); err != nil {
		return nil, newErrorMessage(ErrInvalidOptions, err.Error())
	}
	if len(cc.Response.Challenge) == 0 {
		return nil, newErrorMessage(ErrInvalidOptions, "publicKey.challenge is missing")
	}
	return &cc, nil
}

func decodeAssertion(optionsJSON string) (*protocol.CredentialAssertion, error) {
	var ca protocol.CredentialAssertion
	if err := json.Unmarshal([]byte(optionsJSON), &ca); err != nil {
		return nil, newErrorMessage(ErrInvalidOptions, err.Error())
	}
	if len(ca.Response.Challenge) == 0 {
		return nil, newErrorMessage(ErrInvalidOptions, "publicKey.challenge is missing")
	}
	return &ca, nil
}

func decodeExtensions(ext protocol.AuthenticationExtensions) (*webauthntypes.AuthenticationExtensionsClientInputs, error) {
	var in webauthntypes.AuthenticationExtensionsClientInputs
	if len(ext) == 0 {
		return &in, nil
	}

	raw, err := json.Marshal(ext)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, newErrorMessage(ErrInvalidOptions, err.Error())
	}
	return &in, nil
}

// publicKeyJSON extracts the raw publicKey member of the options object.
func publicKeyJSON(optionsJSON string) (json.RawMessage, error) {
	var env struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	if err := json.Unmarshal([]byte(optionsJSON), &env); err != nil {
		return nil, newErrorMessage(ErrInvalidOptions, err.Error())
	}
	if len(env.PublicKey) == 0 || string(env.PublicKey) == "null" {
		return nil, newErrorMessage(ErrInvalidOptions, "publicKey is missing")
	}
	return env.PublicKey, nil
}

// ClientDataJSON builds collected client data for the ceremony, with the
// challenge base64url-encoded without padding and origin https://domain.
func ClientDataJSON(ceremony protocol.CeremonyType, challenge []byte, domain string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    "https://" + domain,
	})
}

// decodeUserID accepts the base64url string the page encoded user.id into.
func decodeUserID(id any) ([]byte, error) {
	switch v := id.(type) {
	case nil:
		return nil, newErrorMessage(ErrInvalidOptions, "publicKey.user.id is missing")
	case string:
		b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(v, "="))
		if err != nil {
			return nil, newErrorMessage(ErrInvalidOptions, "publicKey.user.id is not base64url")
		}
		return b, nil
	case []byte:
		return v, nil
	default:
		return nil, newErrorMessage(ErrInvalidOptions, "publicKey.user.id has an unexpected type")
	}
}

func descriptors(in []protocol.CredentialDescriptor) []webauthntypes.PublicKeyCredentialDescriptor {
	return lo.Map(in, func(d protocol.CredentialDescriptor, _ int) webauthntypes.PublicKeyCredentialDescriptor {
		return webauthntypes.PublicKeyCredentialDescriptor{
			Type: webauthntypes.PublicKeyCredentialTypePublicKey,
			ID:   d.CredentialID,
			Transports: lo.Map(d.Transport, func(t protocol.AuthenticatorTransport, _ int) webauthntypes.AuthenticatorTransport {
				return webauthntypes.AuthenticatorTransport(t)
			}),
		}
	})
}

func credentialParameters(in []protocol.CredentialParameter) []webauthntypes.PublicKeyCredentialParameters {
	if len(in) == 0 {
		return []webauthntypes.PublicKeyCredentialParameters{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: iana.AlgorithmES256},
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: iana.AlgorithmRS256},
		}
	}

	return lo.Map(in, func(p protocol.CredentialParameter, _ int) webauthntypes.PublicKeyCredentialParameters {
		return webauthntypes.PublicKeyCredentialParameters{
			Type:      webauthntypes.PublicKeyCredentialType(p.Type),
			Algorithm: key.Alg(p.Algorithm),
		}
	})
}

func residentKeyRequired(sel protocol.AuthenticatorSelection) bool {
	if sel.ResidentKey == protocol.ResidentKeyRequirementRequired {
		return true
	}
	return sel.RequireResidentKey != nil && *sel.RequireResidentKey
}
