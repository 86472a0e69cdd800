package pageclient

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/go-webauthn/webauthn/protocol"
)

// Encode is the page's __encode: unpadded base64url.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode is the page's __decode. Trailing padding is accepted.
func Decode(s string) ([]byte, error) {
	var b protocol.URLEncodedBase64
	if err := b.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeCreationOptions serializes options for create the way the page
// does: every buffer as a base64url string.
func EncodeCreationOptions(cc protocol.CredentialCreation) (string, error) {
	if id, ok := cc.Response.User.ID.([]byte); ok {
		cc.Response.User.ID = protocol.URLEncodedBase64(id)
	}

	b, err := json.Marshal(cc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeAssertionOptions serializes options for get.
func EncodeAssertionOptions(ca protocol.CredentialAssertion) (string, error) {
	b, err := json.Marshal(ca)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CredentialResponse holds the members of both response kinds; the ones
// the ceremony did not produce stay nil.
type CredentialResponse struct {
	ClientDataJSON     protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject  protocol.URLEncodedBase64 `json:"attestationObject,omitempty"`
	AuthenticatorData  protocol.URLEncodedBase64 `json:"authenticatorData,omitempty"`
	Signature          protocol.URLEncodedBase64 `json:"signature,omitempty"`
	UserHandle         protocol.URLEncodedBase64 `json:"userHandle,omitempty"`
	PublicKey          protocol.URLEncodedBase64 `json:"publicKey,omitempty"`
	PublicKeyAlgorithm int64                     `json:"publicKeyAlgorithm,omitempty"`
	Transports         []string                  `json:"transports,omitempty"`
}

// Credential is a decoded create or get result.
type Credential struct {
	ID                      string                     `json:"id"`
	RawID                   protocol.URLEncodedBase64  `json:"rawId"`
	Type                    string                     `json:"type"`
	AuthenticatorAttachment string                     `json:"authenticatorAttachment,omitempty"`
	Response                CredentialResponse         `json:"response"`
	ClientExtensionResults  map[string]json.RawMessage `json:"clientExtensionResults,omitempty"`
}

// DecodeCredential is the page's decodeCredential.
func DecodeCredential(payload []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Assertion reports whether c came from get.
func (c *Credential) Assertion() bool {
	return len(c.Response.Signature) > 0
}

// ClientData parses clientDataJSON.
func (c *Credential) ClientData() (*protocol.CollectedClientData, error) {
	var cd protocol.CollectedClientData
	if err := json.Unmarshal(c.Response.ClientDataJSON, &cd); err != nil {
		return nil, err
	}
	return &cd, nil
}
