package webauthntypes

import (
	"crypto/sha256"

	"github.com/go-webauthn/webauthn/protocol"
)

type AuthenticationExtensionsPRFValues struct {
	First  protocol.URLEncodedBase64 `json:"first"`
	Second protocol.URLEncodedBase64 `json:"second,omitempty"`
}

// AuthenticationExtensionsPRFInputs is the prf member of the extension inputs.
// EvalByCredential is keyed by base64url credential id.
type AuthenticationExtensionsPRFInputs struct {
	Eval             *AuthenticationExtensionsPRFValues           `json:"eval,omitempty"`
	EvalByCredential map[string]AuthenticationExtensionsPRFValues `json:"evalByCredential,omitempty"`
}

type AuthenticationExtensionsPRFOutputs struct {
	Enabled *bool                              `json:"enabled,omitempty"`
	Results *AuthenticationExtensionsPRFValues `json:"results,omitempty"`
}

// PRFSalt maps a PRF evaluation input to the hmac-secret salt.
// https://www.w3.org/TR/webauthn-3/#prf-extension
func PRFSalt(input []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte("WebAuthn PRF"))
	hasher.Write([]byte{0x00})
	hasher.Write(input)
	return hasher.Sum(nil)
}

// Select returns the values to evaluate for a request. An evalByCredential
// entry for credentialID wins over eval.
func (in *AuthenticationExtensionsPRFInputs) Select(credentialID string) *AuthenticationExtensionsPRFValues {
	if v, ok := in.EvalByCredential[credentialID]; ok && credentialID != "" {
		return &v
	}
	return in.Eval
}

// PRFResults exposes hmac-secret outputs as PRF results.
func PRFResults(out *HMACGetSecretOutput) *AuthenticationExtensionsPRFOutputs {
	return &AuthenticationExtensionsPRFOutputs{
		Results: &AuthenticationExtensionsPRFValues{
			First:  out.Output1,
			Second: out.Output2,
		},
	}
}
