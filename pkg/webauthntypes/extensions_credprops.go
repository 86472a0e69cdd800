package webauthntypes

// CredentialPropertiesOutput reports whether the created credential is client-side discoverable.
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-credential-properties-extension
type CredentialPropertiesOutput struct {
	ResidentKey bool `json:"rk"`
}
