package webauthntypes

// AuthenticationExtensionsClientInputs are the client extension inputs of
// create() and get() that are mapped onto authenticator extensions. Other
// members of the page's extensions object are ignored.
type AuthenticationExtensionsClientInputs struct {
	CredProps        bool                               `json:"credProps,omitempty"`
	HMACCreateSecret bool                               `json:"hmacCreateSecret,omitempty"`
	PRF              *AuthenticationExtensionsPRFInputs `json:"prf,omitempty"`
}

// AuthenticationExtensionsClientOutputs is clientExtensionResults.
// Extensions that were not requested are omitted.
type AuthenticationExtensionsClientOutputs struct {
	CredProps        *CredentialPropertiesOutput         `json:"credProps,omitempty"`
	HMACCreateSecret *bool                               `json:"hmacCreateSecret,omitempty"`
	PRF              *AuthenticationExtensionsPRFOutputs `json:"prf,omitempty"`
}
