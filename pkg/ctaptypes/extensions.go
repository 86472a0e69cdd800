package ctaptypes

import "github.com/ldclabs/cose/key"

type CreateCredProtectInput struct {
	CredProtect int `cbor:"credProtect"`
}
type CreateHMACSecretInput struct {
	HMACSecret bool `cbor:"hmac-secret"`
}

type CreateExtensionInputs struct {
	*CreateCredProtectInput
	*CreateHMACSecretInput
}

type CreateCredProtectOutput struct {
	CredProtect int `cbor:"credProtect"`
}
type CreateHMACSecretOutput struct {
	HMACSecret bool `cbor:"hmac-secret"`
}

type CreateExtensionOutputs struct {
	*CreateCredProtectOutput
	*CreateHMACSecretOutput
}

type HMACSecret struct {
	KeyAgreement      key.Key           `cbor:"1,keyasint"`
	SaltEnc           []byte            `cbor:"2,keyasint"`
	SaltAuth          []byte            `cbor:"3,keyasint"`
	PinUvAuthProtocol PinUvAuthProtocol `cbor:"4,keyasint,omitempty"`
}
type GetHMACSecretInput struct {
	HMACSecret HMACSecret `cbor:"hmac-secret"`
}

type GetExtensionInputs struct {
	*GetHMACSecretInput
}

type GetHMACSecretOutput struct {
	HMACSecret []byte `cbor:"hmac-secret"`
}

type GetExtensionOutputs struct {
	*GetHMACSecretOutput
}
