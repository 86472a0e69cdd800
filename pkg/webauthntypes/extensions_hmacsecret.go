package webauthntypes

// HMACGetSecretOutput holds the decrypted hmac-secret outputs of one assertion.
type HMACGetSecretOutput struct {
	Output1 []byte `cbor:"output1"`
	Output2 []byte `cbor:"output2,omitempty"`
}
