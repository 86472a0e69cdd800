package device

// HMACSecretInput holds one or two 32-byte salts for the hmac-secret extension.
// Outputs come back as webauthntypes.HMACGetSecretOutput.
type HMACSecretInput struct {
	Salt1 []byte
	Salt2 []byte
}
