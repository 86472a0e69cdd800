package ctaptypes

import (
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	"github.com/ldclabs/cose/key/ecdsa"
	"github.com/ldclabs/cose/key/ed25519"
)

// AttestationObject is the CBOR structure relying parties receive as
// response.attestationObject.
// https://www.w3.org/TR/webauthn-3/#sctn-attestation
type AttestationObject struct {
	Format               webauthntypes.AttestationStatementFormatIdentifier `cbor:"fmt"`
	AuthData             []byte                                             `cbor:"authData"`
	AttestationStatement map[string]any                                     `cbor:"attStmt"`
}

// AttestationObject assembles the attestation object from a makeCredential
// response. With conveyance "none" the statement is replaced by the empty
// "none" statement, as browsers do.
func (r *AuthenticatorMakeCredentialResponse) AttestationObject(
	encMode cbor.EncMode,
	conveyance string,
) ([]byte, error) {
	obj := AttestationObject{
		Format:               r.Format,
		AuthData:             r.AuthDataRaw,
		AttestationStatement: r.AttestationStatement,
	}

	if conveyance == "none" || conveyance == "" {
		obj.Format = webauthntypes.AttestationStatementFormatIdentifierNone
		obj.AttestationStatement = map[string]any{}
	}
	if obj.AttestationStatement == nil {
		obj.AttestationStatement = map[string]any{}
	}

	return encMode.Marshal(obj)
}

// PublicKeyAlgorithm returns the COSE algorithm of the attested credential key.
func (d *AttestedCredentialData) PublicKeyAlgorithm() key.Alg {
	if d.CredentialPublicKey == nil {
		return 0
	}
	return d.CredentialPublicKey.Alg()
}

// SubjectPublicKeyInfo converts the COSE credential key to DER SPKI.
// ok is false for key types that have no SPKI form here.
func (d *AttestedCredentialData) SubjectPublicKeyInfo() (spki []byte, ok bool) {
	if d.CredentialPublicKey == nil {
		return nil, false
	}

	var pub any
	switch d.CredentialPublicKey.Kty() {
	case iana.KeyTypeEC2:
		p, err := ecdsa.KeyToPublic(d.CredentialPublicKey)
		if err != nil {
			return nil, false
		}
		pub = p
	case iana.KeyTypeOKP:
		p, err := ed25519.KeyToPublic(d.CredentialPublicKey)
		if err != nil {
			return nil, false
		}
		pub = p
	default:
		return nil, false
	}

	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, false
	}
	return spki, true
}
