package ctaptypes

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const (
	rpIDHashLen     = 32
	authDataMinLen  = rpIDHashLen + 1 + 4
	aaguidLen       = 16
	credIDLengthLen = 2
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

type authData struct {
	RPIDHash               []byte
	Flags                  AuthDataFlag
	SignCount              uint32
	AttestedCredentialData *AttestedCredentialData
	Extensions             []byte
}

func parseAuthData(data []byte) (*authData, error) {
	if len(data) < authDataMinLen {
		return nil, newErrorMessage(ErrInvalidAuthData, "too short")
	}

	d := &authData{
		RPIDHash:  data[:rpIDHashLen],
		Flags:     AuthDataFlag(data[rpIDHashLen]),
		SignCount: binary.BigEndian.Uint32(data[rpIDHashLen+1 : authDataMinLen]),
	}
	offset := authDataMinLen

	if d.Flags.AttestedCredentialDataIncluded() {
		if len(data) < offset+aaguidLen+credIDLengthLen {
			return nil, newErrorMessage(ErrInvalidAuthData, "truncated attested credential data")
		}

		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+aaguidLen]),
		}
		offset += aaguidLen

		length := int(binary.BigEndian.Uint16(data[offset : offset+credIDLengthLen]))
		offset += credIDLengthLen
		if len(data) < offset+length {
			return nil, newErrorMessage(ErrInvalidAuthData, "truncated credential id")
		}
		credData.CredentialID = data[offset : offset+length]
		offset += length

		// The credential public key is a COSE_Key of unknown length.
		dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
		if err := dec.Decode(&credData.CredentialPublicKey); err != nil {
			return nil, err
		}
		credData.CredentialPublicKeyRaw = data[offset : offset+dec.NumBytesRead()]
		offset += dec.NumBytesRead()

		d.AttestedCredentialData = credData
	}

	if d.Flags.ExtensionDataIncluded() {
		d.Extensions = data[offset:]
	}

	return d, nil
}

func (vv Versions) Supports(ver Version) bool {
	return slices.Contains(vv, ver)
}

func (vv Versions) IsPreviewOnly() bool {
	return vv.Supports(FIDO_2_0) && vv.Supports(FIDO_2_1_PRE) &&
		!vv.Supports(FIDO_2_1) && !vv.Supports(FIDO_2_2)
}

// PreferredPinUvAuthProtocol returns the first protocol the authenticator lists,
// falling back to protocol one for CTAP 2.0 devices that omit the field.
func (r *AuthenticatorGetInfoResponse) PreferredPinUvAuthProtocol() PinUvAuthProtocol {
	if len(r.PinUvAuthProtocols) == 0 {
		return PinUvAuthProtocolOne
	}
	return r.PinUvAuthProtocols[0]
}
