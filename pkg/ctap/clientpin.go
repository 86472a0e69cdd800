package ctap

import (
	"crypto/sha256"
	"io"

	"github.com/go-ctap/walletbridge/pkg/crypto"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/ldclabs/cose/key"
)

func (cl *Client) clientPIN(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	req *ctaptypes.AuthenticatorClientPINRequest,
) (*ctaptypes.AuthenticatorClientPINResponse, error) {
	return call[ctaptypes.AuthenticatorClientPINResponse](
		cl, device, cid, ctaptypes.AuthenticatorClientPIN, req.SubCommand.String(), req,
	)
}

// GetPINRetries returns the remaining PIN retries and whether a power cycle
// is needed before the next attempt.
func (cl *Client) GetPINRetries(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
) (uint, bool, error) {
	resp, err := cl.clientPIN(device, cid, &ctaptypes.AuthenticatorClientPINRequest{
		// Not required by CTAP, but SoloKeys Solo 2 rejects the request without it.
		PinUvAuthProtocol: pinUvAuthProtocol,
		SubCommand:        ctaptypes.ClientPINSubCommandGetPINRetries,
	})
	if err != nil {
		return 0, false, err
	}

	return resp.PinRetries, resp.PowerCycleState, nil
}

func (cl *Client) GetKeyAgreement(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
) (key.Key, error) {
	resp, err := cl.clientPIN(device, cid, &ctaptypes.AuthenticatorClientPINRequest{
		PinUvAuthProtocol: pinUvAuthProtocol,
		SubCommand:        ctaptypes.ClientPINSubCommandGetKeyAgreement,
	})
	if err != nil {
		return nil, err
	}

	return resp.KeyAgreement, nil
}

// GetPinToken obtains a token without permissions. Only for authenticators
// lacking the pinUvAuthToken option.
func (cl *Client) GetPinToken(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
) ([]byte, error) {
	return cl.pinToken(device, cid, pinUvAuthProtocol, keyAgreement, pin, &ctaptypes.AuthenticatorClientPINRequest{
		SubCommand: ctaptypes.ClientPINSubCommandGetPinToken,
	})
}

// GetPinUvAuthTokenUsingPinWithPermissions obtains a token scoped to permissions and rpID.
func (cl *Client) GetPinUvAuthTokenUsingPinWithPermissions(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
	permissions ctaptypes.Permission,
	rpID string,
) ([]byte, error) {
	return cl.pinToken(device, cid, pinUvAuthProtocol, keyAgreement, pin, &ctaptypes.AuthenticatorClientPINRequest{
		SubCommand:  ctaptypes.ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions,
		Permissions: permissions,
		RPID:        rpID,
	})
}

// pinToken fills the key agreement and the encrypted PIN hash into req and
// decrypts the returned token.
func (cl *Client) pinToken(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	keyAgreement key.Key,
	pin string,
	req *ctaptypes.AuthenticatorClientPINRequest,
) ([]byte, error) {
	protocol, err := crypto.NewPinUvAuthProtocol(pinUvAuthProtocol)
	if err != nil {
		return nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	// LEFT(SHA-256(pin), 16)
	pinHash := sha256.Sum256([]byte(pin))
	pinHashEnc, err := protocol.Encrypt(sharedSecret, pinHash[:16])
	if err != nil {
		return nil, err
	}

	req.PinUvAuthProtocol = protocol.Number
	req.KeyAgreement = platformCoseKey
	req.PinHashEnc = pinHashEnc

	resp, err := cl.clientPIN(device, cid, req)
	if err != nil {
		return nil, err
	}

	return protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
}
