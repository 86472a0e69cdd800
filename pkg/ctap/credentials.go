package ctap

import (
	"crypto/sha256"
	"io"
	"iter"

	"github.com/go-ctap/walletbridge/pkg/crypto"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
)

// MakeCredentialParams carries everything authenticatorMakeCredential needs
// besides the channel and the PIN/UV auth token.
type MakeCredentialParams struct {
	ClientData       []byte
	RP               webauthntypes.PublicKeyCredentialRpEntity
	User             webauthntypes.PublicKeyCredentialUserEntity
	PubKeyCredParams []webauthntypes.PublicKeyCredentialParameters
	ExcludeList      []webauthntypes.PublicKeyCredentialDescriptor
	Extensions       *ctaptypes.CreateExtensionInputs
	Options          map[ctaptypes.Option]bool
}

// GetAssertionParams carries everything authenticatorGetAssertion needs
// besides the channel and the PIN/UV auth token.
type GetAssertionParams struct {
	RPID       string
	ClientData []byte
	AllowList  []webauthntypes.PublicKeyCredentialDescriptor
	Extensions *ctaptypes.GetExtensionInputs
	Options    map[ctaptypes.Option]bool
}

func (cl *Client) MakeCredential(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	pinUvAuthToken []byte,
	params MakeCredentialParams,
) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	clientDataHash := sha256.Sum256(params.ClientData)

	req := &ctaptypes.AuthenticatorMakeCredentialRequest{
		ClientDataHash:   clientDataHash[:],
		RP:               params.RP,
		User:             params.User,
		PubKeyCredParams: params.PubKeyCredParams,
		ExcludeList:      params.ExcludeList,
		Extensions:       params.Extensions,
		Options:          params.Options,
	}

	if pinUvAuthToken != nil {
		req.PinUvAuthParam = crypto.Authenticate(pinUvAuthProtocol, pinUvAuthToken, clientDataHash[:])
		req.PinUvAuthProtocol = pinUvAuthProtocol
	}

	resp, err := call[ctaptypes.AuthenticatorMakeCredentialResponse](
		cl, device, cid, ctaptypes.AuthenticatorMakeCredential, "MakeCredential", req,
	)
	if err != nil {
		return nil, err
	}

	resp.AuthData, err = ctaptypes.ParseMakeCredentialAuthData(resp.AuthDataRaw)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetAssertion yields the first assertion and then one per
// authenticatorGetNextAssertion call until numberOfCredentials is exhausted.
func (cl *Client) GetAssertion(
	device io.ReadWriter,
	cid ctaphid.ChannelID,
	pinUvAuthProtocol ctaptypes.PinUvAuthProtocol,
	pinUvAuthToken []byte,
	params GetAssertionParams,
) iter.Seq2[*ctaptypes.AuthenticatorGetAssertionResponse, error] {
	return func(yield func(*ctaptypes.AuthenticatorGetAssertionResponse, error) bool) {
		clientDataHash := sha256.Sum256(params.ClientData)

		req := &ctaptypes.AuthenticatorGetAssertionRequest{
			RPID:           params.RPID,
			ClientDataHash: clientDataHash[:],
			AllowList:      params.AllowList,
			Extensions:     params.Extensions,
			Options:        params.Options,
		}

		if pinUvAuthToken != nil {
			req.PinUvAuthParam = crypto.Authenticate(pinUvAuthProtocol, pinUvAuthToken, clientDataHash[:])
			req.PinUvAuthProtocol = pinUvAuthProtocol
		}

		first, err := call[ctaptypes.AuthenticatorGetAssertionResponse](
			cl, device, cid, ctaptypes.AuthenticatorGetAssertion, "GetAssertion", req,
		)
		if err == nil {
			first.AuthData, err = ctaptypes.ParseGetAssertionAuthData(first.AuthDataRaw)
		}
		if err != nil {
			yield(nil, err)
			return
		}

		if !yield(first, nil) {
			return
		}

		for i := uint(1); i < first.NumberOfCredentials; i++ {
			next, err := call[ctaptypes.AuthenticatorGetAssertionResponse](
				cl, device, cid, ctaptypes.AuthenticatorGetNextAssertion, "GetNextAssertion", nil,
			)
			if err == nil {
				next.AuthData, err = ctaptypes.ParseGetAssertionAuthData(next.AuthDataRaw)
			}
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(next, nil) {
				return
			}
		}
	}
}
