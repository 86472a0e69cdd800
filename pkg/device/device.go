package device

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/go-ctap/walletbridge/pkg/crypto"
	"github.com/go-ctap/walletbridge/pkg/ctap"
	"github.com/go-ctap/walletbridge/pkg/ctaphid"
	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
)

// Device is an opened FIDO2 authenticator with an allocated CTAPHID channel.
type Device struct {
	Path       string
	device     io.ReadWriteCloser
	cid        ctaphid.ChannelID
	info       *ctaptypes.AuthenticatorGetInfoResponse
	ctapClient *ctap.Client
	logger     *slog.Logger
}

// New opens the HID device at path and initializes it with Open.
func New(path string, opts ...options.Option) (*Device, error) {
	dev, err := OpenPath(path)
	if err != nil {
		return nil, err
	}

	d, err := Open(dev, path, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	return d, nil
}

// Open allocates a CTAPHID channel on an already opened report stream and
// fetches authenticatorGetInfo. The caller keeps ownership of dev on error.
func Open(dev io.ReadWriteCloser, path string, opts ...options.Option) (*Device, error) {
	oo := options.NewOptions(opts...)

	d := &Device{
		Path:       path,
		device:     dev,
		ctapClient: ctap.NewClient(opts...),
		logger:     oo.Logger.With("path", path),
	}

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	msg, err := ctaphid.Init(dev, ctaphid.BROADCAST_CID, nonce)
	if err != nil {
		return nil, err
	}
	d.cid = msg.CID

	info, err := d.ctapClient.GetInfo(d.device, d.cid)
	if err != nil {
		return nil, err
	}
	d.info = info
	d.logger.Debug("device opened", "versions", info.Versions, "aaguid", info.AAGUID)

	return d, nil
}

// Close closes the underlying HID device.
func (d *Device) Close() error {
	return d.device.Close()
}

// Ping sends a ping message to the device and verifies the response matches the sent data.
func (d *Device) Ping(ping []byte) error {
	pong, err := ctaphid.Ping(d.device, d.cid, ping)
	if err != nil {
		return err
	}

	if !bytes.Equal(ping, pong.Bytes) {
		return ErrPingPongMismatch
	}

	return nil
}

// Wink sends a blink command to the device to visually signal its presence to the user.
// CTAPHID_WINK is optional and could be unsupported by some devices.
func (d *Device) Wink() error {
	return ctaphid.Wink(d.device, d.cid)
}

// GetInfo returns the struct containing metadata and capabilities of the device.
func (d *Device) GetInfo() *ctaptypes.AuthenticatorGetInfoResponse {
	return d.info
}

func (d *Device) protocol() ctaptypes.PinUvAuthProtocol {
	return d.info.PreferredPinUvAuthProtocol()
}

// ClientPINSet reports whether the device has a PIN configured.
func (d *Device) ClientPINSet() bool {
	return d.info.Options[ctaptypes.OptionClientPIN]
}

// GetPINRetries retrieves the number of PIN retries remaining for the device, and if it requires a power cycle
// (after reaching the limit, you can reset remaining tries by re-connecting the token).
func (d *Device) GetPINRetries() (uint, bool, error) {
	clientPin, ok := d.info.Options[ctaptypes.OptionClientPIN]
	if !ok {
		return 0, false, newErrorMessage(ErrNotSupported, "device doesn't support clientPin option")
	}
	if !clientPin {
		return 0, false, newErrorMessage(ErrPinNotSet, "please set PIN first")
	}

	return d.ctapClient.GetPINRetries(d.device, d.cid, d.protocol())
}

// GetPinUvAuthTokenUsingPIN obtains a pinUvAuthToken for permission and rpID.
// Devices without the pinUvAuthToken option get a legacy getPinToken request instead.
func (d *Device) GetPinUvAuthTokenUsingPIN(
	pin string,
	permission ctaptypes.Permission,
	rpID string,
) ([]byte, error) {
	noMcGaPermission := d.info.Options[ctaptypes.OptionNoMcGaPermissionsWithClientPin]
	if noMcGaPermission && permission&(ctaptypes.PermissionMakeCredential|ctaptypes.PermissionGetAssertion) != 0 {
		return nil, newErrorMessage(
			ErrNotSupported,
			"device doesn't grant mc/ga permissions to PIN tokens (noMcGaPermissionsWithClientPin)",
		)
	}

	clientPIN, ok := d.info.Options[ctaptypes.OptionClientPIN]
	if !ok {
		return nil, newErrorMessage(ErrNotSupported, "device doesn't support clientPin option")
	}
	if !clientPIN {
		return nil, newErrorMessage(ErrPinNotSet, "please set PIN first")
	}

	keyAgreement, err := d.ctapClient.GetKeyAgreement(d.device, d.cid, d.protocol())
	if err != nil {
		return nil, err
	}

	if !d.info.Options[ctaptypes.OptionPinUvAuthToken] {
		d.logger.Debug("pinUvAuthToken unsupported, falling back to getPinToken")
		return d.ctapClient.GetPinToken(d.device, d.cid, d.protocol(), keyAgreement, pin)
	}

	return d.ctapClient.GetPinUvAuthTokenUsingPinWithPermissions(
		d.device,
		d.cid,
		d.protocol(),
		keyAgreement,
		pin,
		permission,
		rpID,
	)
}

// MakeCredential creates a new credential. A pinUvAuthToken is required unless
// the device advertises makeCredUvNotRqd.
func (d *Device) MakeCredential(
	pinUvAuthToken []byte,
	params ctap.MakeCredentialParams,
) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	notRequired := d.info.Options[ctaptypes.OptionMakeCredentialUvNotRequired]
	if !notRequired && pinUvAuthToken == nil && d.ClientPINSet() {
		return nil, ErrPinUvAuthTokenRequired
	}

	return d.ctapClient.MakeCredential(d.device, d.cid, d.protocol(), pinUvAuthToken, params)
}

// GetAssertion iterates over the assertions the device returns for params.
// When hmacSecret is set, the hmac-secret extension is negotiated and every
// yielded assertion carries the decrypted outputs in HMACSecret.
func (d *Device) GetAssertion(
	pinUvAuthToken []byte,
	params ctap.GetAssertionParams,
	hmacSecret *HMACSecretInput,
) iter.Seq2[*ctaptypes.AuthenticatorGetAssertionResponse, error] {
	return func(yield func(*ctaptypes.AuthenticatorGetAssertionResponse, error) bool) {
		var (
			protocol     *crypto.PinUvAuthProtocol
			sharedSecret []byte
		)

		if hmacSecret != nil {
			input, p, secret, err := d.hmacSecretInput(hmacSecret)
			if err != nil {
				yield(nil, err)
				return
			}
			protocol, sharedSecret = p, secret

			if params.Extensions == nil {
				params.Extensions = &ctaptypes.GetExtensionInputs{}
			}
			params.Extensions.GetHMACSecretInput = input
		}

		for assertion, err := range d.ctapClient.GetAssertion(d.device, d.cid, d.protocol(), pinUvAuthToken, params) {
			if err != nil {
				yield(nil, err)
				return
			}

			if protocol != nil && assertion.AuthData.Extensions != nil &&
				assertion.AuthData.Extensions.GetHMACSecretOutput != nil {
				output, err := decryptHMACSecret(protocol, sharedSecret, assertion.AuthData.Extensions.HMACSecret)
				if err != nil {
					yield(nil, err)
					return
				}
				assertion.HMACSecret = output
			}

			if !yield(assertion, nil) {
				return
			}
		}
	}
}

func (d *Device) hmacSecretInput(in *HMACSecretInput) (*ctaptypes.GetHMACSecretInput, *crypto.PinUvAuthProtocol, []byte, error) {
	salt := slices.Concat(in.Salt1, in.Salt2)
	if len(in.Salt1) != 32 || (len(in.Salt2) != 0 && len(in.Salt2) != 32) {
		return nil, nil, nil, newErrorMessage(ErrInvalidSaltSize, "salts must be 32 bytes")
	}

	protocol, err := crypto.NewPinUvAuthProtocol(d.protocol())
	if err != nil {
		return nil, nil, nil, err
	}

	keyAgreement, err := d.ctapClient.GetKeyAgreement(d.device, d.cid, d.protocol())
	if err != nil {
		return nil, nil, nil, err
	}

	platformCoseKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, nil, nil, err
	}

	saltEnc, err := protocol.Encrypt(sharedSecret, salt)
	if err != nil {
		return nil, nil, nil, err
	}

	return &ctaptypes.GetHMACSecretInput{
		HMACSecret: ctaptypes.HMACSecret{
			KeyAgreement:      platformCoseKey,
			SaltEnc:           saltEnc,
			SaltAuth:          crypto.Authenticate(d.protocol(), sharedSecret, saltEnc),
			PinUvAuthProtocol: d.protocol(),
		},
	}, protocol, sharedSecret, nil
}

func decryptHMACSecret(
	protocol *crypto.PinUvAuthProtocol,
	sharedSecret []byte,
	encrypted []byte,
) (*webauthntypes.HMACGetSecretOutput, error) {
	output, err := protocol.Decrypt(sharedSecret, encrypted)
	if err != nil {
		return nil, err
	}

	switch len(output) {
	case 32:
		return &webauthntypes.HMACGetSecretOutput{Output1: output}, nil
	case 64:
		return &webauthntypes.HMACGetSecretOutput{Output1: output[:32], Output2: output[32:]}, nil
	default:
		return nil, newErrorMessage(ErrInvalidSaltSize, "hmac-secret output must be 32 or 64 bytes")
	}
}

// Selection is a higher-level version of ctap.Selection, which cancels the
// command if the context is canceled. A request the device reports as
// cancelled returns the context's error.
func (d *Device) Selection(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		errc <- d.ctapClient.Selection(d.device, d.cid)
	}()

	select {
	case <-ctx.Done():
		if err := ctaphid.Cancel(d.device, d.cid); err != nil {
			return errors.Join(err, <-errc)
		}
		err := <-errc
		if ctaphid.IsKeepaliveCancel(err) {
			return ctx.Err()
		}
		return err
	case err := <-errc:
		return err
	}
}
