package credentials

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-ctap/walletbridge/pkg/metrics"
	"github.com/go-ctap/walletbridge/pkg/options"
	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
)

// PlatformCredential is what the host credential manager returned. Type is
// "public-key" for passkeys; ResponseJSON is the registration or
// authentication response JSON to hand back to the page.
type PlatformCredential struct {
	Type         string
	ResponseJSON string
}

// CredentialManager is the host's own passkey provider. Both calls receive
// the publicKey member of the page options and may block on user interaction.
type CredentialManager interface {
	CreateCredential(ctx context.Context, requestJSON string) (PlatformCredential, error)
	GetCredential(ctx context.Context, requestJSON string) (PlatformCredential, error)
}

// Platform forwards ceremonies to a CredentialManager.
type Platform struct {
	manager CredentialManager
	logger  *slog.Logger
	ctx     context.Context
}

// NewPlatform returns the platform backend. With a nil manager every
// ceremony fails with ErrPlatformUnavailable.
func NewPlatform(manager CredentialManager, opts ...options.Option) *Platform {
	oo := options.NewOptions(opts...)

	return &Platform{
		manager: manager,
		logger:  oo.Logger.With("backend", BackendPlatform),
		ctx:     oo.Context,
	}
}

func (p *Platform) Name() string {
	return BackendPlatform
}

func (p *Platform) Create(op CreateOperation) {
	go func() {
		result, err := p.run(metrics.OperationCreate, op.OptionsJSON, p.managerCreate)
		settle(BackendPlatform, metrics.OperationCreate, op.Success, op.Failure, result, err)
	}()
}

func (p *Platform) Get(op GetOperation) {
	go func() {
		result, err := p.run(metrics.OperationGet, op.OptionsJSON, p.managerGet)
		settle(BackendPlatform, metrics.OperationGet, op.Success, op.Failure, result, err)
	}()
}

func (p *Platform) managerCreate(ctx context.Context, request string) (PlatformCredential, error) {
	return p.manager.CreateCredential(ctx, request)
}

func (p *Platform) managerGet(ctx context.Context, request string) (PlatformCredential, error) {
	return p.manager.GetCredential(ctx, request)
}

func (p *Platform) run(
	operation string,
	optionsJSON string,
	call func(context.Context, string) (PlatformCredential, error),
) (string, error) {
	if p.manager == nil {
		return "", ErrPlatformUnavailable
	}

	request, err := publicKeyJSON(optionsJSON)
	if err != nil {
		return "", err
	}

	cred, err := call(p.ctx, string(request))
	if err != nil {
		p.logger.Error("credential manager failed", "operation", operation, "err", err)
		return "", err
	}

	if cred.Type != string(webauthntypes.PublicKeyCredentialTypePublicKey) {
		p.logger.Warn("credential manager returned a non public key credential", "operation", operation, "type", cred.Type)
		return noPublicKeyJSON(cred.Type)
	}

	return cred.ResponseJSON, nil
}

func noPublicKeyJSON(actual string) (string, error) {
	b, err := json.Marshal(struct {
		Error  string `json:"error"`
		Actual string `json:"actual"`
	}{
		Error:  "no public key credential returned",
		Actual: actual,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
