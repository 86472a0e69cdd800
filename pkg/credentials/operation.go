// Package credentials routes WebAuthn create/get requests coming from the
// wallet page to an authenticator backend: a CTAP2 security key, the
// platform credential manager, or an in-memory software authenticator.
package credentials

import (
	"github.com/go-ctap/walletbridge/pkg/metrics"
)

// Backend names, used in logs and metric labels.
const (
	BackendSecurityKey = "security-key"
	BackendPlatform    = "platform"
	BackendSoftware    = "software"
)

// CreateOperation is a navigator.credentials.create call. OptionsJSON is the
// whole CredentialCreationOptions object ({"publicKey": {...}}). Exactly one
// of Success or Failure is called, on a backend goroutine.
type CreateOperation struct {
	OptionsJSON string
	Success     func(credentialJSON string)
	Failure     func(err error)
}

// GetOperation is a navigator.credentials.get call, see CreateOperation.
type GetOperation struct {
	OptionsJSON string
	Success     func(credentialJSON string)
	Failure     func(err error)
}

// Backend performs WebAuthn ceremonies. Create and Get return immediately.
type Backend interface {
	Name() string
	Create(op CreateOperation)
	Get(op GetOperation)
}

// Candidate is one of several discoverable credentials an authenticator
// offered for a single get request.
type Candidate struct {
	CredentialID []byte
	UserID       []byte
	Name         string
	DisplayName  string
}

// Label is what a chooser shows for the candidate.
func (c Candidate) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// settle reports the ceremony outcome and calls the matching continuation.
func settle(backend, operation string, success func(string), failure func(error), result string, err error) {
	if err != nil {
		metrics.RecordCeremony(backend, operation, metrics.OutcomeError)
		if failure != nil {
			failure(err)
		}
		return
	}

	metrics.RecordCeremony(backend, operation, metrics.OutcomeSuccess)
	if success != nil {
		success(result)
	}
}
