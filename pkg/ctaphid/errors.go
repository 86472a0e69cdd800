package ctaphid

import (
	"errors"

	"github.com/go-ctap/walletbridge/pkg/ctaptypes"
)

var (
	ErrMessageTooLarge        = errors.New("ctaphid: message payload too large")
	ErrUnexpectedCommand      = errors.New("ctaphid: unexpected command")
	ErrInvalidResponseMessage = errors.New("ctaphid: invalid response message")
	ErrInvalidRequest         = errors.New("ctaphid: empty CBOR request")
	ErrNonceMismatch          = errors.New("ctaphid: init nonce mismatch")
)

// CTAPError is a non-zero status returned by the authenticator for a CTAP2 command.
// It unwraps to the StatusCode, so errors.Is(err, CTAP2_ERR_PIN_INVALID) works.
type CTAPError struct {
	Command    ctaptypes.Command
	StatusCode StatusCode
}

func newCTAPError(cmd ctaptypes.Command, code StatusCode) *CTAPError {
	return &CTAPError{
		Command:    cmd,
		StatusCode: code,
	}
}

func (e *CTAPError) Error() string {
	return e.Command.String() + " failed (" + e.StatusCode.String() + ")"
}

func (e *CTAPError) Unwrap() error {
	return e.StatusCode
}

// Error implements error so a status code can be matched with errors.Is.
func (c StatusCode) Error() string {
	return "ctap: " + c.String()
}

// Error implements error for CTAPHID_ERROR replies.
func (e Error) Error() string {
	return "ctaphid: " + e.String()
}
