package credentials

import (
	"errors"
)

var (
	ErrAuthenticationRequired = errors.New("credentials: user did not enter a PIN")
	ErrSelectionCancelled     = errors.New("credentials: credential selection cancelled")
	ErrOperationSuperseded    = errors.New("credentials: operation superseded by a newer request")
	ErrPlatformUnavailable    = errors.New("credentials: no platform credential manager")
	ErrNoCredentials          = errors.New("credentials: no matching credentials")
	ErrInvalidOptions         = errors.New("credentials: invalid options")
	ErrClosed                 = errors.New("credentials: backend closed")
)

type ErrorWithMessage struct {
	Message string
	Err     error
}

func newErrorMessage(err error, msg string) *ErrorWithMessage {
	return &ErrorWithMessage{
		Message: msg,
		Err:     err,
	}
}

func (m *ErrorWithMessage) Error() string {
	if m.Message != "" {
		return m.Err.Error() + " (" + m.Message + ")"
	}
	return m.Err.Error()
}

func (m *ErrorWithMessage) Unwrap() error {
	return m.Err
}
