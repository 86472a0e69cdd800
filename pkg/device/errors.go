package device

import (
	"errors"
)

var (
	ErrPingPongMismatch       = errors.New("device: ping/pong mismatch")
	ErrPinUvAuthTokenRequired = errors.New("device: pinUvAuthToken required")
	ErrNotSupported           = errors.New("device: not supported")
	ErrPinNotSet              = errors.New("device: pin not set")
	ErrInvalidSaltSize        = errors.New("device: invalid salt size")
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
