package mail

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies a failed send.
type Code string

const (
	CodeAuthFailed Code = "AuthenticationFailure"
	CodeTransport  Code = "TransportFailure"
	CodeUnknown    Code = "UnknownSendFailure"
)

// SendError wraps a failure that happened while delivering an email.
type SendError struct {
	Code    Code
	Message string
	Err     error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mail.%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("mail.%s: %s", e.Code, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// CodeOf returns the send error code carried by err, CodeUnknown otherwise.
func CodeOf(err error) Code {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Code
	}
	return CodeUnknown
}

// IsAuthFailed checks if err is an authentication failure.
func IsAuthFailed(err error) bool {
	return err != nil && CodeOf(err) == CodeAuthFailed
}

// IsTransport checks if err is a protocol or network failure.
func IsTransport(err error) bool {
	return err != nil && CodeOf(err) == CodeTransport
}
