package report

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies failures that happen before anything is sent.
type Code string

const (
	CodeConfigurationMissing Code = "ConfigurationMissing"
	CodeInvalidDate          Code = "InvalidDateFormat"
	CodeFileNotFound         Code = "FileNotFound"
	CodeFileRead             Code = "FileReadError"
)

// Error wraps a validation or loading failure.
type Error struct {
	Code    Code
	Message string
	Source  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("report.%s: %s", e.Code, e.Message)
	if e.Source != "" {
		msg += fmt.Sprintf(" (source=%s)", e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err, or "" when err is not a report error.
func CodeOf(err error) Code {
	var reportErr *Error
	if errors.As(err, &reportErr) {
		return reportErr.Code
	}
	return ""
}

// IsNotFound checks if err means the report source does not exist.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeFileNotFound
}
