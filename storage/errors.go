package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode represents a storage error code.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NotFound"
	CodeAccessDenied   ErrorCode = "AccessDenied"
	CodeBucketNotFound ErrorCode = "BucketNotFound"
	CodeInternalError  ErrorCode = "InternalError"
)

// StorageError wraps storage operation errors.
type StorageError struct {
	Code    ErrorCode
	Message string
	Err     error
	Bucket  string
	Key     string
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage.%s: %s (bucket=%s, key=%s): %v", e.Code, e.Message, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("storage.%s: %s (bucket=%s, key=%s)", e.Code, e.Message, e.Bucket, e.Key)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CodeOf returns the storage code of err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Code
	}
	return ""
}

// IsNotFound reports whether the object or its bucket does not exist.
// Both mean the report is missing.
func IsNotFound(err error) bool {
	code := CodeOf(err)
	return code == CodeNotFound || code == CodeBucketNotFound
}

// IsAccessDenied checks if error is an "access denied" error.
func IsAccessDenied(err error) bool {
	return CodeOf(err) == CodeAccessDenied
}
