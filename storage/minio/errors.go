package minio

import (
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/pure-golang/report-mailer/storage"
)

// toStorageError converts minio errors to storage errors.
func toStorageError(err error, bucket, key string) error {
	if err == nil {
		return nil
	}

	storageErr := &storage.StorageError{
		Code:    storage.CodeInternalError,
		Message: "internal storage error",
		Err:     err,
		Bucket:  bucket,
		Key:     key,
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchBucket":
		storageErr.Code, storageErr.Message = storage.CodeBucketNotFound, "bucket not found"
	case resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound:
		storageErr.Code, storageErr.Message = storage.CodeNotFound, "object not found"
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		storageErr.Code, storageErr.Message = storage.CodeAccessDenied, "access denied"
	}

	return storageErr
}
