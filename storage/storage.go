// Package storage describes read access to object storage holding reports.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo represents metadata about a stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// Storage is the read side of an object store.
type Storage interface {
	// Get opens an object. The caller closes the returned reader.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)

	io.Closer
}
