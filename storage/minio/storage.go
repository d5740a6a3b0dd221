package minio

import (
	"context"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/report-mailer/storage"
)

var _ storage.Storage = (*Storage)(nil)

var tracer = otel.Tracer("github.com/pure-golang/report-mailer/storage/minio")

// Storage implements storage.Storage for MinIO, AWS S3 and other
// S3-compatible providers.
type Storage struct {
	client *Client
	logger *slog.Logger
}

// StorageOptions contains options for Storage creation.
type StorageOptions struct {
	Logger *slog.Logger
}

// NewStorage creates a new S3 Storage instance.
func NewStorage(client *Client, opts *StorageOptions) *Storage {
	if opts == nil {
		opts = &StorageOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Storage{
		client: client,
		logger: opts.Logger.WithGroup("storage").With("backend", "s3"),
	}
}

// NewDefault creates a Storage with a new client.
func NewDefault(cfg Config, logger *slog.Logger) (*Storage, error) {
	client, err := NewClient(cfg, &ClientOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	return NewStorage(client, &StorageOptions{Logger: logger}), nil
}

func (s *Storage) getClient() (*minio.Client, error) {
	if s.client == nil || s.client.client == nil {
		return nil, &storage.StorageError{
			Code:    storage.CodeInternalError,
			Message: "minio client is not initialized",
		}
	}
	if s.client.IsClosed() {
		return nil, &storage.StorageError{
			Code:    storage.CodeInternalError,
			Message: "minio client is closed",
		}
	}
	return s.client.client, nil
}

// Get retrieves an object. The object is stat'ed before returning so a
// missing key fails here rather than on the first read.
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	ctx, span := tracer.Start(ctx, "S3.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	client, err := s.getClient()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, toStorageError(err, bucket, key)
	}

	stat, err := obj.Stat()
	if err != nil {
		if closeErr := obj.Close(); closeErr != nil {
			s.logger.Error("failed to close object after stat error", "error", closeErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, toStorageError(err, bucket, key)
	}

	info := &storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ETag:         stat.ETag,
		ContentType:  stat.ContentType,
	}

	span.SetAttributes(
		attribute.Int64("size", stat.Size),
		attribute.String("etag", stat.ETag),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Debug("object opened", "bucket", bucket, "key", key, "size", stat.Size)
	return obj, info, nil
}

// Close closes the storage connection.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
