package minio

import (
	"crypto/tls"
	"log/slog"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// Client wraps minio.Client for S3-compatible storage operations.
type Client struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// ClientOptions contains options for client creation.
type ClientOptions struct {
	Logger *slog.Logger
}

// NewClient creates a new S3-compatible storage client. No request is made
// until an object is read.
func NewClient(cfg Config, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required for s3:// sources")
	}

	logger := options.Logger.WithGroup("s3")

	transport, err := minio.DefaultTransport(cfg.Secure)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 transport")
	}
	transport.ResponseHeaderTimeout = cfg.timeout()
	if cfg.Secure && cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402 -- opt-in via S3_INSECURE_SKIP_VERIFY
	}

	endpoint := cfg.GetEndpoint()
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region:    cfg.Region,
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	logger.Debug("S3 client initialized", "endpoint", endpoint, "region", cfg.Region)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// GetMinioClient returns the underlying minio.Client.
func (c *Client) GetMinioClient() *minio.Client {
	return c.client
}

// Close marks the client closed. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Debug("S3 client closed")
	return nil
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
