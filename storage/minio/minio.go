package minio

import "time"

// DefaultEndpoint is used when S3_ENDPOINT is empty.
const DefaultEndpoint = "s3.amazonaws.com"

// Config contains S3-compatible storage connection configuration. It is only
// needed for s3:// report sources, so nothing here is required up front.
type Config struct {
	Endpoint           string `envconfig:"S3_ENDPOINT" desc:"S3 endpoint host[:port] for s3:// sources"`
	AccessKey          string `envconfig:"S3_ACCESS_KEY" desc:"S3 access key ID"`
	SecretKey          string `envconfig:"S3_SECRET_KEY" desc:"S3 secret access key"`
	Region             string `envconfig:"S3_REGION" default:"us-east-1" desc:"S3 region"`
	Secure             bool   `envconfig:"S3_SECURE" default:"true" desc:"Use HTTPS for S3"`
	Timeout            int    `envconfig:"S3_TIMEOUT" default:"30" desc:"S3 response timeout in seconds"`
	InsecureSkipVerify bool   `envconfig:"S3_INSECURE_SKIP_VERIFY" default:"false" desc:"Skip S3 certificate verification"`
}

// GetEndpoint returns the configured endpoint or DefaultEndpoint.
func (c *Config) GetEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return DefaultEndpoint
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
