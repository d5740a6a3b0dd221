// Package config gathers every setting the mailer reads from the environment.
package config

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/pure-golang/report-mailer/env"
	"github.com/pure-golang/report-mailer/logger"
	"github.com/pure-golang/report-mailer/mail/smtp"
	"github.com/pure-golang/report-mailer/metrics"
	"github.com/pure-golang/report-mailer/storage/minio"
	"github.com/pure-golang/report-mailer/tracing/otlp"
)

// RequiredKeys must be set and non-empty, checked and reported in this order.
var RequiredKeys = []string{
	"SMTP_SERVER",
	"SMTP_PORT",
	"SMTP_USERNAME",
	"SMTP_PASSWORD",
	"SMTP_FROM",
	"SMTP_REQUIRE_TLS",
}

// Config is loaded once at startup and never modified.
type Config struct {
	SMTP    smtp.Config
	Report  Report
	Logger  logger.Config
	Tracing otlp.Config
	Metrics metrics.Config
	Storage minio.Config
}

// Report holds report defaults.
type Report struct {
	Recipients string `envconfig:"SMTP_RECIPIENTS" desc:"Default comma-separated recipients"`
}

// MissingError lists required variables that are unset or empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Keys, ", ")
}

// Validate checks RequiredKeys through lookup, usually os.LookupEnv.
func Validate(lookup func(string) (string, bool)) error {
	var missing []string
	for _, key := range RequiredKeys {
		if value, ok := lookup(key); !ok || value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

// Load reads .env, validates the required keys and decodes every section.
func Load() (Config, error) {
	env.LoadDotEnv()

	if err := Validate(os.LookupEnv); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.InitConfig(&cfg.SMTP, &cfg.Report, &cfg.Logger, &cfg.Tracing, &cfg.Metrics, &cfg.Storage); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// PrintUsage writes the SMTP and recipient variables.
func PrintUsage(w io.Writer) error {
	return env.PrintUsage(w, &smtp.Config{}, &Report{})
}

// PrintAllUsage writes every variable the mailer reads.
func PrintAllUsage(w io.Writer) error {
	return env.PrintUsage(w,
		&smtp.Config{}, &Report{},
		&logger.Config{}, &otlp.Config{}, &metrics.Config{}, &minio.Config{},
	)
}
