package smtp

import (
	"strings"
	"time"
)

// Config contains SMTP connection parameters.
type Config struct {
	Host       string        `envconfig:"SMTP_SERVER" required:"true" desc:"SMTP server hostname"`
	Port       int           `envconfig:"SMTP_PORT" required:"true" desc:"SMTP server port"`
	Username   string        `envconfig:"SMTP_USERNAME" required:"true" desc:"SMTP authentication username"`
	Password   string        `envconfig:"SMTP_PASSWORD" required:"true" desc:"SMTP authentication password"`
	From       string        `envconfig:"SMTP_FROM" required:"true" desc:"Email sender address"`
	RequireTLS TLSFlag       `envconfig:"SMTP_REQUIRE_TLS" required:"true" desc:"Use STARTTLS (true/false)"`
	Timeout    time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s" desc:"Connection deadline"`
	Insecure   bool          `envconfig:"SMTP_INSECURE" default:"false" desc:"Skip certificate verification"`
}

// TLSFlag selects the transport: true upgrades a plain connection with STARTTLS,
// false dials with implicit TLS (usually port 465).
type TLSFlag bool

// Decode accepts "true", "1" and "yes" in any case. Everything else is false.
func (f *TLSFlag) Decode(value string) error {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Mode names the transport for logs and span attributes.
func (f TLSFlag) Mode() string {
	if f {
		return "starttls"
	}
	return "implicit_tls"
}
