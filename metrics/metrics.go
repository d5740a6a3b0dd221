// Package metrics collects OpenTelemetry metrics into a Prometheus registry
// and pushes them to a Pushgateway when the process exits. A one-shot CLI is
// gone before any scraper could reach it.
package metrics

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Config struct {
	PushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL" desc:"Prometheus Pushgateway URL, empty disables metrics"`
	Job            string `envconfig:"METRICS_JOB" default:"report_mailer" desc:"Pushgateway job name"`
	PushTimeout    int    `envconfig:"METRICS_PUSH_TIMEOUT" default:"10" desc:"Pushgateway timeout in seconds"`
}

type Metrics struct {
	config   Config
	registry *prom.Registry
	provider *sdkmetric.MeterProvider
	pusher   *push.Pusher
}

// InitDefault installs a global meter provider that pushes on Close. With no
// Pushgateway configured it returns a closer that does nothing.
func InitDefault(config Config) (io.Closer, error) {
	if config.PushgatewayURL == "" {
		return nopCloser{}, nil
	}

	m, err := New(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init metrics")
	}
	otel.SetMeterProvider(m.provider)

	return m, nil
}

func New(config Config) (*Metrics, error) {
	if config.PushgatewayURL == "" {
		return nil, errors.New("empty pushgateway url")
	}
	if config.Job == "" {
		return nil, errors.New("empty job name")
	}

	registry := prom.NewRegistry()
	provider, err := NewPrometheusProvider(registry)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		config:   config,
		registry: registry,
		provider: provider,
		pusher:   push.New(config.PushgatewayURL, config.Job).Gatherer(registry),
	}, nil
}

// MeterProvider returns the provider feeding the pushed registry.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.provider
}

// Push replaces the job's metrics on the Pushgateway.
func (m *Metrics) Push(ctx context.Context) error {
	return errors.Wrap(m.pusher.PushContext(ctx), "failed to push metrics")
}

// Close pushes once more and shuts the provider down.
func (m *Metrics) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.pushTimeout())
	defer cancel()

	pushErr := m.Push(ctx)
	if err := m.provider.Shutdown(ctx); err != nil && pushErr == nil {
		return errors.Wrap(err, "failed to shutdown meter provider")
	}

	return pushErr
}

func (m *Metrics) pushTimeout() time.Duration {
	if m.config.PushTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.config.PushTimeout) * time.Second
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
