// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Provider interface {
	trace.TracerProvider
	io.Closer
}

// ProviderBuilder wraps the construction details of a provider, such as its config.
type ProviderBuilder func() (Provider, error)

// Init builds a provider and makes it global. On failure it returns a
// NoopProvider together with the error, so callers may log and carry on.
func Init(creator ProviderBuilder) (Provider, error) {
	provider, err := creator()
	if err != nil {
		return &NoopProvider{}, errors.Wrap(err, "failed to load tracing provider")
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return provider, nil
}

// NoopProvider is used when tracing is disabled or failed to start.
type NoopProvider struct{ noop.TracerProvider }

func (NoopProvider) Close() error { return nil }
