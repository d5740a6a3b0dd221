// Package otlp exports traces over OTLP/HTTP to any compatible collector
// (Jaeger, Tempo, the OpenTelemetry Collector).
package otlp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/pure-golang/report-mailer/tracing"
)

var _ tracing.Provider = (*Provider)(nil)

// closeTimeout bounds the final flush so a dead collector cannot hold up exit.
const closeTimeout = 5 * time.Second

type Config struct {
	EndPoint    string `envconfig:"TRACING_ENDPOINT" desc:"OTLP/HTTP traces URL, empty disables tracing"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"report-mailer" desc:"Service name reported with traces"`
	AppVersion  string `envconfig:"APP_VERSION" default:"dev" desc:"Service version reported with traces"`
}

// Provider extends tracesdk.TracerProvider with a flushing Close.
type Provider struct {
	*tracesdk.TracerProvider
}

func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := p.ForceFlush(ctx); err != nil {
		if shutdownErr := p.TracerProvider.Shutdown(ctx); shutdownErr != nil {
			return errors.Wrap(err, "otlp force flush failed (also shutdown failed)")
		}
		return errors.Wrap(err, "otlp force flush failed")
	}

	return errors.Wrap(p.TracerProvider.Shutdown(ctx), "shutdown otlp")
}

// Init installs an OTLP provider, or a NoopProvider when no endpoint is set.
func Init(conf Config) (tracing.Provider, error) {
	if conf.EndPoint == "" {
		return &tracing.NoopProvider{}, nil
	}
	return tracing.Init(NewProviderBuilder(conf))
}

func NewProviderBuilder(conf Config) tracing.ProviderBuilder {
	return func() (tracing.Provider, error) {
		if conf.EndPoint == "" {
			return nil, errors.New("empty connection string")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(
			context.Background(),
			otlptracehttp.NewClient(
				otlptracehttp.WithEndpointURL(conf.EndPoint),
			),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create otlp exporter")
		}
		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(tracesdk.AlwaysSample()),
		)

		return &Provider{TracerProvider: tp}, nil
	}
}
