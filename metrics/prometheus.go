package metrics

import (
	"github.com/pkg/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// NewPrometheusProvider returns a meter provider whose instruments, including
// Go runtime metrics, are gathered through registerer.
func NewPrometheusProvider(registerer prom.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(registerer))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create prometheus instance")
	}
	provider := metric.NewMeterProvider(metric.WithReader(exporter))

	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		return nil, errors.Wrap(err, "failed to start runtime")
	}

	return provider, nil
}
