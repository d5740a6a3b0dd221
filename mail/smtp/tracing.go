package smtp

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/pure-golang/report-mailer/mail/smtp"

var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)

	sendTotal, _    = meter.Int64Counter("smtp.sends", metric.WithDescription("Emails handed to the SMTP server, by result"))
	sendDuration, _ = meter.Float64Histogram("smtp.send.duration", metric.WithUnit("s"), metric.WithDescription("SMTP session duration"))
)

// recordError records err on span and marks it failed.
func recordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}
