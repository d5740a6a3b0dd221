package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/pure-golang/report-mailer/config"
	"github.com/pure-golang/report-mailer/logger"
	"github.com/pure-golang/report-mailer/mail"
	"github.com/pure-golang/report-mailer/mail/noop"
	"github.com/pure-golang/report-mailer/mail/smtp"
	"github.com/pure-golang/report-mailer/metrics"
	"github.com/pure-golang/report-mailer/report"
	"github.com/pure-golang/report-mailer/storage"
	"github.com/pure-golang/report-mailer/storage/minio"
	"github.com/pure-golang/report-mailer/tracing/otlp"
)

const (
	exitOK      = 0
	exitFailure = 1
)

const instrumentation = "github.com/pure-golang/report-mailer/cmd/report-mailer"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)

	runsTotal, _ = meter.Int64Counter("report.runs",
		metric.WithDescription("Report mailer runs by result"))
)

// errReported means the failure was already printed.
var errReported = errors.New("failure reported")

type options struct {
	date       string
	recipients string
	dryRun     bool
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, now: time.Now}
}

// run executes the command line and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if args == nil {
		// cobra falls back to os.Args on nil.
		args = []string{}
	}
	cmd := a.command()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			// Flag and argument errors.
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			fmt.Fprint(a.stderr, cmd.UsageString())
		}
		return exitFailure
	}
	return exitOK
}

func (a *app) command() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "report-mailer [flags] <html-file>",
		Short: "Send HTML-formatted JIRA reports via email",
		Long:  longHelp(),
		Example: `  report-mailer jira-report-2026-01-06.html
  report-mailer --date 2026-01-10 --recipients user1@example.com,user2@example.com report.html
  report-mailer s3://reports/weekly/jira-report-2026-01-06.html`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "",
		"Report date (YYYY-MM-DD). If not specified, extracted from filename or uses current date.")
	cmd.Flags().StringVar(&opts.recipients, "recipients", "",
		"Comma-separated list of email recipients. If not specified, uses SMTP_RECIPIENTS env var.")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false,
		"Compose the email but do not connect to the SMTP server.")

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	return cmd
}

func longHelp() string {
	var buf bytes.Buffer
	buf.WriteString("Send HTML-formatted JIRA reports via email.\n\n")
	buf.WriteString("The report is read from a file or an s3://bucket/key object and sent\n")
	buf.WriteString("verbatim as the HTML body.\n\nEnvironment variables:\n")
	if err := config.PrintAllUsage(&buf); err != nil {
		buf.WriteString("  (unavailable: " + err.Error() + ")\n")
	}
	return buf.String()
}

// execute runs the pipeline: validate environment, resolve date, check the
// source, resolve recipients, load content, compose, send.
func (a *app) execute(ctx context.Context, source string, opts options) (err error) {
	cfg, err := config.Load()
	if err != nil {
		a.printConfigError(err)
		return errReported
	}

	logger.InitDefault(cfg.Logger)
	log := logger.FromContext(ctx).With("source", source)
	ctx = logger.NewContext(ctx, log)

	shutdown := a.initTelemetry(ctx, cfg)
	defer shutdown()

	ctx, span := tracer.Start(ctx, "ReportMailer.Run")
	defer span.End()
	defer func() {
		result := "ok"
		if err != nil {
			result = "failed"
			span.SetStatus(codes.Error, result)
		}
		runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		logger.FromContextWithErrIf(ctx, err).Debug("report run failed")
	}()

	date, err := report.ResolveDate(opts.date, source, a.now())
	if err != nil {
		return a.fail(ctx, err)
	}

	if err := report.CheckSource(source); err != nil {
		return a.fail(ctx, err)
	}

	recipients, err := report.ResolveRecipients(opts.recipients, cfg.Report.Recipients)
	if err != nil {
		return a.fail(ctx, err)
	}

	fmt.Fprintf(a.stdout, "Sending report for date: %s\n", date)
	fmt.Fprintf(a.stdout, "Recipients: %s\n", strings.Join(recipients, ", "))

	loader := &report.SourceLoader{
		OpenStorage: func(context.Context) (storage.Storage, error) {
			return minio.NewDefault(cfg.Storage, log)
		},
	}
	html, err := loader.Load(ctx, source)
	if err != nil {
		return a.fail(ctx, err)
	}

	email := report.Compose(report.Report{Source: source, Date: date, HTML: html}, cfg.SMTP.From, recipients)
	span.SetAttributes(
		attribute.String("report.date", date),
		attribute.Int("report.recipients", len(recipients)),
		attribute.Bool("report.dry_run", opts.dryRun),
	)

	if !a.send(ctx, cfg, email, opts.dryRun) {
		fmt.Fprintln(a.stderr, "Failed to send email.")
		return errReported
	}

	if opts.dryRun {
		fmt.Fprintln(a.stdout, "Dry run complete, nothing was sent.")
		return nil
	}
	fmt.Fprintln(a.stdout, "Email sent successfully!")
	return nil
}

// send delivers email and prints the outcome. Send failures end here.
func (a *app) send(ctx context.Context, cfg config.Config, email mail.Email, dryRun bool) bool {
	log := logger.FromContext(ctx)
	recipients := make([]string, len(email.To))
	for i, to := range email.To {
		recipients[i] = to.Address
	}

	var sender mail.Sender
	if dryRun {
		fmt.Fprintf(a.stdout, "Dry run: not connecting to %s\n", net.JoinHostPort(cfg.SMTP.Host, strconv.Itoa(cfg.SMTP.Port)))
		fmt.Fprintf(a.stdout, "Subject: %s\n", email.Subject)
		sender = noop.NewSender(log)
	} else {
		fmt.Fprintf(a.stdout, "Connecting to SMTP server: %s\n", net.JoinHostPort(cfg.SMTP.Host, strconv.Itoa(cfg.SMTP.Port)))
		sender = smtp.NewSender(cfg.SMTP, &smtp.SenderOptions{Logger: log})
	}
	defer sender.Close()

	if err := sender.Send(ctx, email); err != nil {
		logger.FromContextWithErr(ctx, err).Info("failed to send report", "code", string(mail.CodeOf(err)))
		a.printSendError(err)
		return false
	}

	if dryRun {
		fmt.Fprintf(a.stdout, "Would send email to: %s\n", strings.Join(recipients, ", "))
		return true
	}
	fmt.Fprintf(a.stdout, "Successfully sent email to: %s\n", strings.Join(recipients, ", "))
	return true
}

func (a *app) initTelemetry(ctx context.Context, cfg config.Config) func() {
	log := logger.FromContext(ctx)

	provider, err := otlp.Init(cfg.Tracing)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Warn("tracing disabled")
	}

	pusher, err := metrics.InitDefault(cfg.Metrics)
	if err != nil {
		logger.FromContextWithErr(ctx, err).Warn("metrics disabled")
	}

	return func() {
		if pusher != nil {
			if err := pusher.Close(); err != nil {
				log.Warn("failed to push metrics", "error", err.Error())
			}
		}
		if err := provider.Close(); err != nil {
			log.Warn("failed to flush traces", "error", err.Error())
		}
	}
}

func (a *app) fail(ctx context.Context, err error) error {
	logger.FromContextWithErr(ctx, err).Debug("report rejected", "code", string(report.CodeOf(err)))

	var reportErr *report.Error
	if !errors.As(err, &reportErr) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return errReported
	}

	switch reportErr.Code {
	case report.CodeInvalidDate:
		fmt.Fprintf(a.stderr, "Error: %s\n", reportErr.Message)
		fmt.Fprintln(a.stderr, "Expected format: YYYY-MM-DD")
	case report.CodeFileRead:
		cause := reportErr.Message
		if reportErr.Err != nil {
			cause = reportErr.Err.Error()
		}
		fmt.Fprintf(a.stderr, "Error reading HTML file: %s\n", cause)
	default:
		fmt.Fprintf(a.stderr, "Error: %s\n", reportErr.Message)
	}
	return errReported
}

func (a *app) printConfigError(err error) {
	var missing *config.MissingError
	if !errors.As(err, &missing) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return
	}

	fmt.Fprintln(a.stderr, "Error: Missing required environment variables:")
	for _, key := range missing.Keys {
		fmt.Fprintf(a.stderr, "  - %s\n", key)
	}
	fmt.Fprintln(a.stderr, "\nRequired environment variables:")
	if err := config.PrintUsage(a.stderr); err != nil {
		logger.WithErr(err).Warn("failed to print usage")
	}
}

func (a *app) printSendError(err error) {
	var sendErr *mail.SendError
	if !errors.As(err, &sendErr) {
		fmt.Fprintf(a.stderr, "Error: Failed to send email: %v\n", err)
		return
	}

	cause := sendErr.Message
	if sendErr.Err != nil {
		cause += ": " + sendErr.Err.Error()
	}

	switch sendErr.Code {
	case mail.CodeAuthFailed:
		fmt.Fprintln(a.stderr, "Error: SMTP authentication failed. Check username and password.")
	case mail.CodeTransport:
		fmt.Fprintf(a.stderr, "Error: SMTP error occurred: %s\n", cause)
	default:
		fmt.Fprintf(a.stderr, "Error: Failed to send email: %s\n", cause)
	}
}
