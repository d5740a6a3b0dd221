package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/report-mailer/mail/smtp/smtptest"
)

var fixedNow = time.Date(2026, time.March, 9, 12, 0, 0, 0, time.Local)

type result struct {
	code   int
	stdout string
	stderr string
}

func runApp(t *testing.T, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.now = func() time.Time { return fixedNow }

	code := a.run(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// setupEnv points the mailer at srv and silences observability.
func setupEnv(t *testing.T, srv *smtptest.Server, requireTLS string) {
	t.Helper()

	t.Setenv("SMTP_SERVER", srv.Host)
	t.Setenv("SMTP_PORT", strconv.Itoa(srv.Port))
	t.Setenv("SMTP_USERNAME", "bot")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_FROM", "reports@example.com")
	t.Setenv("SMTP_REQUIRE_TLS", requireTLS)
	t.Setenv("SMTP_RECIPIENTS", "team@example.com, lead@example.com")
	t.Setenv("SMTP_INSECURE", "true")
	t.Setenv("SMTP_TIMEOUT", "5s")
	t.Setenv("LOG_PROVIDER", "noop")
	t.Setenv("TRACING_ENDPOINT", "")
	t.Setenv("METRICS_PUSHGATEWAY_URL", "")
}

func writeReport(t *testing.T, name, html string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(html), 0o600))
	return path
}

func TestRun_SendsReport(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, path)

	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Sending report for date: 2026-01-06\n")
	assert.Contains(t, res.stdout, "Recipients: team@example.com, lead@example.com\n")
	assert.Contains(t, res.stdout, "Connecting to SMTP server: "+srv.Host+":"+strconv.Itoa(srv.Port)+"\n")
	assert.Contains(t, res.stdout, "Successfully sent email to: team@example.com, lead@example.com\n")
	assert.True(t, strings.HasSuffix(res.stdout, "Email sent successfully!\n"))
	assert.Empty(t, res.stderr)

	messages := srv.Messages()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.Equal(t, "reports@example.com", msg.From)
	assert.Equal(t, []string{"team@example.com", "lead@example.com"}, msg.To)
	assert.Contains(t, msg.Data, "Subject: JIRA Progress Report - Jan 06, 2026\r\n")
	assert.Contains(t, msg.Data, "To: team@example.com, lead@example.com\r\n")
	assert.Contains(t, msg.Data, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, msg.Data, "<p>hi</p>")
}

func TestRun_StartTLS(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret", StartTLS: true})
	setupEnv(t, srv, "YES")
	path := writeReport(t, "weekly.html", "<p>weekly</p>")

	res := runApp(t, "--recipients", "a@x.com", path)

	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Sending report for date: 2026-03-09\n")
	assert.Contains(t, srv.Commands(), "STARTTLS")

	messages := srv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"a@x.com"}, messages[0].To)
	assert.Contains(t, messages[0].Data, "Subject: JIRA Progress Report - Mar 09, 2026\r\n")
}

func TestRun_ExplicitDate(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, "--date", "2026-01-10", path)

	require.Equal(t, exitOK, res.code, res.stderr)
	require.Len(t, srv.Messages(), 1)
	assert.Contains(t, srv.Messages()[0].Data, "Subject: JIRA Progress Report - Jan 10, 2026\r\n")
}

func TestRun_AuthenticationFailure(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "other"})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t,
		"Error: SMTP authentication failed. Check username and password.\nFailed to send email.\n",
		res.stderr)
	assert.NotContains(t, res.stdout, "Successfully")
	assert.Empty(t, srv.Messages())
}

func TestRun_AuthNotAdvertised(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret", HideAuth: true})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t,
		"Error: SMTP error occurred: server does not support AUTH: server does not advertise AUTH\nFailed to send email.\n",
		res.stderr)
	assert.Empty(t, srv.Messages())
}

func TestRun_TransportFailure(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret", Refuse: []string{"team@example.com", "lead@example.com"}})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "Error: SMTP error occurred: ")
	assert.Contains(t, res.stderr, "all recipients were refused")
	assert.True(t, strings.HasSuffix(res.stderr, "Failed to send email.\n"))
}

func TestRun_MissingEnvironment(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	t.Setenv("SMTP_PASSWORD", "")

	res := runApp(t, filepath.Join(t.TempDir(), "missing.html"))

	assert.Equal(t, exitFailure, res.code)
	assert.True(t, strings.HasPrefix(res.stderr, "Error: Missing required environment variables:\n  - SMTP_PASSWORD\n\nRequired environment variables:\n"))
	for _, key := range []string{"SMTP_SERVER", "SMTP_PORT", "SMTP_USERNAME", "SMTP_FROM", "SMTP_REQUIRE_TLS"} {
		assert.NotContains(t, res.stderr, "  - "+key)
		assert.Contains(t, res.stderr, "  "+key)
	}
	assert.NotContains(t, res.stderr, "not found")
	assert.Empty(t, res.stdout)
	assert.Empty(t, srv.Commands())
}

func TestRun_InvalidPort(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	t.Setenv("SMTP_PORT", "smtps")

	res := runApp(t, writeReport(t, "r.html", "<p>hi</p>"))

	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "SMTP_PORT")
	assert.Empty(t, srv.Commands())
}

func TestRun_InvalidDate(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")

	// The file does not exist: the date must be rejected first.
	res := runApp(t, "--date", "2026/01/06", filepath.Join(t.TempDir(), "missing.html"))

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t, "Error: Invalid date format: 2026/01/06\nExpected format: YYYY-MM-DD\n", res.stderr)
	assert.Empty(t, srv.Commands())
}

func TestRun_NoRecipients(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	t.Setenv("SMTP_RECIPIENTS", "")

	res := runApp(t, writeReport(t, "r.html", "<p>hi</p>"))

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t, "Error: No recipients specified. Use --recipients or set SMTP_RECIPIENTS env var.\n", res.stderr)
	assert.Empty(t, srv.Commands())
}

func TestRun_FileNotFound(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	path := filepath.Join(t.TempDir(), "report-2026-01-06.html")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t, "Error: HTML file not found: "+path+"\n", res.stderr)
	assert.Empty(t, res.stdout)
	assert.Empty(t, srv.Commands())
}

func TestRun_FileNotFoundWithoutRecipients(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	t.Setenv("SMTP_RECIPIENTS", "")
	path := filepath.Join(t.TempDir(), "missing-2026-01-06.html")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t, "Error: HTML file not found: "+path+"\n", res.stderr)
	assert.Empty(t, srv.Commands())
}

func TestRun_FileReadError(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	path := writeReport(t, "r.html", "<p>\xff\xfe</p>")

	res := runApp(t, path)

	assert.Equal(t, exitFailure, res.code)
	assert.Equal(t, "Error reading HTML file: content is not valid UTF-8\n", res.stderr)
	assert.Equal(t, "Sending report for date: 2026-03-09\nRecipients: team@example.com, lead@example.com\n", res.stdout)
	assert.Empty(t, srv.Commands())
}

func TestRun_ObjectSourceWithoutCredentials(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	t.Setenv("S3_ACCESS_KEY", "")
	t.Setenv("S3_SECRET_KEY", "")

	res := runApp(t, "s3://reports/report-2026-01-06.html")

	assert.Equal(t, exitFailure, res.code)
	assert.Contains(t, res.stderr, "Error reading HTML file: ")
	assert.Contains(t, res.stderr, "S3_ACCESS_KEY")
	assert.Empty(t, srv.Commands())
}

func TestRun_DryRun(t *testing.T) {
	srv := smtptest.NewServer(t, smtptest.Options{Username: "bot", Password: "secret"})
	setupEnv(t, srv, "false")
	path := writeReport(t, "report-2026-01-06.html", "<p>hi</p>")

	res := runApp(t, "--dry-run", path)

	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Subject: JIRA Progress Report - Jan 06, 2026\n")
	assert.Contains(t, res.stdout, "Would send email to: team@example.com, lead@example.com\n")
	assert.Contains(t, res.stdout, "Dry run complete, nothing was sent.\n")
	assert.NotContains(t, res.stdout, "Email sent successfully!")
	assert.Empty(t, srv.Commands())
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no file", args: nil, want: "accepts 1 arg(s), received 0"},
		{name: "two files", args: []string{"a.html", "b.html"}, want: "accepts 1 arg(s), received 2"},
		{name: "unknown flag", args: []string{"--to", "a@x.com", "a.html"}, want: "unknown flag: --to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runApp(t, tt.args...)

			assert.Equal(t, exitFailure, res.code)
			assert.Contains(t, res.stderr, "Error: "+tt.want)
			assert.Contains(t, res.stderr, "Usage:")
		})
	}
}

func TestRun_Help(t *testing.T) {
	res := runApp(t, "--help")

	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "report-mailer [flags] <html-file>")
	assert.Contains(t, res.stdout, "--recipients")
	assert.Contains(t, res.stdout, "SMTP_REQUIRE_TLS")
	assert.Contains(t, res.stdout, "METRICS_PUSHGATEWAY_URL")
}
