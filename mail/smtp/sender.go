package smtp

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/report-mailer/mail"
)

var _ mail.Sender = (*Sender)(nil)

var (
	errStartTLSUnsupported  = errors.New("server does not advertise STARTTLS")
	errAuthUnsupported      = errors.New("server does not advertise AUTH")
	errAllRecipientsRefused = errors.New("all recipients were refused")
)

// Sender implements mail.Sender using net/smtp. Every Send opens its own
// session: connect, optional STARTTLS, AUTH PLAIN, MAIL/RCPT/DATA, QUIT.
type Sender struct {
	mx     sync.Mutex
	cfg    Config
	logger *slog.Logger
	closed bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	Logger *slog.Logger
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config, options *SenderOptions) *Sender {
	if options == nil {
		options = &SenderOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Sender{
		cfg:    cfg,
		logger: options.Logger.WithGroup("smtp"),
	}
}

// Send sends one or more emails, stopping at the first failure.
func (s *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	for _, email := range emails {
		if err := s.send(ctx, email); err != nil {
			return err
		}
	}
	return nil
}

// send sends a single email.
func (s *Sender) send(ctx context.Context, email mail.Email) (err error) {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.from", email.From.Address),
		attribute.String("smtp.subject", email.Subject),
		attribute.Int("smtp.to_count", len(email.To)),
		attribute.String("smtp.host", s.cfg.Host),
		attribute.Int("smtp.port", s.cfg.Port),
		attribute.String("smtp.mode", s.cfg.RequireTLS.Mode()),
	)

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = string(mail.CodeOf(err))
		}
		attrs := metric.WithAttributes(attribute.String("result", result))
		sendTotal.Add(ctx, 1, attrs)
		sendDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}()

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		span.SetStatus(codes.Error, "sender is closed")
		return errors.New("sender is closed")
	}

	if email.From.Address == "" {
		email.From.Address = s.cfg.From
	}
	if email.From.Address == "" {
		return errors.New("no from address specified")
	}

	recipients := envelopeAddresses(email.To)
	if len(recipients) == 0 {
		return errors.New("no recipients specified")
	}

	msg, err := BuildMessage(email, time.Now())
	if err != nil {
		recordError(span, err, "failed to build message")
		return &mail.SendError{Code: mail.CodeUnknown, Message: "failed to build message", Err: err}
	}

	if err := s.deliver(ctx, email.From.Address, recipients, msg); err != nil {
		recordError(span, err, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// deliver runs one SMTP session. The connection is closed on every path.
func (s *Sender) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	ctx, span := tracer.Start(ctx, "SMTP.Session")
	defer span.End()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	span.SetAttributes(
		attribute.String("smtp.address", addr),
		attribute.Int("smtp.recipients_count", len(to)),
	)

	logger := s.logger.With("address", addr, "mode", s.cfg.RequireTLS.Mode())

	conn, err := s.dial(ctx, addr)
	if err != nil {
		return classify(err, "failed to connect to SMTP server")
	}
	// Unblocks any pending read or write when ctx is cancelled mid-session.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if s.cfg.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
			_ = conn.Close()
			return classify(err, "failed to set connection deadline")
		}
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return classify(err, "failed to read server greeting")
	}
	defer func() {
		// Already closed after a successful QUIT.
		_ = client.Close()
	}()
	logger.Debug("connected")

	if err := client.Hello(localName()); err != nil {
		return classify(err, "EHLO failed")
	}

	if s.cfg.RequireTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return classify(errStartTLSUnsupported, "failed to start TLS")
		}
		// StartTLS repeats EHLO over the encrypted channel.
		if err := client.StartTLS(s.tlsConfig()); err != nil {
			return classify(err, "failed to start TLS")
		}
		span.SetAttributes(attribute.Bool("smtp.starttls", true))
		logger.Debug("connection upgraded")
	}

	if ok, _ := client.Extension("AUTH"); !ok {
		return classify(errAuthUnsupported, "server does not support AUTH")
	}
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return classifyAuth(err)
	}
	logger.Debug("authenticated", "username", s.cfg.Username)

	if err := client.Mail(from); err != nil {
		return classify(err, "failed to set sender")
	}

	refused := 0
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			var protoErr *textproto.Error
			if !errors.As(err, &protoErr) {
				return classify(err, "failed to set recipient")
			}
			refused++
			logger.Warn("recipient refused", "recipient", rcpt, "error", err.Error())
		}
	}
	if refused == len(to) {
		return classify(errAllRecipientsRefused, "failed to set recipients")
	}

	writer, err := client.Data()
	if err != nil {
		return classify(err, "failed to start data")
	}
	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		return classify(err, "failed to write message")
	}
	// The server's verdict on the message arrives on Close.
	if err := writer.Close(); err != nil {
		return classify(err, "message rejected")
	}

	if err := client.Quit(); err != nil {
		logger.Debug("quit failed", "error", err.Error())
	}

	span.SetStatus(codes.Ok, "")
	logger.Info("email delivered", "recipients", len(to)-refused, "refused", refused)
	return nil
}

func (s *Sender) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	if s.cfg.RequireTLS {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: s.tlsConfig()}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

func (s *Sender) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         s.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: s.cfg.Insecure, // #nosec G402 -- controlled by config, user's responsibility
	}
}

// Close closes the sender.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}

// classify maps protocol replies and network failures to CodeTransport and
// everything else to CodeUnknown.
func classify(err error, message string) error {
	code := mail.CodeUnknown

	var protoErr *textproto.Error
	var netErr net.Error
	switch {
	case errors.As(err, &protoErr),
		errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, errStartTLSUnsupported),
		errors.Is(err, errAuthUnsupported),
		errors.Is(err, errAllRecipientsRefused):
		code = mail.CodeTransport
	}

	return &mail.SendError{Code: code, Message: message, Err: err}
}

// authReplies are the AUTH replies that reject the credentials themselves.
var authReplies = map[int]bool{
	454: true, // temporary authentication failure
	530: true, // authentication required
	534: true, // mechanism too weak
	535: true, // credentials invalid
}

// classifyAuth maps credential rejections and client-side mechanism errors to
// CodeAuthFailed. Other replies and dropped connections are transport failures.
func classifyAuth(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return classify(err, "connection lost during authentication")
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && !authReplies[protoErr.Code] {
		return classify(err, "AUTH rejected")
	}
	return &mail.SendError{Code: mail.CodeAuthFailed, Message: "authentication failed", Err: err}
}

func localName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "localhost"
}
