package noop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pure-golang/report-mailer/mail"
)

var _ mail.Sender = (*Sender)(nil)

// Sender accepts emails without delivering them. Used for dry runs and tests.
type Sender struct {
	mx     sync.Mutex
	logger *slog.Logger
	sent   []mail.Email
}

// NewSender creates a new no-op Sender. A nil logger means slog.Default().
func NewSender(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger.WithGroup("noop")}
}

// Send records emails and logs a summary of each.
func (n *Sender) Send(ctx context.Context, emails ...mail.Email) error {
	n.mx.Lock()
	defer n.mx.Unlock()

	for _, email := range emails {
		n.logger.InfoContext(ctx, "email discarded",
			"subject", email.Subject,
			"to_count", len(email.To),
			"html_bytes", len(email.HTML),
		)
		n.sent = append(n.sent, email)
	}
	return nil
}

// Sent returns the emails passed to Send so far.
func (n *Sender) Sent() []mail.Email {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]mail.Email(nil), n.sent...)
}

// Close is a no-op.
func (n *Sender) Close() error {
	return nil
}
