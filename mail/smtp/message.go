package smtp

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/report-mailer/mail"
)

var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// BuildMessage renders email as an RFC 5322 message. The body is always a
// multipart/alternative with the HTML part last; a text/plain part precedes it
// only when email.Body is set.
func BuildMessage(email mail.Email, now time.Time) ([]byte, error) {
	var msg bytes.Buffer

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s\r\n", formatAddress(email.From)))

	if len(email.To) > 0 {
		msg.WriteString(fmt.Sprintf("To: %s\r\n", formatAddressList(email.To)))
	}

	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerSanitizer.Replace(email.Subject))))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	msg.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.NewString(), messageIDDomain(email.From.Address)))
	msg.WriteString("MIME-Version: 1.0\r\n")

	var body bytes.Buffer
	parts := multipart.NewWriter(&body)

	if email.Body != "" {
		if err := writePart(parts, "text/plain; charset=UTF-8", email.Body); err != nil {
			return nil, errors.Wrap(err, "failed to write text part")
		}
	}
	if err := writePart(parts, "text/html; charset=UTF-8", email.HTML); err != nil {
		return nil, errors.Wrap(err, "failed to write html part")
	}
	if err := parts.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart body")
	}

	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", parts.Boundary()))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func writePart(parts *multipart.Writer, contentType, content string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := parts.CreatePart(header)
	if err != nil {
		return err
	}

	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

// formatAddress formats a single address.
func formatAddress(addr mail.Address) string {
	if addr.Name != "" {
		return (&netmail.Address{Name: headerSanitizer.Replace(addr.Name), Address: addr.Address}).String()
	}
	return addr.Address
}

// formatAddressList joins addresses into one header value.
func formatAddressList(addrs []mail.Address) string {
	formatted := make([]string, len(addrs))
	for i, addr := range addrs {
		formatted[i] = formatAddress(addr)
	}
	return strings.Join(formatted, ", ")
}

// envelopeAddresses extracts bare addresses for RCPT TO.
func envelopeAddresses(addrs []mail.Address) []string {
	result := make([]string, len(addrs))
	for i, addr := range addrs {
		result[i] = addr.Address
	}
	return result
}

func messageIDDomain(from string) string {
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		return from[i+1:]
	}
	return "localhost"
}
