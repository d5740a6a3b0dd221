// Package report resolves everything needed to mail a pre-rendered HTML
// report: its date, its recipients and its content. Nothing here touches the
// network except ObjectLoader.
package report

import (
	netmail "net/mail"

	"go.opentelemetry.io/otel"

	"github.com/pure-golang/report-mailer/mail"
)

// SubjectPrefix starts every report subject.
const SubjectPrefix = "JIRA Progress Report - "

var tracer = otel.Tracer("github.com/pure-golang/report-mailer/report")

// Report is one loaded report.
type Report struct {
	Source string // path or s3://bucket/key
	Date   string // YYYY-MM-DD
	HTML   string
}

// Subject returns the email subject for a report date.
func Subject(date string) string {
	return SubjectPrefix + FormatDisplayDate(date)
}

// Compose builds the outgoing email. from may be a bare address or
// "Name <address>".
func Compose(r Report, from string, recipients []string) mail.Email {
	return mail.Email{
		From:    parseFrom(from),
		To:      mail.Addresses(recipients),
		Subject: Subject(r.Date),
		HTML:    r.HTML,
	}
}

func parseFrom(from string) mail.Address {
	if addr, err := netmail.ParseAddress(from); err == nil {
		return mail.Address{Name: addr.Name, Address: addr.Address}
	}
	return mail.Address{Address: from}
}
