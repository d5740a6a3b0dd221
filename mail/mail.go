package mail

import (
	"context"
	"io"
)

// Sender delivers composed emails.
type Sender interface {
	Send(ctx context.Context, emails ...Email) error
	io.Closer
}

// Email represents an email message.
type Email struct {
	// Envelope
	From    Address
	To      []Address
	Subject string

	// Body
	Body string // Plain text alternative (optional)
	HTML string // HTML body
}

// Address represents an email address.
type Address struct {
	Name    string // "John Doe"
	Address string // "john@example.com"
}

// Addresses wraps bare address strings without display names.
func Addresses(list []string) []Address {
	result := make([]Address, len(list))
	for i, addr := range list {
		result[i] = Address{Address: addr}
	}
	return result
}
