package mailer

import "context"

// Message is a single outbound email with text and HTML alternatives.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a prepared message through one transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service delivers one-time codes. Errors are returned to the caller, which
// decides whether they are fatal.
type Service interface {
	SendCode(ctx context.Context, toEmail, toName, code string) error
}
