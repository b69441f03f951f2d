package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	FromName string
	User     string
	Pass     string
	UseTLS   bool // implicit TLS, e.g. port 465; STARTTLS is negotiated otherwise
}

func NewSMTPMailer(host string, port int, from, fromName, user, pass string, useTLS bool) *SMTPMailer {
	return &SMTPMailer{
		Host:     strings.TrimSpace(host),
		Port:     port,
		From:     strings.TrimSpace(from),
		FromName: strings.TrimSpace(fromName),
		User:     strings.TrimSpace(user),
		Pass:     strings.TrimSpace(pass),
		UseTLS:   useTLS,
	}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("empty recipient email")
	}
	if s.Host == "" || s.From == "" {
		return errors.New("smtp not configured")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.From, s.FromName)
	m.SetAddressHeader("To", to, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	if s.UseTLS {
		d.SSL = true
		d.TLSConfig = &tls.Config{ServerName: s.Host}
	}

	// gomail has no context support, so the send races the deadline.
	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
