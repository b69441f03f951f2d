package mailer

import (
	"context"
	"fmt"
	"html"
	"time"
)

const brandName = "Sign Natural Academy"

// CodeMailer renders verification emails and hands them to a Sender.
type CodeMailer struct {
	sender    Sender
	expiresIn time.Duration
}

func NewCodeMailer(sender Sender, expiresIn time.Duration) *CodeMailer {
	return &CodeMailer{sender: sender, expiresIn: expiresIn}
}

func (m *CodeMailer) SendCode(ctx context.Context, toEmail, toName, code string) error {
	if err := m.sender.Send(ctx, RenderCode(toEmail, toName, code, m.expiresIn)); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func RenderCode(toEmail, toName, code string, expiresIn time.Duration) Message {
	minutes := int(expiresIn.Minutes())
	greeting := "Hi"
	if toName != "" {
		greeting = "Hi " + toName
	}

	text := fmt.Sprintf("%s,\n\nYour verification code is %s.\nIt expires in %d minutes.\n\nIf you did not sign up for %s you can ignore this email.\n",
		greeting, code, minutes, brandName)

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>%s</h2>
    <p>%s, use this code to verify your email:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">%s</div>
    <p>The code expires in %d minutes.</p>
    <p style="color: #888;">If you did not sign up you can ignore this email.</p>
  </div>
</body>
</html>`, brandName, html.EscapeString(greeting), code, minutes)

	return Message{
		To:      toEmail,
		ToName:  toName,
		Subject: "Verify your email - " + brandName,
		Text:    text,
		HTML:    body,
	}
}
