package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func TestCodeMailer_RendersCodeAndExpiry(t *testing.T) {
	s := &captureSender{}
	m := NewCodeMailer(s, 10*time.Minute)

	require.NoError(t, m.SendCode(context.Background(), "ada@x.com", "Ada", "012345"))
	require.Len(t, s.msgs, 1)

	msg := s.msgs[0]
	assert.Equal(t, "ada@x.com", msg.To)
	assert.Equal(t, "Verify your email - Sign Natural Academy", msg.Subject)
	assert.Contains(t, msg.Text, "012345")
	assert.Contains(t, msg.Text, "10 minutes")
	assert.Contains(t, msg.HTML, "012345")
}

func TestCodeMailer_EscapesName(t *testing.T) {
	msg := RenderCode("x@x.com", "<b>Eve</b>", "111111", time.Minute)
	assert.NotContains(t, msg.HTML, "<b>Eve</b>")
}

func TestCodeMailer_WrapsSenderError(t *testing.T) {
	boom := errors.New("smtp down")
	m := NewCodeMailer(&captureSender{err: boom}, time.Minute)

	err := m.SendCode(context.Background(), "ada@x.com", "Ada", "123456")
	assert.ErrorIs(t, err, boom)
}

func TestDevMailer_WritesMessage(t *testing.T) {
	logger.SetDefault(logger.Discard())
	var buf bytes.Buffer
	d := NewDevMailer(&buf)

	require.NoError(t, d.Send(context.Background(), RenderCode("ada@x.com", "Ada", "654321", time.Minute)))
	assert.True(t, strings.Contains(buf.String(), "654321"))
	assert.True(t, strings.Contains(buf.String(), "ada@x.com"))
}

func TestSMTPMailer_RejectsMissingRecipient(t *testing.T) {
	s := NewSMTPMailer("localhost", 1025, "no-reply@x.com", "X", "", "", false)
	assert.Error(t, s.Send(context.Background(), Message{Subject: "hi"}))
}

func TestSMTPMailer_HonoursCancelledContext(t *testing.T) {
	// 192.0.2.0/24 is reserved for documentation and never answers.
	s := NewSMTPMailer("192.0.2.1", 25, "no-reply@x.com", "X", "", "", false)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Send(ctx, Message{To: "ada@x.com", Subject: "hi", Text: "hi"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
