package email

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	sent []captured
}

type captured struct {
	to, subject, html, text string
}

func (c *captureSender) Send(_ context.Context, to, subject, html, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, captured{to, subject, html, text})
	return nil
}

func newTestMailer(t *testing.T) (*Mailer, *captureSender) {
	t.Helper()
	cap := &captureSender{}
	m, err := NewMailer(cap, "https://auth.example.com")
	require.NoError(t, err)
	return m, cap
}

func TestSendVerification(t *testing.T) {
	m, cap := newTestMailer(t)

	err := m.SendVerification(context.Background(), "ana@example.com", "tok123", 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, cap.sent, 1)

	msg := cap.sent[0]
	assert.Equal(t, "ana@example.com", msg.to)
	assert.Equal(t, "Confirm your email", msg.subject)
	assert.Contains(t, msg.html, "https://auth.example.com/auth/verify-email?token=tok123")
	assert.Contains(t, msg.text, "https://auth.example.com/auth/verify-email?token=tok123")
	assert.Contains(t, msg.text, "24 hours")
}

func TestSendPasswordReset(t *testing.T) {
	m, cap := newTestMailer(t)

	err := m.SendPasswordReset(context.Background(), "ana@example.com", "tok456", time.Hour)
	require.NoError(t, err)
	require.Len(t, cap.sent, 1)

	msg := cap.sent[0]
	assert.Equal(t, "Reset your password", msg.subject)
	assert.Contains(t, msg.html, "reset-password?token=tok456")
	assert.Contains(t, msg.text, "1 hour")
	assert.Contains(t, msg.text, "works once")
}

func TestSendSecurityNotice(t *testing.T) {
	m, cap := newTestMailer(t)

	err := m.SendSecurityNotice(context.Background(), "ana@example.com", "A Google account was linked to your profile.")
	require.NoError(t, err)
	require.Len(t, cap.sent, 1)
	assert.Contains(t, cap.sent[0].text, "Google account was linked")
}

func TestHTMLEscapesVariables(t *testing.T) {
	m, cap := newTestMailer(t)

	err := m.SendSecurityNotice(context.Background(), "ana@example.com", `<script>alert("x")</script>`)
	require.NoError(t, err)
	require.Len(t, cap.sent, 1)
	assert.NotContains(t, cap.sent[0].html, "<script>")
}

func TestHumanTTL(t *testing.T) {
	assert.Equal(t, "24 hours", humanTTL(24*time.Hour))
	assert.Equal(t, "1 hour", humanTTL(time.Hour))
	assert.Equal(t, "5 minutes", humanTTL(5*time.Minute))
}
