package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	texttpl "text/template"
	"time"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// VerifyVars feeds the verification templates.
type VerifyVars struct {
	UserEmail string
	Link      string
	TTL       string
}

// ResetVars feeds the password-reset templates.
type ResetVars struct {
	UserEmail string
	Link      string
	TTL       string
}

// NoticeVars feeds the generic security-notice templates.
type NoticeVars struct {
	UserEmail string
	Message   string
}

// Mailer renders the embedded templates and hands the result to the
// configured Sender. BaseURL is the public origin links are built on.
type Mailer struct {
	Sender  Sender
	BaseURL string

	verifyHTML *template.Template
	verifyTXT  *texttpl.Template
	resetHTML  *template.Template
	resetTXT   *texttpl.Template
	noticeHTML *template.Template
	noticeTXT  *texttpl.Template
}

// NewMailer parses the embedded templates once.
func NewMailer(sender Sender, baseURL string) (*Mailer, error) {
	m := &Mailer{Sender: sender, BaseURL: baseURL}

	var err error
	if m.verifyHTML, err = parseHTML("verify_email.html"); err != nil {
		return nil, err
	}
	if m.verifyTXT, err = parseText("verify_email.txt"); err != nil {
		return nil, err
	}
	if m.resetHTML, err = parseHTML("reset_password.html"); err != nil {
		return nil, err
	}
	if m.resetTXT, err = parseText("reset_password.txt"); err != nil {
		return nil, err
	}
	if m.noticeHTML, err = parseHTML("security_notice.html"); err != nil {
		return nil, err
	}
	if m.noticeTXT, err = parseText("security_notice.txt"); err != nil {
		return nil, err
	}
	return m, nil
}

func parseHTML(name string) (*template.Template, error) {
	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("email: read template %s: %w", name, err)
	}
	return template.New(name).Parse(string(b))
}

func parseText(name string) (*texttpl.Template, error) {
	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("email: read template %s: %w", name, err)
	}
	return texttpl.New(name).Parse(string(b))
}

// SendVerification mails the email-confirmation link.
func (m *Mailer) SendVerification(ctx context.Context, to, tokenPlain string, ttl time.Duration) error {
	vars := VerifyVars{
		UserEmail: to,
		Link:      fmt.Sprintf("%s/auth/verify-email?token=%s", m.BaseURL, tokenPlain),
		TTL:       humanTTL(ttl),
	}
	html, text, err := render(m.verifyHTML, m.verifyTXT, vars)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, to, "Confirm your email", html, text)
}

// SendPasswordReset mails the single-use reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, tokenPlain string, ttl time.Duration) error {
	vars := ResetVars{
		UserEmail: to,
		Link:      fmt.Sprintf("%s/auth/reset-password?token=%s", m.BaseURL, tokenPlain),
		TTL:       humanTTL(ttl),
	}
	html, text, err := render(m.resetHTML, m.resetTXT, vars)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, to, "Reset your password", html, text)
}

// SendSecurityNotice mails a plain notification, e.g. after a new
// federation link or a mass session revocation.
func (m *Mailer) SendSecurityNotice(ctx context.Context, to, message string) error {
	vars := NoticeVars{UserEmail: to, Message: message}
	html, text, err := render(m.noticeHTML, m.noticeTXT, vars)
	if err != nil {
		return err
	}
	return m.Sender.Send(ctx, to, "Security notice", html, text)
}

func render(h *template.Template, t *texttpl.Template, vars any) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err = h.Execute(&hb, vars); err != nil {
		return "", "", fmt.Errorf("email: render html: %w", err)
	}
	if err = t.Execute(&tb, vars); err != nil {
		return "", "", fmt.Errorf("email: render text: %w", err)
	}
	return hb.String(), tb.String(), nil
}

func humanTTL(d time.Duration) string {
	if d >= 24*time.Hour {
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	if d >= time.Hour {
		h := int(d.Hours())
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
