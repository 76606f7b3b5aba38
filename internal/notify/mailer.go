// Package notify delivers account and review emails to module leads.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/modreview/internal/core"
	"github.com/JonMunkholm/modreview/internal/logging"
)

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	SystemURL string // Base URL linked from emails
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer is a core.Notifier that sends HTML email over SMTP.
type Mailer struct {
	cfg  MailConfig
	send SendFunc
}

var _ core.Notifier = (*Mailer)(nil)

// NewMailer validates cfg and returns a Mailer. send may be nil to use
// smtp.SendMail.
func NewMailer(cfg MailConfig, send SendFunc) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail sender is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &Mailer{cfg: cfg, send: send}, nil
}

func (m *Mailer) loginURL() string {
	if m.cfg.SystemURL == "" {
		return ""
	}
	return strings.TrimSuffix(m.cfg.SystemURL, "/") + "/auth/login"
}

// SendReminder emails one lead about their pending modules.
func (m *Mailer) SendReminder(ctx context.Context, email string, modules []core.ModuleSummary) error {
	if err := m.deliver(ctx, email, reminderSubject, ReviewReminder(modules, m.loginURL())); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("reminder email sent", "to", email, "modules", len(modules))
	return nil
}

// NotifyProvisioned sends each new lead an account notice. Every user is
// attempted; the failures are joined.
func (m *Mailer) NotifyProvisioned(ctx context.Context, users []core.UserRecord) error {
	var errs []error
	for _, u := range users {
		if err := m.deliver(ctx, u.Email, provisionSubject, ProvisionNotice(u, m.loginURL())); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.Email, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mailer) deliver(ctx context.Context, to, subject string, body templ.Component) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var html bytes.Buffer
	if err := body.Render(ctx, &html); err != nil {
		return fmt.Errorf("render %q: %w", subject, err)
	}

	msg := buildMessage(m.cfg.From, to, subject, html.Bytes())
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles an RFC 5322 message with an HTML body.
func buildMessage(from, to, subject string, html []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.Write(html)
	return b.Bytes()
}
