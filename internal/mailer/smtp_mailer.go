package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/labrental/instrument-marketplace-api/internal/observability"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type SMTPMailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
	tmpl   *template.Template
}

var messageTemplates = template.Must(template.New("mail").Parse(`
{{define "registration_otp"}}Your LabRental sign-up code is {{.Code}}.
It expires at {{.ExpiresAt.Format "15:04 MST"}}. If you did not request it, ignore this email.{{end}}
{{define "password_change_otp"}}Your password change code is {{.Code}}.
It expires at {{.ExpiresAt.Format "15:04 MST"}}. If you did not request it, secure your account.{{end}}
{{define "email_verification_otp"}}Your email verification code is {{.Code}}.
It expires at {{.ExpiresAt.Format "15:04 MST"}}.{{end}}
{{define "verification_link"}}Confirm your email address by opening:
{{.URL}}
The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.{{end}}
{{define "password_reset_link"}}Reset your password by opening:
{{.URL}}
The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. If you did not ask for a reset, ignore this email.{{end}}
{{define "password_change_notice"}}Your password was changed at {{.ChangedAt.Format "2006-01-02 15:04 MST"}}{{if .OriginIP}} from {{.OriginIP}}{{end}}.
If this was not you, reset your password immediately.{{end}}
`))

var messageSubjects = map[string]string{
	KindRegistrationOTP:      "Your LabRental sign-up code",
	KindVerificationLink:     "Verify your LabRental email",
	KindPasswordResetLink:    "Reset your LabRental password",
	KindPasswordChangeOTP:    "Your LabRental password change code",
	KindEmailVerificationOTP: "Your LabRental verification code",
	KindPasswordChangeNotice: "Your LabRental password was changed",
}

func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPMailer{cfg: cfg, logger: logger, tmpl: messageTemplates}
}

func (m *SMTPMailer) SendRegistrationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.send(ctx, KindRegistrationOTP, to, msg)
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error) {
	return m.send(ctx, KindVerificationLink, to, msg)
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error) {
	return m.send(ctx, KindPasswordResetLink, to, msg)
}

func (m *SMTPMailer) SendPasswordChangeOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.send(ctx, KindPasswordChangeOTP, to, msg)
}

func (m *SMTPMailer) SendEmailVerificationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.send(ctx, KindEmailVerificationOTP, to, msg)
}

func (m *SMTPMailer) SendPasswordChangeConfirmation(ctx context.Context, to Recipient, notice PasswordChangeNotice) (string, error) {
	return m.send(ctx, KindPasswordChangeNotice, to, notice)
}

func (m *SMTPMailer) send(ctx context.Context, kind string, to Recipient, data any) (string, error) {
	id := uuid.NewString()
	body, err := m.render(kind, data)
	if err != nil {
		return "", m.fail(ctx, kind, to, err)
	}
	msg := buildMessage(m.cfg.From, to.Email, messageSubjects[kind], id, body)
	if err := m.deliver(ctx, to.Email, msg); err != nil {
		return "", m.fail(ctx, kind, to, err)
	}
	observability.RecordMailDelivery(ctx, kind, "sent")
	m.logger.InfoContext(ctx, "email delivered", "delivery_id", id, "kind", kind, "user_id", to.UserID)
	return id, nil
}

func (m *SMTPMailer) render(kind string, data any) (string, error) {
	var buf bytes.Buffer
	if err := m.tmpl.ExecuteTemplate(&buf, kind, data); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}

func (m *SMTPMailer) fail(ctx context.Context, kind string, to Recipient, err error) error {
	observability.RecordMailDelivery(ctx, kind, "error")
	m.logger.WarnContext(ctx, "email delivery failed", "kind", kind, "user_id", to.UserID, "error", err)
	return &DeliveryError{Kind: kind, Recipient: to.Email, Err: err}
}

func (m *SMTPMailer) deliver(ctx context.Context, rcpt string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, id, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Message-ID: <" + id + "@labrental>\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(strings.TrimSpace(body), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
