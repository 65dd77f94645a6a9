package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/labrental/instrument-marketplace-api/internal/observability"
)

// LogMailer writes messages to the structured log instead of sending them.
// It is meant for local development where no SMTP relay exists.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendRegistrationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.log(ctx, KindRegistrationOTP, to, "code", msg.Code, "expires_at", msg.ExpiresAt)
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error) {
	return m.log(ctx, KindVerificationLink, to, "verification", linkOrToken(msg), "expires_at", msg.ExpiresAt)
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error) {
	return m.log(ctx, KindPasswordResetLink, to, "reset", linkOrToken(msg), "expires_at", msg.ExpiresAt)
}

func (m *LogMailer) SendPasswordChangeOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.log(ctx, KindPasswordChangeOTP, to, "code", msg.Code, "expires_at", msg.ExpiresAt)
}

func (m *LogMailer) SendEmailVerificationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error) {
	return m.log(ctx, KindEmailVerificationOTP, to, "code", msg.Code, "expires_at", msg.ExpiresAt)
}

func (m *LogMailer) SendPasswordChangeConfirmation(ctx context.Context, to Recipient, notice PasswordChangeNotice) (string, error) {
	return m.log(ctx, KindPasswordChangeNotice, to, "changed_at", notice.ChangedAt, "origin_ip", notice.OriginIP)
}

func (m *LogMailer) log(ctx context.Context, kind string, to Recipient, attrs ...any) (string, error) {
	id := uuid.NewString()
	args := append([]any{
		"delivery_id", id,
		"kind", kind,
		"user_id", to.UserID,
		"email", to.Email,
	}, attrs...)
	m.logger.InfoContext(ctx, "email dispatched to log", args...)
	observability.RecordMailDelivery(ctx, kind, "logged")
	return id, nil
}

func linkOrToken(msg LinkMessage) string {
	if msg.URL != "" {
		return msg.URL
	}
	return "token=" + msg.Token
}
