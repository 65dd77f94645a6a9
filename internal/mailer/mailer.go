package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrDelivery = errors.New("email delivery failed")

// DeliveryError carries the message kind and recipient of a failed send.
type DeliveryError struct {
	Kind      string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Kind, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDelivery, e.Err} }

type Recipient struct {
	UserID uint
	Email  string
	Name   string
}

type OTPMessage struct {
	Code      string
	ExpiresAt time.Time
}

type LinkMessage struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

type PasswordChangeNotice struct {
	ChangedAt time.Time
	OriginIP  string
}

// Mailer delivers out-of-band secrets. Every send returns a delivery id on
// success and a *DeliveryError otherwise.
type Mailer interface {
	SendRegistrationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error)
	SendVerificationEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error)
	SendPasswordResetEmail(ctx context.Context, to Recipient, msg LinkMessage) (string, error)
	SendPasswordChangeOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error)
	SendEmailVerificationOTP(ctx context.Context, to Recipient, msg OTPMessage) (string, error)
	SendPasswordChangeConfirmation(ctx context.Context, to Recipient, notice PasswordChangeNotice) (string, error)
}

const (
	KindRegistrationOTP      = "registration_otp"
	KindVerificationLink     = "verification_link"
	KindPasswordResetLink    = "password_reset_link"
	KindPasswordChangeOTP    = "password_change_otp"
	KindEmailVerificationOTP = "email_verification_otp"
	KindPasswordChangeNotice = "password_change_notice"
)
