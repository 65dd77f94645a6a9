package service

import (
	"fmt"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

type OTPPolicy struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Digits      int
}

// LinkPolicy holds the lifetimes of emailed link tokens.
type LinkPolicy struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

type OTPOutcome int

const (
	OTPNoChallenge OTPOutcome = iota
	OTPExpired
	OTPAttemptsExhausted
	OTPWrongCode
	OTPAccepted
)

func (o OTPOutcome) String() string {
	switch o {
	case OTPNoChallenge:
		return "no_challenge"
	case OTPExpired:
		return "expired"
	case OTPAttemptsExhausted:
		return "attempts_exhausted"
	case OTPWrongCode:
		return "wrong_code"
	case OTPAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

type OTPVerification struct {
	Outcome           OTPOutcome
	AttemptsRemaining int
}

// IssuedSecret is a freshly generated secret. Secret goes to the user,
// Fingerprint is what gets stored.
type IssuedSecret struct {
	Secret      string
	Fingerprint string
	ExpiresAt   time.Time
	IssuedAt    time.Time
}

type OTPManager struct {
	policy OTPPolicy
	links  LinkPolicy
	fp     *security.Fingerprinter
	now    func() time.Time
}

func NewOTPManager(policy OTPPolicy, links LinkPolicy, fp *security.Fingerprinter) *OTPManager {
	if policy.Digits <= 0 {
		policy.Digits = 6
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	return &OTPManager{policy: policy, links: links, fp: fp, now: func() time.Time { return time.Now().UTC() }}
}

func (m *OTPManager) Policy() OTPPolicy { return m.policy }

// Issue generates a numeric code unless the previous request for the same
// challenge is still inside the resend cooldown.
func (m *OTPManager) Issue(kind domain.ChallengeKind, lastRequestAt *time.Time) (IssuedSecret, error) {
	now := m.now()
	if remaining := m.cooldownRemainingAt(now, lastRequestAt); remaining > 0 {
		return IssuedSecret{}, &CooldownError{Remaining: remaining}
	}
	code, err := security.NewNumericCode(m.policy.Digits)
	if err != nil {
		return IssuedSecret{}, fmt.Errorf("generate %s code: %w", kind, err)
	}
	return IssuedSecret{
		Secret:      code,
		Fingerprint: m.fp.Fingerprint(code),
		ExpiresAt:   now.Add(m.policy.TTL),
		IssuedAt:    now,
	}, nil
}

// NewLinkToken generates a URL-safe token for an emailed link.
func (m *OTPManager) NewLinkToken(kind domain.ChallengeKind) (IssuedSecret, error) {
	var ttl time.Duration
	switch kind {
	case domain.ChallengeEmailVerificationLink:
		ttl = m.links.EmailVerificationTTL
	case domain.ChallengePasswordResetLink:
		ttl = m.links.PasswordResetTTL
	default:
		return IssuedSecret{}, fmt.Errorf("challenge kind %q is not a link", kind)
	}
	token, err := security.NewRandomString(32)
	if err != nil {
		return IssuedSecret{}, fmt.Errorf("generate %s token: %w", kind, err)
	}
	now := m.now()
	return IssuedSecret{
		Secret:      token,
		Fingerprint: m.fp.Fingerprint(token),
		ExpiresAt:   now.Add(ttl),
		IssuedAt:    now,
	}, nil
}

func (m *OTPManager) Fingerprint(secret string) string {
	return m.fp.Fingerprint(secret)
}

// Verify decides the outcome of a submission without touching storage. The
// caller applies it: terminal outcomes clear the challenge, WrongCode counts
// an attempt and Accepted consumes the challenge.
func (m *OTPManager) Verify(ch domain.Challenge, submitted string) OTPVerification {
	if !ch.Active() {
		return OTPVerification{Outcome: OTPNoChallenge}
	}
	if ch.ExpiredAt(m.now()) {
		return OTPVerification{Outcome: OTPExpired}
	}
	if ch.Kind.Counted() && ch.Attempts >= m.policy.MaxAttempts {
		return OTPVerification{Outcome: OTPAttemptsExhausted}
	}
	if m.fp.Matches(ch.Fingerprint, submitted) {
		return OTPVerification{Outcome: OTPAccepted}
	}
	if !ch.Kind.Counted() {
		return OTPVerification{Outcome: OTPNoChallenge}
	}
	remaining := m.policy.MaxAttempts - (ch.Attempts + 1)
	if remaining <= 0 {
		return OTPVerification{Outcome: OTPAttemptsExhausted}
	}
	return OTPVerification{Outcome: OTPWrongCode, AttemptsRemaining: remaining}
}

// CooldownCutoff is the latest previous-request time that still allows a
// new issue at issuedAt.
func (m *OTPManager) CooldownCutoff(issuedAt time.Time) time.Time {
	return issuedAt.Add(-m.policy.Cooldown)
}

func (m *OTPManager) CooldownRemaining(lastRequestAt *time.Time) time.Duration {
	return m.cooldownRemainingAt(m.now(), lastRequestAt)
}

func (m *OTPManager) cooldownRemainingAt(now time.Time, lastRequestAt *time.Time) time.Duration {
	if lastRequestAt == nil || m.policy.Cooldown <= 0 {
		return 0
	}
	elapsed := now.Sub(*lastRequestAt)
	if elapsed >= m.policy.Cooldown {
		return 0
	}
	return min(m.policy.Cooldown-elapsed, m.policy.Cooldown)
}
