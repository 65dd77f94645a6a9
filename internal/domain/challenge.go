package domain

import "time"

type ChallengeKind string

const (
	ChallengeEmailVerificationLink ChallengeKind = "email_verification_link"
	ChallengePasswordResetLink     ChallengeKind = "password_reset_link"
	ChallengePasswordChangeOTP     ChallengeKind = "password_change_otp"
	ChallengeEmailOTP              ChallengeKind = "email_otp"
	ChallengeRegistrationOTP       ChallengeKind = "registration_otp"
)

// Counted reports whether wrong submissions are counted against the challenge.
func (k ChallengeKind) Counted() bool {
	switch k {
	case ChallengePasswordChangeOTP, ChallengeEmailOTP, ChallengeRegistrationOTP:
		return true
	default:
		return false
	}
}

// Challenge is a read-only view of one outstanding secret.
type Challenge struct {
	Kind          ChallengeKind
	Fingerprint   string
	ExpiresAt     *time.Time
	Attempts      int
	LastRequestAt *time.Time
}

func (c Challenge) Active() bool {
	return c.Fingerprint != ""
}

func (c Challenge) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt == nil || !now.Before(*c.ExpiresAt)
}

// RegistrationOTP is the pre-account email ownership challenge. It lives only
// in the ephemeral registration store and never touches the users table.
type RegistrationOTP struct {
	Email       string    `json:"email"`
	Fingerprint string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
	RequestedAt time.Time `json:"requested_at"`
	// Verified is set once the code was accepted. A verified entry is proof
	// of ownership for the next registration of Email.
	Verified    bool      `json:"verified"`
}

func (r RegistrationOTP) Challenge() Challenge {
	expiresAt := r.ExpiresAt
	requestedAt := r.RequestedAt
	return Challenge{
		Kind:          ChallengeRegistrationOTP,
		Fingerprint:   r.Fingerprint,
		ExpiresAt:     &expiresAt,
		Attempts:      r.Attempts,
		LastRequestAt: &requestedAt,
	}
}
