package domain

import "time"

type Role string

const (
	RoleMSME      Role = "msme"
	RoleInstitute Role = "institute"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMSME, RoleInstitute, RoleAdmin:
		return true
	default:
		return false
	}
}

// SelfRegistrable reports whether the role may be chosen at sign-up.
func (r Role) SelfRegistrable() bool {
	return r == RoleMSME || r == RoleInstitute
}

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// User is the persistent credential record. Every *Fingerprint column holds
// a keyed hash of a secret; an empty string means no secret is outstanding.
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Email           string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Organization    string     `gorm:"size:255" json:"organization,omitempty"`
	PasswordHash    string     `gorm:"size:1024;not null" json:"-"`
	Role            Role       `gorm:"size:32;not null;index:idx_users_role" json:"role"`
	Status          string     `gorm:"size:32;not null;default:active;index:idx_users_status" json:"status"`
	EmailVerified   bool       `gorm:"not null;default:false" json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	RefreshTokenFingerprint string `gorm:"size:512;not null;default:''" json:"-"`

	EmailVerificationFingerprint string     `gorm:"size:128;not null;default:'';index" json:"-"`
	EmailVerificationExpiresAt   *time.Time `json:"-"`

	ResetPasswordFingerprint string     `gorm:"size:128;not null;default:'';index" json:"-"`
	ResetPasswordExpiresAt   *time.Time `json:"-"`

	PasswordChangeOTPFingerprint string     `gorm:"size:128;not null;default:''" json:"-"`
	PasswordChangeOTPExpiresAt   *time.Time `json:"-"`
	PasswordChangeOTPAttempts    int        `gorm:"not null;default:0" json:"-"`
	LastPasswordOTPRequestAt     *time.Time `json:"-"`

	EmailOTPFingerprint   string     `gorm:"size:128;not null;default:''" json:"-"`
	EmailOTPExpiresAt     *time.Time `json:"-"`
	EmailOTPAttempts      int        `gorm:"not null;default:0" json:"-"`
	LastEmailOTPRequestAt *time.Time `json:"-"`

	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Challenge returns a snapshot of the outstanding challenge of the given kind.
func (u *User) Challenge(kind ChallengeKind) Challenge {
	switch kind {
	case ChallengeEmailVerificationLink:
		return Challenge{Kind: kind, Fingerprint: u.EmailVerificationFingerprint, ExpiresAt: u.EmailVerificationExpiresAt}
	case ChallengePasswordResetLink:
		return Challenge{Kind: kind, Fingerprint: u.ResetPasswordFingerprint, ExpiresAt: u.ResetPasswordExpiresAt}
	case ChallengePasswordChangeOTP:
		return Challenge{
			Kind:          kind,
			Fingerprint:   u.PasswordChangeOTPFingerprint,
			ExpiresAt:     u.PasswordChangeOTPExpiresAt,
			Attempts:      u.PasswordChangeOTPAttempts,
			LastRequestAt: u.LastPasswordOTPRequestAt,
		}
	case ChallengeEmailOTP:
		return Challenge{
			Kind:          kind,
			Fingerprint:   u.EmailOTPFingerprint,
			ExpiresAt:     u.EmailOTPExpiresAt,
			Attempts:      u.EmailOTPAttempts,
			LastRequestAt: u.LastEmailOTPRequestAt,
		}
	default:
		return Challenge{Kind: kind}
	}
}
