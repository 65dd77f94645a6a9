package service

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountInactive       = errors.New("account is not active")
	ErrEmailNotVerified      = errors.New("email verification required")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidToken          = fmt.Errorf("%w: invalid", ErrInvalidOrExpiredToken)
	ErrTokenExpired          = fmt.Errorf("%w: expired", ErrInvalidOrExpiredToken)
	ErrTooManyAttempts       = errors.New("too many attempts")
	ErrDeliveryFailed        = errors.New("could not deliver email")
	ErrDuplicateAccount      = errors.New("an account with this email already exists")
	ErrWeakPassword          = errors.New("password must be at least 8 characters and contain a letter and a digit")
	ErrRoleNotAllowed        = errors.New("role cannot be chosen at registration")
	ErrPasswordReused        = errors.New("new password must differ from the current password")
)

// CooldownError is returned when a code is requested before the resend
// cooldown has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.RetryAfterSeconds())
}

// RetryAfterSeconds is the remaining cooldown rounded up, never below one.
func (e *CooldownError) RetryAfterSeconds() int {
	return ceilSeconds(e.Remaining)
}

// LoginThrottledError is returned while repeated sign-in failures for the
// email or client address are backing off.
type LoginThrottledError struct {
	Remaining time.Duration
}

func (e *LoginThrottledError) Error() string {
	return fmt.Sprintf("too many failed sign-in attempts, retry in %d seconds", e.RetryAfterSeconds())
}

func (e *LoginThrottledError) RetryAfterSeconds() int {
	return ceilSeconds(e.Remaining)
}

func ceilSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

type WrongCodeError struct {
	AttemptsRemaining int
}

func (e *WrongCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

// ValidationError collects field problems. It unwraps to the policy
// sentinels it was built from so callers can still match them.
type ValidationError struct {
	Fields map[string]string
	causes []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error { return e.causes }

func (e *ValidationError) add(field, msg string, cause error) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
	if cause != nil {
		e.causes = append(e.causes, cause)
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string, cause error) error {
	v := &ValidationError{}
	v.add(field, msg, cause)
	return v
}
