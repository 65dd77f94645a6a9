package service

import (
	"errors"
	"testing"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

func newOTPManagerForTest(now time.Time) *OTPManager {
	m := NewOTPManager(
		OTPPolicy{TTL: 10 * time.Minute, Cooldown: time.Minute, MaxAttempts: 3, Digits: 6},
		LinkPolicy{EmailVerificationTTL: 15 * time.Minute, PasswordResetTTL: time.Hour},
		security.NewFingerprinter("test-pepper"),
	)
	m.now = func() time.Time { return now }
	return m
}

func TestOTPManagerIssue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newOTPManagerForTest(now)

	issued, err := m.Issue(domain.ChallengePasswordChangeOTP, nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(issued.Secret) != 6 {
		t.Fatalf("expected 6 digit code, got %q", issued.Secret)
	}
	if issued.Fingerprint == issued.Secret || issued.Fingerprint != m.Fingerprint(issued.Secret) {
		t.Fatalf("fingerprint must be derived from, and differ from, the code")
	}
	if !issued.ExpiresAt.Equal(now.Add(10*time.Minute)) || !issued.IssuedAt.Equal(now) {
		t.Fatalf("unexpected times: %+v", issued)
	}
}

func TestOTPManagerIssueCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newOTPManagerForTest(now)

	tenSecondsAgo := now.Add(-10 * time.Second)
	_, err := m.Issue(domain.ChallengeEmailOTP, &tenSecondsAgo)
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldown.RetryAfterSeconds() != 50 {
		t.Fatalf("expected 50s remaining, got %d", cooldown.RetryAfterSeconds())
	}

	longAgo := now.Add(-time.Minute)
	if _, err := m.Issue(domain.ChallengeEmailOTP, &longAgo); err != nil {
		t.Fatalf("expected issue after cooldown, got %v", err)
	}

	future := now.Add(time.Hour)
	if got := m.CooldownRemaining(&future); got != time.Minute {
		t.Fatalf("future request time must cap at the cooldown, got %v", got)
	}
}

func TestCooldownErrorRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		1500 * time.Millisecond: 2,
		time.Millisecond:        1,
		0:                       1,
		30 * time.Second:        30,
	}
	for remaining, want := range cases {
		if got := (&CooldownError{Remaining: remaining}).RetryAfterSeconds(); got != want {
			t.Fatalf("remaining %v: got %d want %d", remaining, got, want)
		}
	}
}

func TestOTPManagerNewLinkToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newOTPManagerForTest(now)

	verify, err := m.NewLinkToken(domain.ChallengeEmailVerificationLink)
	if err != nil {
		t.Fatalf("verification link: %v", err)
	}
	if !verify.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected verification expiry %v", verify.ExpiresAt)
	}
	reset, err := m.NewLinkToken(domain.ChallengePasswordResetLink)
	if err != nil {
		t.Fatalf("reset link: %v", err)
	}
	if !reset.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected reset expiry %v", reset.ExpiresAt)
	}
	if verify.Secret == reset.Secret {
		t.Fatal("link tokens must be random")
	}
	if _, err := m.NewLinkToken(domain.ChallengeEmailOTP); err == nil {
		t.Fatal("expected error for a code challenge kind")
	}
}

func TestOTPManagerVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newOTPManagerForTest(now)
	fp := m.Fingerprint("123456")
	live := now.Add(5 * time.Minute)
	past := now.Add(-time.Second)

	tests := []struct {
		name          string
		ch            domain.Challenge
		submitted     string
		want          OTPOutcome
		wantRemaining int
	}{
		{name: "no challenge", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP}, submitted: "123456", want: OTPNoChallenge},
		{name: "expired", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp, ExpiresAt: &past}, submitted: "123456", want: OTPExpired},
		{name: "missing expiry is expired", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp}, submitted: "123456", want: OTPExpired},
		{name: "accepted", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp, ExpiresAt: &live}, submitted: "123456", want: OTPAccepted},
		{name: "first wrong", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp, ExpiresAt: &live}, submitted: "000000", want: OTPWrongCode, wantRemaining: 2},
		{name: "second wrong", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp, ExpiresAt: &live, Attempts: 1}, submitted: "000000", want: OTPWrongCode, wantRemaining: 1},
		{name: "third wrong exhausts", ch: domain.Challenge{Kind: domain.ChallengeEmailOTP, Fingerprint: fp, ExpiresAt: &live, Attempts: 2}, submitted: "000000", want: OTPAttemptsExhausted},
		{name: "right code after ceiling", ch: domain.Challenge{Kind: domain.ChallengePasswordChangeOTP, Fingerprint: fp, ExpiresAt: &live, Attempts: 3}, submitted: "123456", want: OTPAttemptsExhausted},
		{name: "wrong link token is not counted", ch: domain.Challenge{Kind: domain.ChallengePasswordResetLink, Fingerprint: fp, ExpiresAt: &live, Attempts: 9}, submitted: "nope", want: OTPNoChallenge},
		{name: "link token accepted regardless of attempts", ch: domain.Challenge{Kind: domain.ChallengePasswordResetLink, Fingerprint: fp, ExpiresAt: &live, Attempts: 9}, submitted: "123456", want: OTPAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.Verify(tc.ch, tc.submitted)
			if got.Outcome != tc.want {
				t.Fatalf("outcome: got %s want %s", got.Outcome, tc.want)
			}
			if got.AttemptsRemaining != tc.wantRemaining {
				t.Fatalf("remaining: got %d want %d", got.AttemptsRemaining, tc.wantRemaining)
			}
		})
	}
}
