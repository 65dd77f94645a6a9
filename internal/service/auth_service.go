package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/labrental/instrument-marketplace-api/internal/config"
	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/mailer"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/security"

	"go.opentelemetry.io/otel/attribute"
)

// maxChallengeRetries bounds the re-read loop after a conditional update
// loses to a concurrent request on the same challenge.
const maxChallengeRetries = 3

const maxPasswordLength = 128

type AuthService struct {
	cfg      *config.Config
	users    repository.UserRepository
	tokens   *TokenService
	otp      *OTPManager
	regStore RegistrationOTPStore
	mailer   mailer.Mailer
	throttle LoginThrottle
	logger   *slog.Logger
	now      func() time.Time
}

type LoginResult struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	CSRFToken    string       `json:"csrf_token,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at,omitempty"`
}

// OTPDispatch tells the caller when a code that was (or would have been)
// sent expires.
type OTPDispatch struct {
	ExpiresAt time.Time
}

type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	Organization string
	Role         domain.Role
}

func NewAuthService(
	cfg *config.Config,
	users repository.UserRepository,
	tokens *TokenService,
	otp *OTPManager,
	regStore RegistrationOTPStore,
	m mailer.Mailer,
	throttle LoginThrottle,
	logger *slog.Logger,
) *AuthService {
	if throttle == nil {
		throttle = NoopLoginThrottle{}
	}
	return &AuthService{
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		otp:      otp,
		regStore: regStore,
		mailer:   m,
		throttle: throttle,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) RequestRegistrationOTP(ctx context.Context, email string) (OTPDispatch, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return OTPDispatch{}, err
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		observability.RecordAuthFlowEvent(ctx, "registration_otp_request", "duplicate")
		return OTPDispatch{}, ErrDuplicateAccount
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return OTPDispatch{}, err
	}

	var lastRequestAt *time.Time
	if prev, err := s.regStore.Get(ctx, email); err == nil {
		lastRequestAt = &prev.RequestedAt
	} else if !errors.Is(err, ErrRegistrationOTPNotFound) {
		return OTPDispatch{}, err
	}
	issued, err := s.otp.Issue(domain.ChallengeRegistrationOTP, lastRequestAt)
	if err != nil {
		s.recordCooldown(ctx, domain.ChallengeRegistrationOTP, err)
		return OTPDispatch{}, err
	}
	entry := domain.RegistrationOTP{
		Email:       email,
		Fingerprint: issued.Fingerprint,
		ExpiresAt:   issued.ExpiresAt,
		RequestedAt: issued.IssuedAt,
	}
	if err := s.regStore.Put(ctx, email, entry, s.otp.Policy().TTL); err != nil {
		return OTPDispatch{}, err
	}
	if _, err := s.mailer.SendRegistrationOTP(ctx, mailer.Recipient{Email: email}, mailer.OTPMessage{Code: issued.Secret, ExpiresAt: issued.ExpiresAt}); err != nil {
		if delErr := s.regStore.Delete(ctx, email); delErr != nil {
			s.logger.ErrorContext(ctx, "registration code rollback failed", "error", delErr)
		}
		observability.RecordOTPEvent(ctx, string(domain.ChallengeRegistrationOTP), "delivery_failed")
		return OTPDispatch{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	observability.RecordOTPEvent(ctx, string(domain.ChallengeRegistrationOTP), "issued")
	return OTPDispatch{ExpiresAt: issued.ExpiresAt}, nil
}

func (s *AuthService) VerifyRegistrationOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	for range maxChallengeRetries {
		entry, err := s.regStore.Get(ctx, email)
		if errors.Is(err, ErrRegistrationOTPNotFound) {
			return s.rejectChallenge(ctx, domain.ChallengeRegistrationOTP, OTPNoChallenge)
		}
		if err != nil {
			return err
		}
		if entry.Verified {
			return s.rejectChallenge(ctx, domain.ChallengeRegistrationOTP, OTPNoChallenge)
		}
		v := s.otp.Verify(entry.Challenge(), strings.TrimSpace(code))
		switch v.Outcome {
		case OTPExpired, OTPAttemptsExhausted:
			if _, err := s.regStore.Consume(ctx, email, entry.Fingerprint); err != nil {
				return err
			}
			return s.rejectChallenge(ctx, domain.ChallengeRegistrationOTP, v.Outcome)
		case OTPWrongCode:
			ok, err := s.regStore.IncrementAttempts(ctx, email, entry.Attempts)
			if errors.Is(err, ErrRegistrationOTPNotFound) {
				return s.rejectChallenge(ctx, domain.ChallengeRegistrationOTP, OTPNoChallenge)
			}
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			observability.RecordOTPEvent(ctx, string(domain.ChallengeRegistrationOTP), OTPWrongCode.String())
			return &WrongCodeError{AttemptsRemaining: v.AttemptsRemaining}
		case OTPAccepted:
			ok, err := s.regStore.MarkVerified(ctx, email, entry.Fingerprint)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			observability.RecordOTPEvent(ctx, string(domain.ChallengeRegistrationOTP), OTPAccepted.String())
			return nil
		default:
			return s.rejectChallenge(ctx, domain.ChallengeRegistrationOTP, v.Outcome)
		}
	}
	return fmt.Errorf("registration code changed concurrently: %w", ErrInvalidOrExpiredToken)
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, ua, ip string) (_ *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.register")
	defer func() { observability.EndSpan(span, err) }()

	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Organization = strings.TrimSpace(in.Organization)
	if in.Role == "" {
		in.Role = domain.RoleMSME
	}
	v := &ValidationError{}
	if err := validateEmail(in.Email); err != nil {
		v.add("email", "must be a valid email address", nil)
	}
	if in.Name == "" {
		v.add("name", "is required", nil)
	}
	if err := validatePassword(in.Password); err != nil {
		v.add("password", err.Error(), ErrWeakPassword)
	}
	if !in.Role.SelfRegistrable() {
		v.add("role", "must be msme or institute", ErrRoleNotAllowed)
	}
	if err := v.orNil(); err != nil {
		observability.RecordAuthFlowEvent(ctx, "register", "invalid")
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		observability.RecordAuthFlowEvent(ctx, "register", "duplicate")
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        in.Email,
		Name:         in.Name,
		Organization: in.Organization,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       domain.StatusActive,
	}
	if s.registrationProven(ctx, in.Email) {
		at := s.now()
		user.EmailVerified = true
		user.EmailVerifiedAt = &at
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			observability.RecordAuthFlowEvent(ctx, "register", "duplicate")
			return nil, ErrDuplicateAccount
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", int64(user.ID)))

	if user.EmailVerified {
		observability.RecordAuthFlowEvent(ctx, "register", "proven")
	} else if link, err := s.issueLink(ctx, user, domain.ChallengeEmailVerificationLink); err != nil {
		s.logger.WarnContext(ctx, "verification link not issued", "user_id", user.ID, "error", err)
	} else if _, err := s.mailer.SendVerificationEmail(ctx, recipientOf(user), link); err != nil {
		s.logger.WarnContext(ctx, "verification email not delivered", "user_id", user.ID, "error", err)
	}
	if err := s.regStore.Delete(ctx, in.Email); err != nil {
		s.logger.WarnContext(ctx, "registration code cleanup failed", "user_id", user.ID, "error", err)
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role, "ip", ip, "user_agent", ua)
	observability.RecordAuthFlowEvent(ctx, "register", "success")
	return loginResult(user, pair), nil
}

// registrationProven reports whether email holds an accepted, unexpired
// registration code. Store errors count as no proof.
func (s *AuthService) registrationProven(ctx context.Context, email string) bool {
	entry, err := s.regStore.Get(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrRegistrationOTPNotFound) {
			s.logger.WarnContext(ctx, "registration proof lookup failed", "error", err)
		}
		return false
	}
	return entry.Verified && s.now().Before(entry.ExpiresAt)
}

func (s *AuthService) Login(ctx context.Context, email, password, ua, ip string) (_ *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	defer func() { observability.EndSpan(span, err) }()

	email = normalizeEmail(email)
	if wait, err := s.throttle.Check(ctx, email, ip); err != nil {
		s.logger.WarnContext(ctx, "login throttle unavailable", "error", err)
	} else if wait > 0 {
		observability.RecordAuthFlowEvent(ctx, "login", "throttled")
		return nil, &LoginThrottledError{Remaining: wait}
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = security.VerifyPassword(timingDummyHash(), password)
			return nil, s.loginFailed(ctx, email, ip)
		}
		return nil, err
	}
	ok, err := security.VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.loginFailed(ctx, email, ip)
	}
	if err := s.throttle.Reset(ctx, email, ip); err != nil {
		s.logger.WarnContext(ctx, "login throttle reset failed", "error", err)
	}
	s.upgradeHash(ctx, user, password)
	if !user.IsActive() {
		observability.RecordAuthFlowEvent(ctx, "login", "inactive")
		return nil, ErrAccountInactive
	}
	if !user.EmailVerified {
		observability.RecordAuthFlowEvent(ctx, "login", "email_not_verified")
		return nil, ErrEmailNotVerified
	}
	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "last login not recorded", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID, "ip", ip, "user_agent", ua)
	observability.RecordAuthFlowEvent(ctx, "login", "success")
	return loginResult(user, pair), nil
}

// upgradeHash replaces a verified hash that was produced with weaker
// parameters. Failure leaves the old hash in place.
func (s *AuthService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !security.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := security.HashPassword(password)
	if err == nil {
		err = s.users.RehashPassword(ctx, user.ID, user.PasswordHash, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash skipped", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	observability.RecordAuthFlowEvent(ctx, "login", "rehashed")
}

// loginFailed records the failure against the throttle and always reports
// generic invalid credentials; the backoff applies from the next attempt.
func (s *AuthService) loginFailed(ctx context.Context, email, ip string) error {
	observability.RecordAuthFlowEvent(ctx, "login", "invalid_credentials")
	if _, err := s.throttle.RegisterFailure(ctx, email, ip); err != nil {
		s.logger.WarnContext(ctx, "login failure not recorded", "error", err)
	}
	return ErrInvalidCredentials
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	pair, user, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "refresh", "rejected")
		return nil, err
	}
	observability.RecordAuthFlowEvent(ctx, "refresh", "success")
	return loginResult(user, pair), nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.tokens.Revoke(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "logout", "success")
	return nil
}

// ForgotPassword answers the same way whether or not the email belongs to an
// account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthFlowEvent(ctx, "forgot_password", "unknown_email")
			return nil
		}
		return err
	}
	if !user.IsActive() {
		observability.RecordAuthFlowEvent(ctx, "forgot_password", "inactive")
		return nil
	}
	link, err := s.issueLink(ctx, user, domain.ChallengePasswordResetLink)
	if err != nil {
		return err
	}
	if _, err := s.mailer.SendPasswordResetEmail(ctx, recipientOf(user), link); err != nil {
		s.rollbackChallenge(ctx, user.ID, domain.ChallengePasswordResetLink, s.otp.Fingerprint(link.Token))
		s.logger.WarnContext(ctx, "password reset email not delivered", "user_id", user.ID, "error", err)
		observability.RecordAuthFlowEvent(ctx, "forgot_password", "delivery_failed")
		return nil
	}
	observability.RecordAuthFlowEvent(ctx, "forgot_password", "sent")
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return fieldError("password", err.Error(), ErrWeakPassword)
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.now()
	err = s.consumeLink(ctx, domain.ChallengePasswordResetLink, token, repository.AccountUpdate{
		PasswordHash:   hash,
		RevokeSessions: true,
		At:             now,
	})
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "reset_password", "rejected")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "reset_password", "success")
	return nil
}

func (s *AuthService) RequestPasswordChangeOTP(ctx context.Context, userID uint) (OTPDispatch, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return OTPDispatch{}, err
	}
	issued, err := s.issueUserOTP(ctx, user, domain.ChallengePasswordChangeOTP)
	if err != nil {
		return OTPDispatch{}, err
	}
	if _, err := s.mailer.SendPasswordChangeOTP(ctx, recipientOf(user), mailer.OTPMessage{Code: issued.Secret, ExpiresAt: issued.ExpiresAt}); err != nil {
		s.rollbackChallenge(ctx, user.ID, domain.ChallengePasswordChangeOTP, issued.Fingerprint)
		observability.RecordOTPEvent(ctx, string(domain.ChallengePasswordChangeOTP), "delivery_failed")
		return OTPDispatch{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	observability.RecordOTPEvent(ctx, string(domain.ChallengePasswordChangeOTP), "issued")
	return OTPDispatch{ExpiresAt: issued.ExpiresAt}, nil
}

// ChangePasswordWithOTP replaces the password, logs out every other session
// and returns a fresh pair for the caller's device.
func (s *AuthService) ChangePasswordWithOTP(ctx context.Context, userID uint, code, newPassword, ua, ip string) (*LoginResult, error) {
	if err := validatePassword(newPassword); err != nil {
		return nil, fieldError("new_password", err.Error(), ErrWeakPassword)
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.consumeCounted(ctx, user, domain.ChallengePasswordChangeOTP, code, repository.AccountUpdate{
		PasswordHash:   hash,
		RevokeSessions: true,
		At:             now,
	}, func(current *domain.User) error {
		if same, err := security.VerifyPassword(current.PasswordHash, newPassword); err == nil && same {
			return fieldError("new_password", ErrPasswordReused.Error(), ErrPasswordReused)
		}
		return nil
	}); err != nil {
		observability.RecordAuthFlowEvent(ctx, "change_password", "rejected")
		return nil, err
	}

	fresh, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if _, err := s.mailer.SendPasswordChangeConfirmation(ctx, recipientOf(fresh), mailer.PasswordChangeNotice{ChangedAt: now, OriginIP: ip}); err != nil {
		s.logger.WarnContext(ctx, "password change confirmation not delivered", "user_id", fresh.ID, "error", err)
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", fresh.ID, "ip", ip, "user_agent", ua)
	observability.RecordAuthFlowEvent(ctx, "change_password", "success")
	return loginResult(fresh, pair), nil
}

func (s *AuthService) VerifyEmailByLink(ctx context.Context, token string) error {
	now := s.now()
	err := s.consumeLink(ctx, domain.ChallengeEmailVerificationLink, token, repository.AccountUpdate{
		EmailVerifiedAt: &now,
		RevokeSessions:  true,
		At:              now,
	})
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "verify_email_link", "rejected")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "verify_email_link", "success")
	return nil
}

// RequestEmailOTP is a silent no-op for unknown or already verified emails,
// and for a request that falls inside the resend cooldown.
func (s *AuthService) RequestEmailOTP(ctx context.Context, email string) (OTPDispatch, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return OTPDispatch{}, err
	}
	silent := OTPDispatch{ExpiresAt: s.now().Add(s.otp.Policy().TTL)}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return silent, nil
		}
		return OTPDispatch{}, err
	}
	if user.EmailVerified || !user.IsActive() {
		return silent, nil
	}
	issued, err := s.issueUserOTP(ctx, user, domain.ChallengeEmailOTP)
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		s.logger.InfoContext(ctx, "email code request inside cooldown", "user_id", user.ID, "remaining", cooldown.Remaining)
		observability.RecordOTPEvent(ctx, string(domain.ChallengeEmailOTP), "cooldown_suppressed")
		return silent, nil
	}
	if err != nil {
		return OTPDispatch{}, err
	}
	if _, err := s.mailer.SendEmailVerificationOTP(ctx, recipientOf(user), mailer.OTPMessage{Code: issued.Secret, ExpiresAt: issued.ExpiresAt}); err != nil {
		s.rollbackChallenge(ctx, user.ID, domain.ChallengeEmailOTP, issued.Fingerprint)
		observability.RecordOTPEvent(ctx, string(domain.ChallengeEmailOTP), "delivery_failed")
		return OTPDispatch{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	observability.RecordOTPEvent(ctx, string(domain.ChallengeEmailOTP), "issued")
	return OTPDispatch{ExpiresAt: issued.ExpiresAt}, nil
}

func (s *AuthService) VerifyEmailOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return s.rejectChallenge(ctx, domain.ChallengeEmailOTP, OTPNoChallenge)
		}
		return err
	}
	now := s.now()
	if err := s.consumeCounted(ctx, user, domain.ChallengeEmailOTP, code, repository.AccountUpdate{
		EmailVerifiedAt: &now,
		RevokeSessions:  true,
		At:              now,
	}, nil); err != nil {
		observability.RecordAuthFlowEvent(ctx, "verify_email_otp", "rejected")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "verify_email_otp", "success")
	return nil
}

// ResendVerification reissues the verification link. Like ForgotPassword it
// never reveals whether the email is registered.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified || !user.IsActive() {
		return nil
	}
	link, err := s.issueLink(ctx, user, domain.ChallengeEmailVerificationLink)
	if err != nil {
		return err
	}
	if _, err := s.mailer.SendVerificationEmail(ctx, recipientOf(user), link); err != nil {
		s.rollbackChallenge(ctx, user.ID, domain.ChallengeEmailVerificationLink, s.otp.Fingerprint(link.Token))
		s.logger.WarnContext(ctx, "verification email not delivered", "user_id", user.ID, "error", err)
		observability.RecordAuthFlowEvent(ctx, "resend_verification", "delivery_failed")
		return nil
	}
	observability.RecordAuthFlowEvent(ctx, "resend_verification", "sent")
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordUserProfileEvent(ctx, "not_found")
			return nil, ErrInvalidToken
		}
		observability.RecordUserProfileEvent(ctx, "error")
		return nil, err
	}
	observability.RecordUserProfileEvent(ctx, "success")
	return user, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, ErrAccountInactive
	}
	return user, nil
}

// issueUserOTP writes a new code for the user. The write is guarded by the
// persisted last-request time, so two concurrent requests cannot both pass
// the cooldown.
func (s *AuthService) issueUserOTP(ctx context.Context, user *domain.User, kind domain.ChallengeKind) (_ IssuedSecret, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.otp.issue", attribute.String("otp.kind", string(kind)))
	defer func() { observability.EndSpan(span, err) }()

	issued, err := s.otp.Issue(kind, user.Challenge(kind).LastRequestAt)
	if err != nil {
		s.recordCooldown(ctx, kind, err)
		return IssuedSecret{}, err
	}
	cutoff := s.otp.CooldownCutoff(issued.IssuedAt)
	err = s.users.IssueChallenge(ctx, user.ID, kind, repository.ChallengeIssue{
		Fingerprint:       issued.Fingerprint,
		ExpiresAt:         issued.ExpiresAt,
		IssuedAt:          issued.IssuedAt,
		NotRequestedSince: &cutoff,
	})
	if errors.Is(err, repository.ErrStaleWrite) {
		fresh, findErr := s.users.FindByID(ctx, user.ID)
		if findErr != nil {
			return IssuedSecret{}, findErr
		}
		cooldown := &CooldownError{Remaining: max(s.otp.CooldownRemaining(fresh.Challenge(kind).LastRequestAt), time.Second)}
		s.recordCooldown(ctx, kind, cooldown)
		return IssuedSecret{}, cooldown
	}
	if err != nil {
		return IssuedSecret{}, err
	}
	return issued, nil
}

func (s *AuthService) issueLink(ctx context.Context, user *domain.User, kind domain.ChallengeKind) (mailer.LinkMessage, error) {
	issued, err := s.otp.NewLinkToken(kind)
	if err != nil {
		return mailer.LinkMessage{}, err
	}
	if err := s.users.IssueChallenge(ctx, user.ID, kind, repository.ChallengeIssue{
		Fingerprint: issued.Fingerprint,
		ExpiresAt:   issued.ExpiresAt,
		IssuedAt:    issued.IssuedAt,
	}); err != nil {
		return mailer.LinkMessage{}, err
	}
	base := s.cfg.AuthEmailVerifyBaseURL
	if kind == domain.ChallengePasswordResetLink {
		base = s.cfg.AuthPasswordResetBaseURL
	}
	return mailer.LinkMessage{Token: issued.Secret, URL: linkURL(base, issued.Secret), ExpiresAt: issued.ExpiresAt}, nil
}

func (s *AuthService) consumeLink(ctx context.Context, kind domain.ChallengeKind, token string, update repository.AccountUpdate) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.rejectChallenge(ctx, kind, OTPNoChallenge)
	}
	user, err := s.users.FindByChallengeFingerprint(ctx, kind, s.otp.Fingerprint(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return s.rejectChallenge(ctx, kind, OTPNoChallenge)
		}
		return err
	}
	ch := user.Challenge(kind)
	v := s.otp.Verify(ch, token)
	switch v.Outcome {
	case OTPAccepted:
		if err := s.users.ConsumeChallenge(ctx, user.ID, kind, ch.Fingerprint, update); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return s.rejectChallenge(ctx, kind, OTPNoChallenge)
			}
			return err
		}
		observability.RecordOTPEvent(ctx, string(kind), OTPAccepted.String())
		return nil
	case OTPExpired:
		s.rollbackChallenge(ctx, user.ID, kind, ch.Fingerprint)
	}
	return s.rejectChallenge(ctx, kind, v.Outcome)
}

// consumeCounted applies one code submission against a counted per-user
// challenge, re-reading the row when a concurrent submission got there first.
// A non-nil accept runs only once the code matches; when it refuses, the
// submission still spends an attempt and its error is returned.
func (s *AuthService) consumeCounted(ctx context.Context, user *domain.User, kind domain.ChallengeKind, code string, update repository.AccountUpdate, accept func(*domain.User) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "auth.otp.verify", attribute.String("otp.kind", string(kind)))
	defer func() { observability.EndSpan(span, err) }()

	code = strings.TrimSpace(code)
	for range maxChallengeRetries {
		ch := user.Challenge(kind)
		v := s.otp.Verify(ch, code)
		var writeErr error
		switch v.Outcome {
		case OTPExpired, OTPAttemptsExhausted:
			s.rollbackChallenge(ctx, user.ID, kind, ch.Fingerprint)
			return s.rejectChallenge(ctx, kind, v.Outcome)
		case OTPWrongCode:
			writeErr = s.users.RecordFailedAttempt(ctx, user.ID, kind, ch.Fingerprint, ch.Attempts)
			if writeErr == nil {
				observability.RecordOTPEvent(ctx, string(kind), OTPWrongCode.String())
				return &WrongCodeError{AttemptsRemaining: v.AttemptsRemaining}
			}
		case OTPAccepted:
			if accept != nil {
				if refused := accept(user); refused != nil {
					writeErr = s.users.RecordFailedAttempt(ctx, user.ID, kind, ch.Fingerprint, ch.Attempts)
					if writeErr == nil {
						observability.RecordOTPEvent(ctx, string(kind), "refused")
						return refused
					}
					break
				}
			}
			writeErr = s.users.ConsumeChallenge(ctx, user.ID, kind, ch.Fingerprint, update)
			if writeErr == nil {
				observability.RecordOTPEvent(ctx, string(kind), OTPAccepted.String())
				return nil
			}
		default:
			return s.rejectChallenge(ctx, kind, v.Outcome)
		}
		if !errors.Is(writeErr, repository.ErrStaleWrite) {
			return writeErr
		}
		if user, err = s.users.FindByID(ctx, user.ID); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s changed concurrently: %w", kind, ErrInvalidOrExpiredToken)
}

func (s *AuthService) rejectChallenge(ctx context.Context, kind domain.ChallengeKind, outcome OTPOutcome) error {
	observability.RecordOTPEvent(ctx, string(kind), outcome.String())
	if outcome == OTPAttemptsExhausted {
		return ErrTooManyAttempts
	}
	return ErrInvalidOrExpiredToken
}

func (s *AuthService) rollbackChallenge(ctx context.Context, userID uint, kind domain.ChallengeKind, fingerprint string) {
	if _, err := s.users.ClearChallenge(ctx, userID, kind, fingerprint); err != nil {
		s.logger.ErrorContext(ctx, "challenge rollback failed", "user_id", userID, "kind", kind, "error", err)
	}
}

func (s *AuthService) recordCooldown(ctx context.Context, kind domain.ChallengeKind, err error) {
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		observability.RecordOTPEvent(ctx, string(kind), "cooldown")
		observability.RecordOTPCooldown(ctx, string(kind), cooldown.Remaining)
	}
}

func loginResult(user *domain.User, pair *TokenPair) *LoginResult {
	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		CSRFToken:    pair.CSRFToken,
		ExpiresAt:    pair.AccessExpiresAt,
	}
}

func recipientOf(user *domain.User) mailer.Recipient {
	return mailer.Recipient{UserID: user.ID, Email: user.Email, Name: user.Name}
}

func linkURL(base, token string) string {
	if strings.TrimSpace(base) == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fieldError("email", "is required", nil)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fieldError("email", "must be a valid email address", nil)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > maxPasswordLength {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// timingDummyHash lets unknown-email logins spend the same hashing time as
// real ones.
var timingDummyHash = sync.OnceValue(func() string {
	hash, err := security.HashPassword("timing-equalizer-0")
	if err != nil {
		return ""
	}
	return hash
})
