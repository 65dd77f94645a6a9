package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labrental/instrument-marketplace-api/internal/config"
	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/mailer"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	Kind   string
	To     mailer.Recipient
	Code   string
	Token  string
	URL    string
	Notice mailer.PasswordChangeNotice
}

// captureMailer records every message and fails the kinds listed in fail.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{fail: map[string]bool{}}
}

func (m *captureMailer) deliver(kind string, mail sentMail) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[kind] {
		return "", &mailer.DeliveryError{Kind: kind, Recipient: mail.To.Email, Err: errors.New("relay unavailable")}
	}
	mail.Kind = kind
	m.sent = append(m.sent, mail)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *captureMailer) SendRegistrationOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return m.deliver(mailer.KindRegistrationOTP, sentMail{To: to, Code: msg.Code})
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to mailer.Recipient, msg mailer.LinkMessage) (string, error) {
	return m.deliver(mailer.KindVerificationLink, sentMail{To: to, Token: msg.Token, URL: msg.URL})
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to mailer.Recipient, msg mailer.LinkMessage) (string, error) {
	return m.deliver(mailer.KindPasswordResetLink, sentMail{To: to, Token: msg.Token, URL: msg.URL})
}

func (m *captureMailer) SendPasswordChangeOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return m.deliver(mailer.KindPasswordChangeOTP, sentMail{To: to, Code: msg.Code})
}

func (m *captureMailer) SendEmailVerificationOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return m.deliver(mailer.KindEmailVerificationOTP, sentMail{To: to, Code: msg.Code})
}

func (m *captureMailer) SendPasswordChangeConfirmation(_ context.Context, to mailer.Recipient, notice mailer.PasswordChangeNotice) (string, error) {
	return m.deliver(mailer.KindPasswordChangeNotice, sentMail{To: to, Notice: notice})
}

func (m *captureMailer) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func (m *captureMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s message captured", kind)
	return sentMail{}
}

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type authServiceFixture struct {
	cfg    *config.Config
	users  repository.UserRepository
	jwt    *security.JWTManager
	fp     *security.Fingerprinter
	tokens *TokenService
	otp    *OTPManager
	reg    *InMemoryRegistrationOTPStore
	mail   *captureMailer
	clock  *testClock
	auth   *AuthService
}

func newAuthServiceFixture(t *testing.T) *authServiceFixture {
	t.Helper()
	cfg := &config.Config{
		JWTIssuer:                 "labrental-api",
		JWTAudience:               "labrental-web",
		JWTAccessTTL:              15 * time.Minute,
		JWTRefreshTTL:             7 * 24 * time.Hour,
		AuthOTPTTL:                10 * time.Minute,
		AuthOTPResendCooldown:     time.Minute,
		AuthOTPMaxAttempts:        3,
		AuthOTPDigits:             6,
		AuthEmailVerifyTokenTTL:   15 * time.Minute,
		AuthPasswordResetTokenTTL: time.Hour,
		AuthEmailVerifyBaseURL:    "https://app.labrental.test/verify-email",
		AuthPasswordResetBaseURL:  "https://app.labrental.test/reset-password",
	}
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	users := repository.NewUserRepository(newServiceDBForTest(t))
	fp := security.NewFingerprinter("test-pepper")
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, "access-secret-0123456789abcdef01", "refresh-secret-0123456789abcdef0")
	tokens := NewTokenService(jwtMgr, users, fp, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	tokens.now = clock.Now
	otp := NewOTPManager(
		OTPPolicy{TTL: cfg.AuthOTPTTL, Cooldown: cfg.AuthOTPResendCooldown, MaxAttempts: cfg.AuthOTPMaxAttempts, Digits: cfg.AuthOTPDigits},
		LinkPolicy{EmailVerificationTTL: cfg.AuthEmailVerifyTokenTTL, PasswordResetTTL: cfg.AuthPasswordResetTokenTTL},
		fp,
	)
	otp.now = clock.Now
	reg := NewInMemoryRegistrationOTPStore()
	reg.now = clock.Now
	mail := newCaptureMailer()
	auth := NewAuthService(cfg, users, tokens, otp, reg, mail, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	auth.now = clock.Now
	return &authServiceFixture{
		cfg:    cfg,
		users:  users,
		jwt:    jwtMgr,
		fp:     fp,
		tokens: tokens,
		otp:    otp,
		reg:    reg,
		mail:   mail,
		clock:  clock,
		auth:   auth,
	}
}

// seedUser stores an account directly, bypassing registration.
func (fx *authServiceFixture) seedUser(t *testing.T, email, password string, verified bool) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		Email:         email,
		Name:          "Seeded",
		PasswordHash:  hash,
		Role:          domain.RoleInstitute,
		Status:        domain.StatusActive,
		EmailVerified: verified,
	}
	if verified {
		at := fx.clock.Now()
		u.EmailVerifiedAt = &at
	}
	if err := fx.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (fx *authServiceFixture) reload(t *testing.T, id uint) *domain.User {
	t.Helper()
	u, err := fx.users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload user %d: %v", id, err)
	}
	return u
}
