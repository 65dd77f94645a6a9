package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/labrental/instrument-marketplace-api/internal/config"
	"github.com/labrental/instrument-marketplace-api/internal/database"
	"github.com/labrental/instrument-marketplace-api/internal/http/handler"
	"github.com/labrental/instrument-marketplace-api/internal/http/router"
	"github.com/labrental/instrument-marketplace-api/internal/mailer"
	"github.com/labrental/instrument-marketplace-api/internal/repository"
	"github.com/labrental/instrument-marketplace-api/internal/security"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type sessionBody struct {
	User struct {
		ID            uint   `json:"id"`
		Email         string `json:"email"`
		Role          string `json:"role"`
		EmailVerified bool   `json:"email_verified"`
	} `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CSRFToken    string `json:"csrf_token"`
}

// outbox captures every message the service hands to the mailer.
type outbox struct {
	mu    sync.Mutex
	codes map[string]string
	links map[string]string
	kinds []string
}

func newOutbox() *outbox {
	return &outbox{codes: map[string]string{}, links: map[string]string{}}
}

func (o *outbox) record(kind, email, secret string, link bool) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if link {
		o.links[kind+"|"+email] = secret
	} else {
		o.codes[kind+"|"+email] = secret
	}
	o.kinds = append(o.kinds, kind)
	return fmt.Sprintf("msg-%d", len(o.kinds)), nil
}

func (o *outbox) SendRegistrationOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return o.record(mailer.KindRegistrationOTP, to.Email, msg.Code, false)
}

func (o *outbox) SendVerificationEmail(_ context.Context, to mailer.Recipient, msg mailer.LinkMessage) (string, error) {
	return o.record(mailer.KindVerificationLink, to.Email, msg.Token, true)
}

func (o *outbox) SendPasswordResetEmail(_ context.Context, to mailer.Recipient, msg mailer.LinkMessage) (string, error) {
	return o.record(mailer.KindPasswordResetLink, to.Email, msg.Token, true)
}

func (o *outbox) SendPasswordChangeOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return o.record(mailer.KindPasswordChangeOTP, to.Email, msg.Code, false)
}

func (o *outbox) SendEmailVerificationOTP(_ context.Context, to mailer.Recipient, msg mailer.OTPMessage) (string, error) {
	return o.record(mailer.KindEmailVerificationOTP, to.Email, msg.Code, false)
}

func (o *outbox) SendPasswordChangeConfirmation(_ context.Context, to mailer.Recipient, _ mailer.PasswordChangeNotice) (string, error) {
	return o.record(mailer.KindPasswordChangeNotice, to.Email, "", false)
}

func (o *outbox) code(t *testing.T, kind, email string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.codes[kind+"|"+email]
	if !ok {
		t.Fatalf("no %s code sent to %s", kind, email)
	}
	return c
}

func (o *outbox) link(t *testing.T, kind, email string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[kind+"|"+email]
	if !ok {
		t.Fatalf("no %s link sent to %s", kind, email)
	}
	return l
}

func (o *outbox) count(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, k := range o.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

type authTestServerOptions struct {
	cfgOverride func(cfg *config.Config)
	mailer      mailer.Mailer
	throttle    service.LoginThrottle
	authRPM     int
	otpRPM      int
}

type authTestServer struct {
	baseURL string
	client  *http.Client
	outbox  *outbox
	db      *gorm.DB
	users   repository.UserRepository
}

func newAuthTestServer(t *testing.T) *authTestServer {
	return newAuthTestServerWithOptions(t, authTestServerOptions{})
}

func newAuthTestServerWithOptions(t *testing.T, opts authTestServerOptions) *authTestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		JWTIssuer:                 "labrental-api",
		JWTAudience:               "labrental-web",
		JWTAccessSecret:           "abcdefghijklmnopqrstuvwxyz123456",
		JWTRefreshSecret:          "abcdefghijklmnopqrstuvwxyz654321",
		JWTAccessTTL:              15 * time.Minute,
		JWTRefreshTTL:             24 * time.Hour,
		RefreshTokenPepper:        "pepper-1234567890",
		AuthOTPTTL:                10 * time.Minute,
		AuthOTPResendCooldown:     time.Minute,
		AuthOTPMaxAttempts:        3,
		AuthOTPDigits:             6,
		AuthEmailVerifyTokenTTL:   15 * time.Minute,
		AuthPasswordResetTokenTTL: time.Hour,
		AuthEmailVerifyBaseURL:    "http://localhost:3000/verify-email",
		AuthPasswordResetBaseURL:  "http://localhost:3000/reset-password",
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	box := newOutbox()
	var m mailer.Mailer = box
	if opts.mailer != nil {
		m = opts.mailer
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := repository.NewUserRepository(db)
	fp := security.NewFingerprinter(cfg.RefreshTokenPepper)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	tokens := service.NewTokenService(jwtMgr, users, fp, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	otp := service.NewOTPManager(
		service.OTPPolicy{TTL: cfg.AuthOTPTTL, Cooldown: cfg.AuthOTPResendCooldown, MaxAttempts: cfg.AuthOTPMaxAttempts, Digits: cfg.AuthOTPDigits},
		service.LinkPolicy{EmailVerificationTTL: cfg.AuthEmailVerifyTokenTTL, PasswordResetTTL: cfg.AuthPasswordResetTokenTTL},
		fp,
	)
	authSvc := service.NewAuthService(cfg, users, tokens, otp, service.NewInMemoryRegistrationOTPStore(), m, opts.throttle, quiet)

	authRPM, otpRPM := opts.authRPM, opts.otpRPM
	if authRPM == 0 {
		authRPM = 1000
	}
	if otpRPM == 0 {
		otpRPM = 1000
	}
	r := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc, security.NewCookieManager("", false, "lax"), cfg.JWTRefreshTTL),
		UserHandler:      handler.NewUserHandler(authSvc),
		AccessTokens:     tokens,
		CORSOrigins:      []string{"http://localhost:3000"},
		AuthRateLimitRPM: authRPM,
		OTPRateLimitRPM:  otpRPM,
		APIRateLimitRPM:  10000,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar

	return &authTestServer{baseURL: srv.URL, client: client, outbox: box, db: db, users: users}
}

func (s *authTestServer) url(path string) string { return s.baseURL + path }

// registerVerified creates an account over HTTP and confirms it with the
// emailed link, leaving the jar holding a session.
func (s *authTestServer) registerVerified(t *testing.T, email, password string) {
	t.Helper()
	resp, env := doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/register"), map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": password,
		"role":     "institute",
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
	token := s.outbox.link(t, mailer.KindVerificationLink, email)
	resp, env = doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/email/verify"), map[string]string{"token": token}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("verify failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
}

func (s *authTestServer) login(t *testing.T, email, password string) sessionBody {
	t.Helper()
	resp, env := doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/login"), map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
	var session sessionBody
	if err := json.Unmarshal(env.Data, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestAuthLifecycleLoginRefreshLogoutRevoked(t *testing.T) {
	s := newAuthTestServer(t)
	s.registerVerified(t, "lifecycle@lab.test", "Valid1234pass")
	s.login(t, "lifecycle@lab.test", "Valid1234pass")

	resp, env := doJSON(t, s.client, http.MethodGet, s.url("/api/v1/me"), nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("me failed: status=%d", resp.StatusCode)
	}

	oldRefresh := cookieValue(t, s.client, s.baseURL, security.RefreshTokenCookie)
	csrf := cookieValue(t, s.client, s.baseURL, security.CSRFTokenCookie)
	resp, env = doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/refresh"), nil, map[string]string{"X-CSRF-Token": csrf})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("refresh failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
	assertCookieProps(t, resp, security.RefreshTokenCookie, "/api/v1/auth", true)
	assertCookieProps(t, resp, security.CSRFTokenCookie, "/", false)
	if cookieValue(t, s.client, s.baseURL, security.RefreshTokenCookie) == oldRefresh {
		t.Fatal("refresh must rotate the refresh token")
	}

	csrf = cookieValue(t, s.client, s.baseURL, security.CSRFTokenCookie)
	resp, env = doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/logout"), nil, map[string]string{"X-CSRF-Token": csrf})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("logout failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
	assertClearingCookie(t, resp, security.RefreshTokenCookie)

	resp, env = doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/refresh"), map[string]string{"refresh_token": oldRefresh}, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_OR_EXPIRED_TOKEN" {
		t.Fatalf("expected revoked refresh to fail, got status=%d env=%+v", resp.StatusCode, env.Error)
	}
}

func TestAuthLifecycleCSRFMiddleware(t *testing.T) {
	s := newAuthTestServer(t)
	s.registerVerified(t, "csrf@lab.test", "Valid1234pass")
	s.login(t, "csrf@lab.test", "Valid1234pass")

	resp, env := doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/refresh"), nil, nil)
	if resp.StatusCode != http.StatusForbidden || env.Error == nil || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("expected csrf rejection, got status=%d", resp.StatusCode)
	}
	resp, _ = doJSON(t, s.client, http.MethodPost, s.url("/api/v1/auth/logout"), nil, map[string]string{"X-CSRF-Token": "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected csrf mismatch rejection, got status=%d", resp.StatusCode)
	}
}

func TestAuthLifecycleBearerClientsSkipCSRF(t *testing.T) {
	s := newAuthTestServer(t)
	s.registerVerified(t, "bearer@lab.test", "Valid1234pass")
	session := s.login(t, "bearer@lab.test", "Valid1234pass")

	plain := &http.Client{}
	resp, env := doJSON(t, plain, http.MethodGet, s.url("/api/v1/me"), nil, map[string]string{"Authorization": "Bearer " + session.AccessToken})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("bearer me failed: status=%d", resp.StatusCode)
	}
	resp, env = doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/refresh"), map[string]string{"refresh_token": session.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("body refresh failed: status=%d env=%+v", resp.StatusCode, env.Error)
	}
}

func TestAuthLifecycleRefreshReuseRejected(t *testing.T) {
	s := newAuthTestServer(t)
	s.registerVerified(t, "reuse@lab.test", "Valid1234pass")
	session := s.login(t, "reuse@lab.test", "Valid1234pass")

	plain := &http.Client{}
	resp, env := doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/refresh"), map[string]string{"refresh_token": session.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first refresh failed: status=%d", resp.StatusCode)
	}
	var rotated sessionBody
	if err := json.Unmarshal(env.Data, &rotated); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, _ = doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/refresh"), map[string]string{"refresh_token": session.RefreshToken}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token must fail, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/refresh"), map[string]string{"refresh_token": rotated.RefreshToken}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotated token should still be valid, got %d", resp.StatusCode)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	s := newAuthTestServer(t)
	resp, env := doJSON(t, &http.Client{}, http.MethodGet, s.url("/api/v1/me"), nil, nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d", resp.StatusCode)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	resp, raw := doRawText(t, client, method, url, body, headers)
	var env apiEnvelope
	if len(raw) > 0 {
		_ = json.Unmarshal([]byte(raw), &env)
	}
	return resp, env
}

func doRawText(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.String()
}

func cookieValue(t *testing.T, client *http.Client, baseURL, name string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/auth/refresh", nil)
	if err != nil {
		t.Fatalf("new request for cookie lookup: %v", err)
	}
	for _, c := range client.Jar.Cookies(req.URL) {
		if c.Name == name {
			return c.Value
		}
	}
	t.Fatalf("cookie %q not found", name)
	return ""
}

func assertCookieProps(t *testing.T, resp *http.Response, name, path string, httpOnly bool) {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name != name {
			continue
		}
		if c.Path != path {
			t.Fatalf("cookie %s path mismatch: got %q want %q", name, c.Path, path)
		}
		if c.HttpOnly != httpOnly {
			t.Fatalf("cookie %s HttpOnly mismatch: got %v want %v", name, c.HttpOnly, httpOnly)
		}
		return
	}
	t.Fatalf("cookie %s not found in response", name)
}

func assertClearingCookie(t *testing.T, resp *http.Response, name string) {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name && c.MaxAge < 0 {
			return
		}
	}
	t.Fatalf("expected clearing cookie for %s", name)
}
