package di

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/labrental/instrument-marketplace-api/internal/config"
	"github.com/labrental/instrument-marketplace-api/internal/mailer"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/security"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTokenService(t *testing.T) (*service.TokenService, *security.JWTManager) {
	t.Helper()
	jwt := security.NewJWTManager(
		"iss",
		"aud",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321",
	)
	return service.NewTokenService(jwt, nil, security.NewFingerprinter("pepper-1234567890"), 15*time.Minute, time.Hour), jwt
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveCode(h http.Handler, remote, bearer string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/otp", nil)
	req.RemoteAddr = remote
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestProvideHTTPServer(t *testing.T) {
	cfg := &config.Config{HTTPPort: "9999"}
	srv := provideHTTPServer(cfg, nil)
	if srv.Addr != ":9999" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadTimeout.Seconds() != 10 {
		t.Fatalf("unexpected read timeout: %v", srv.ReadTimeout)
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{
		CORSAllowedOrigins:  []string{"http://localhost:3000"},
		AuthRateLimitPerMin: 10,
		OTPRateLimitPerMin:  5,
		APIRateLimitPerMin:  100,
		OTELMetricsEnabled:  true,
	}
	dep := provideRouterDependencies(nil, nil, nil, nil, nil, nil, nil, nil, cfg)
	if dep.AuthRateLimitRPM != 10 || dep.OTPRateLimitRPM != 5 || dep.APIRateLimitRPM != 100 {
		t.Fatalf("unexpected rate limits: %+v", dep)
	}
	if !dep.EnableOTelHTTP {
		t.Fatal("expected otel http enabled")
	}
	if dep.AccessTokens != nil {
		t.Fatal("nil token service must not become a non-nil parser")
	}
	if len(dep.CORSOrigins) != 1 || dep.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", dep.CORSOrigins)
	}
}

func TestProvideAuthRateLimiterLocal(t *testing.T) {
	cfg := &config.Config{AuthRateLimitPerMin: 1}
	h := provideAuthRateLimiter(cfg, nil)(okHandler())
	if code := serveCode(h, "10.0.0.1:1234", ""); code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", code)
	}
	if code := serveCode(h, "10.0.0.1:1234", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request 429, got %d", code)
	}
	if code := serveCode(h, "10.0.0.2:1234", ""); code != http.StatusOK {
		t.Fatalf("expected other ip to have its own quota, got %d", code)
	}
}

func TestAccountOTPLimiterKeysBySubject(t *testing.T) {
	cfg := &config.Config{OTPRateLimitPerMin: 1}
	tokens, jwt := testTokenService(t)
	token1, err := jwt.SignAccessToken(security.AccessSubject{UserID: 101, Role: "msme"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign token1: %v", err)
	}
	token2, err := jwt.SignAccessToken(security.AccessSubject{UserID: 202, Role: "msme"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("sign token2: %v", err)
	}
	h := provideAccountOTPRateLimiter(cfg, nil, tokens)(okHandler())

	if code := serveCode(h, "10.0.0.1:1234", token1); code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", code)
	}
	if code := serveCode(h, "10.0.0.2:1234", token1); code != http.StatusTooManyRequests {
		t.Fatalf("expected same subject to be limited across ips, got %d", code)
	}
	if code := serveCode(h, "10.0.0.1:1234", token2); code != http.StatusOK {
		t.Fatalf("expected different subject to have separate quota, got %d", code)
	}
}

func TestRedisLimitersShareWindowAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg := &config.Config{RateLimitRedisEnabled: true, RedisKeyPrefix: "it", OTPRateLimitPerMin: 1}

	a := provideOTPRateLimiter(cfg, client)(okHandler())
	b := provideOTPRateLimiter(cfg, client)(okHandler())
	if code := serveCode(a, "10.0.0.1:1234", ""); code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", code)
	}
	if code := serveCode(b, "10.0.0.1:1234", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected second instance to see the shared counter, got %d", code)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("expected rate limit keys in redis")
	}
}

func TestRedisLimiterFailureModes(t *testing.T) {
	cfg := &config.Config{RateLimitRedisEnabled: true, RedisKeyPrefix: "rl", APIRateLimitPerMin: 5, AuthRateLimitPerMin: 5}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	if code := serveCode(provideGlobalRateLimiter(cfg, client)(okHandler()), "10.0.0.1:1234", ""); code != http.StatusOK {
		t.Fatalf("api limiter must fail open, got %d", code)
	}
	if code := serveCode(provideAuthRateLimiter(cfg, client)(okHandler()), "10.0.0.1:1234", ""); code != http.StatusTooManyRequests {
		t.Fatalf("auth limiter must fail closed, got %d", code)
	}
}

func TestProvideRedisClientOnlyWhenRequired(t *testing.T) {
	cfg := &config.Config{RegistrationOTPStore: config.RegistrationStoreMemory, RedisAddr: "localhost:6379"}
	if client := provideRedisClient(cfg, quietLogger()); client != nil {
		t.Fatal("expected nil redis client when no redis-backed component is enabled")
	}

	cfg.RegistrationOTPStore = config.RegistrationStoreRedis
	cfg.RedisDB = 3
	client := provideRedisClient(cfg, quietLogger())
	if client == nil {
		t.Fatal("expected redis client for the redis registration store")
	}
	t.Cleanup(func() { _ = client.Close() })
	rc, ok := client.(*redis.Client)
	if !ok {
		t.Fatalf("expected *redis.Client, got %T", client)
	}
	if rc.Options().Addr != "localhost:6379" || rc.Options().DB != 3 {
		t.Fatalf("unexpected options: %+v", rc.Options())
	}
}

func TestProvideRegistrationOTPStore(t *testing.T) {
	fp := security.NewFingerprinter("pepper-1234567890")
	cfg := &config.Config{RegistrationOTPStore: config.RegistrationStoreMemory}
	if _, ok := provideRegistrationOTPStore(cfg, nil, fp).(*service.InMemoryRegistrationOTPStore); !ok {
		t.Fatal("expected in-memory store")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg.RegistrationOTPStore = config.RegistrationStoreRedis
	if _, ok := provideRegistrationOTPStore(cfg, client, fp).(*service.RedisRegistrationOTPStore); !ok {
		t.Fatal("expected redis store")
	}
}

func TestProvideLoginThrottle(t *testing.T) {
	cfg := &config.Config{LoginFreeAttempts: 3, LoginBackoffBase: time.Second, LoginBackoffMax: time.Minute, LoginFailureWindow: time.Hour}
	if _, ok := provideLoginThrottle(cfg, nil).(*service.InMemoryLoginThrottle); !ok {
		t.Fatal("expected in-memory throttle")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cfg.RateLimitRedisEnabled = true
	if _, ok := provideLoginThrottle(cfg, client).(*service.RedisLoginThrottle); !ok {
		t.Fatal("expected redis throttle")
	}
}

func TestProvideMailer(t *testing.T) {
	cfg := &config.Config{MailDriver: config.MailDriverLog}
	if _, ok := provideMailer(cfg, quietLogger()).(*mailer.LogMailer); !ok {
		t.Fatal("expected log mailer")
	}
	cfg = &config.Config{MailDriver: config.MailDriverSMTP, SMTPHost: "smtp.test", SMTPPort: 2525, MailFrom: "no-reply@labrental.test"}
	if _, ok := provideMailer(cfg, quietLogger()).(*mailer.SMTPMailer); !ok {
		t.Fatal("expected smtp mailer")
	}
}

func TestProvideReadinessCheckRunnerWithoutDependencies(t *testing.T) {
	cfg := &config.Config{ReadinessCheckTimeout: time.Second}
	runner := provideReadinessCheckRunner(cfg, nil, nil)
	ready, results := runner.Ready(t.Context())
	if !ready || len(results) != 0 {
		t.Fatalf("expected ready with no checks, got ready=%v results=%+v", ready, results)
	}
}

func TestProvideApp(t *testing.T) {
	cfg := &config.Config{HTTPPort: "8080"}
	logger := slog.Default()
	srv := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	runtime := &observability.Runtime{}

	app := provideApp(cfg, logger, srv, runtime, nil, nil, nil)
	if app == nil {
		t.Fatal("expected app")
	}
	if app.Config != cfg || app.Logger != logger || app.Server != srv || app.Observability != runtime {
		t.Fatal("app dependencies not wired as expected")
	}
}
