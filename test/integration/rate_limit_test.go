package integration

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/labrental/instrument-marketplace-api/internal/http/middleware"
	"github.com/labrental/instrument-marketplace-api/internal/service"
)

func TestAuthRateLimitReturns429(t *testing.T) {
	s := newAuthTestServerWithOptions(t, authTestServerOptions{authRPM: 2})
	body := map[string]string{"email": "limit@lab.test", "password": "Nope1234pass"}
	plain := &http.Client{}

	for i := range 2 {
		resp, _ := doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/login"), body, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}
	resp, env := doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/login"), body, nil)
	if resp.StatusCode != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("expected 429 RATE_LIMITED, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestLoginBackoffAfterRepeatedFailures(t *testing.T) {
	throttle := service.NewInMemoryLoginThrottle(service.BackoffPolicy{
		FreeAttempts: 2,
		Base:         time.Minute,
		Max:          time.Hour,
		Window:       time.Hour,
	})
	s := newAuthTestServerWithOptions(t, authTestServerOptions{throttle: throttle})
	s.registerVerified(t, "backoff@lab.test", "Correct123pass")
	plain := &http.Client{}
	wrong := map[string]string{"email": "backoff@lab.test", "password": "Wrong1234pass"}

	for i := range 3 {
		resp, env := doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/login"), wrong, nil)
		if resp.StatusCode != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "INVALID_CREDENTIALS" {
			t.Fatalf("attempt %d: expected 401 INVALID_CREDENTIALS, got %d", i+1, resp.StatusCode)
		}
	}
	right := map[string]string{"email": "backoff@lab.test", "password": "Correct123pass"}
	resp, env := doJSON(t, plain, http.MethodPost, s.url("/api/v1/auth/login"), right, nil)
	if resp.StatusCode != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "LOGIN_THROTTLED" {
		t.Fatalf("expected 429 LOGIN_THROTTLED while backing off, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRedisLimiterSharedAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := middleware.NewRedisFixedWindowLimiter(client, "it:rl")
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	first := middleware.NewDistributedRateLimiter(backend, 2, time.Minute, middleware.FailClosed, "auth").Middleware()(ok)
	second := middleware.NewDistributedRateLimiter(backend, 2, time.Minute, middleware.FailClosed, "auth").Middleware()(ok)

	codes := []int{
		serve(first, "10.0.0.1:1000"),
		serve(second, "10.0.0.1:1001"),
		serve(first, "10.0.0.1:1002"),
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected the shared window to deny the third request, got %v", codes)
	}

	mr.FastForward(time.Minute + time.Second)
	if code := serve(second, "10.0.0.1:1003"); code != http.StatusNoContent {
		t.Fatalf("expected window reset, got %d", code)
	}
}

func serve(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}
