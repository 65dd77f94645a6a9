package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labrental/instrument-marketplace-api/internal/security"
)

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestCORSAllowsKnownOrigin(t *testing.T) {
	h := CORS([]string{"https://app.labrental.test"})(okHandler(http.StatusNoContent))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://app.labrental.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.labrental.test" {
		t.Fatalf("expected allow-origin header for trusted origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	h := CORS([]string{"https://app.labrental.test"})(okHandler(http.StatusNoContent))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header for unknown origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.labrental.test"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected preflight to short-circuit")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.labrental.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-CSRF-Token") {
		t.Fatalf("csrf header must be allowed, got %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler(http.StatusOK))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Fatalf("%s: got %q want %q", header, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("hsts must only be sent over tls")
	}
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"much-too-long@x.com"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		cookies map[string]string
		header  string
		want    int
	}{
		{name: "safe method skips check", method: http.MethodGet, cookies: map[string]string{security.AccessTokenCookie: "a"}, want: http.StatusOK},
		{name: "no session cookies skips check", method: http.MethodPost, want: http.StatusOK},
		{name: "refresh cookie without csrf cookie", method: http.MethodPost, cookies: map[string]string{security.RefreshTokenCookie: "r"}, header: "x", want: http.StatusForbidden},
		{name: "header mismatch", method: http.MethodPost, cookies: map[string]string{security.AccessTokenCookie: "a", security.CSRFTokenCookie: "csrf-1"}, header: "csrf-2", want: http.StatusForbidden},
		{name: "header missing", method: http.MethodPost, cookies: map[string]string{security.AccessTokenCookie: "a", security.CSRFTokenCookie: "csrf-1"}, want: http.StatusForbidden},
		{name: "double submit matches", method: http.MethodPost, cookies: map[string]string{security.RefreshTokenCookie: "r", security.CSRFTokenCookie: "csrf-1"}, header: "csrf-1", want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := CSRFMiddleware(okHandler(http.StatusOK))
			req := httptest.NewRequest(tc.method, "/api/v1/auth/refresh", nil)
			for name, value := range tc.cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			if tc.header != "" {
				req.Header.Set("X-CSRF-Token", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d body=%s", tc.want, rr.Code, rr.Body.String())
			}
			if tc.want == http.StatusForbidden && !strings.Contains(rr.Body.String(), `"FORBIDDEN"`) {
				t.Fatalf("expected FORBIDDEN envelope, got %s", rr.Body.String())
			}
		})
	}
}

func TestCSRFPathGroup(t *testing.T) {
	cases := map[string]string{
		"/":                     "root",
		"/api/v1/auth/refresh":  "api/auth",
		"/api/v1/me":            "api/me",
		"/health/ready":         "health",
		"/api/v1/../v1/auth/x/": "api/auth",
	}
	for in, want := range cases {
		if got := csrfPathGroup(in); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}
