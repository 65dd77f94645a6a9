package middleware

import (
	"net/http"
	"path"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/labrental/instrument-marketplace-api/internal/http/response"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

const csrfHeader = "X-CSRF-Token"

var baselineHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

func RequestID(next http.Handler) http.Handler { return chimiddleware.RequestID(next) }

// SecurityHeaders sets the API's fixed response headers. HSTS is only sent
// on TLS connections.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range baselineHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// CORS echoes trusted origins with credentials allowed. Preflights end here.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	trusted := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		trusted[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				h := w.Header()
				h.Add("Vary", "Origin")
				if trusted[origin] {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+csrfHeader)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFMiddleware applies the double-submit check to unsafe requests that
// carry a session cookie. Bearer clients send no cookies and pass through.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		outcome, ok := checkCSRF(r)
		observability.RecordCSRFValidation(r.Context(), outcome, csrfPathGroup(r.URL.Path))
		if !ok {
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkCSRF(r *http.Request) (string, bool) {
	if security.GetCookie(r, security.AccessTokenCookie) == "" && security.GetCookie(r, security.RefreshTokenCookie) == "" {
		return "no_session_cookie", true
	}
	cookie := security.GetCookie(r, security.CSRFTokenCookie)
	switch {
	case cookie == "":
		return "missing_cookie", false
	case !security.ConstantTimeEqual(r.Header.Get(csrfHeader), cookie):
		return "mismatch", false
	default:
		return "valid", true
	}
}

// csrfPathGroup keeps the metric label bounded: /api/v1/auth/... -> api/auth.
func csrfPathGroup(rawPath string) string {
	p := strings.Trim(path.Clean(rawPath), "/")
	if p == "." || p == "" {
		return "root"
	}
	parts := strings.Split(p, "/")
	if parts[0] == "api" && len(parts) >= 3 {
		return "api/" + parts[2]
	}
	return parts[0]
}
