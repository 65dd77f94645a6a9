package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labrental/instrument-marketplace-api/internal/http/response"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
)

// Limiter reports whether key may take one more hit in the current window,
// and if not, how long until the window resets.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// FailureMode decides what happens to a request when the limiter backend errors.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

type RateLimiter struct {
	limiter Limiter
	limit   int
	window  time.Duration
	mode    FailureMode
	scope   string
	backend string
	key     KeyFunc
}

// NewRateLimiter is an in-process, fail-closed limiter keyed by client IP.
func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	return NewDistributedRateLimiter(NewLocalFixedWindowLimiter(), limit, window, FailClosed, scope)
}

func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	return NewDistributedRateLimiterWithKey(limiter, limit, window, mode, scope, nil)
}

func NewDistributedRateLimiterWithKey(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string, key KeyFunc) *RateLimiter {
	rl := &RateLimiter{
		limiter: limiter,
		limit:   limit,
		window:  window,
		mode:    mode,
		scope:   scope,
		backend: "local",
		key:     key,
	}
	if rl.scope == "" {
		rl.scope = "api"
	}
	if rl.key == nil {
		rl.key = clientIPKey
	}
	if _, ok := limiter.(*RedisFixedWindowLimiter); ok {
		rl.backend = "redis"
	}
	return rl
}

// Middleware returns a pass-through handler when the limit is not positive.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, retryAfter, err := rl.limiter.Allow(ctx, rl.scope+":"+rl.key(r), rl.limit, rl.window)
			switch {
			case err != nil && rl.mode == FailOpen:
				rl.record(ctx, "backend_error_allowed")
				slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request",
					"scope", rl.scope, "backend", rl.backend, "error", err)
			case err != nil:
				rl.record(ctx, "backend_error_denied")
				rl.reject(w, r, rl.window)
				return
			case !allowed:
				rl.record(ctx, "denied")
				observability.RecordRateLimitRetryAfter(ctx, rl.scope, retryAfter)
				rl.reject(w, r, retryAfter)
				return
			default:
				rl.record(ctx, "allowed")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) record(ctx context.Context, outcome string) {
	observability.RecordRateLimitDecision(ctx, rl.scope, outcome, rl.backend)
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// SubjectKeyFunc buckets requests by access token subject, falling back to
// the client address when no valid token is present.
func SubjectKeyFunc(parser AccessTokenParser) KeyFunc {
	return func(r *http.Request) string {
		raw, _ := accessTokenFromRequest(r)
		if raw == "" {
			return clientIPKey(r)
		}
		claims, err := parser.ParseAccess(raw)
		if err != nil || claims.Subject == "" {
			return clientIPKey(r)
		}
		return "sub:" + claims.Subject
	}
}

func clientIPKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// retryAfterHeader rounds up to whole seconds, never below one.
func retryAfterHeader(d time.Duration) string {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return strconv.FormatInt(max(secs, 1), 10)
}
