package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// BackoffPolicy describes exponential sign-in backoff. The first
// FreeAttempts failures inside Window cost nothing; each later failure
// doubles the delay from Base up to Max.
type BackoffPolicy struct {
	FreeAttempts int
	Base         time.Duration
	Max          time.Duration
	Window       time.Duration
}

// LoginThrottle tracks failed sign-ins per email and per client IP. Both
// dimensions are bumped on a failure and the larger cooldown wins.
type LoginThrottle interface {
	Check(ctx context.Context, email, ip string) (time.Duration, error)
	RegisterFailure(ctx context.Context, email, ip string) (time.Duration, error)
	Reset(ctx context.Context, email, ip string) error
}

type NoopLoginThrottle struct{}

func (NoopLoginThrottle) Check(context.Context, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopLoginThrottle) RegisterFailure(context.Context, string, string) (time.Duration, error) {
	return 0, nil
}

func (NoopLoginThrottle) Reset(context.Context, string, string) error { return nil }

type failureState struct {
	count         int
	lastFailureAt time.Time
	cooldownUntil time.Time
}

type InMemoryLoginThrottle struct {
	mu     sync.Mutex
	policy BackoffPolicy
	data   map[string]failureState
	now    func() time.Time
}

func NewInMemoryLoginThrottle(policy BackoffPolicy) *InMemoryLoginThrottle {
	return &InMemoryLoginThrottle{
		policy: normalizeBackoffPolicy(policy),
		data:   make(map[string]failureState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *InMemoryLoginThrottle) Check(_ context.Context, email, ip string) (time.Duration, error) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(t.activeLocked(now, emailDimension(email)), t.activeLocked(now, ipDimension(ip))), nil
}

func (t *InMemoryLoginThrottle) RegisterFailure(_ context.Context, email, ip string) (time.Duration, error) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return max(t.bumpLocked(now, emailDimension(email)), t.bumpLocked(now, ipDimension(ip))), nil
}

func (t *InMemoryLoginThrottle) Reset(_ context.Context, email, ip string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, emailDimension(email))
	delete(t.data, ipDimension(ip))
	return nil
}

func (t *InMemoryLoginThrottle) bumpLocked(now time.Time, key string) time.Duration {
	st := t.data[key]
	if st.lastFailureAt.IsZero() || now.Sub(st.lastFailureAt) > t.policy.Window {
		st.count = 0
	}
	st.count++
	st.lastFailureAt = now
	delay := t.policy.delay(st.count)
	st.cooldownUntil = now.Add(delay)
	t.data[key] = st
	return delay
}

func (t *InMemoryLoginThrottle) activeLocked(now time.Time, key string) time.Duration {
	st, ok := t.data[key]
	if !ok {
		return 0
	}
	if now.Sub(st.lastFailureAt) > t.policy.Window {
		delete(t.data, key)
		return 0
	}
	if !now.Before(st.cooldownUntil) {
		return 0
	}
	return st.cooldownUntil.Sub(now)
}

func (p BackoffPolicy) delay(failures int) time.Duration {
	if failures <= p.FreeAttempts {
		return 0
	}
	d := time.Duration(float64(p.Base) * math.Pow(2, float64(failures-p.FreeAttempts-1)))
	if d <= 0 || d > p.Max {
		return p.Max
	}
	return d
}

func emailDimension(email string) string {
	v := normalizeEmail(email)
	if v == "" {
		v = "anonymous"
	}
	return "email:" + v
}

func ipDimension(ip string) string {
	v := strings.TrimSpace(strings.ToLower(ip))
	if v == "" {
		v = "unknown"
	}
	return "ip:" + v
}

func normalizeBackoffPolicy(p BackoffPolicy) BackoffPolicy {
	if p.FreeAttempts < 0 {
		p.FreeAttempts = 0
	}
	if p.Base <= 0 {
		p.Base = time.Second
	}
	if p.Max < p.Base {
		p.Max = 5 * time.Minute
	}
	if p.Window <= 0 {
		p.Window = 15 * time.Minute
	}
	return p
}
