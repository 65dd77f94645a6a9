package middleware

import (
	"context"
	"sync"
	"time"
)

type windowCount struct {
	hits    int
	started time.Time
}

// localFixedWindowLimiter counts hits per key in process memory. Stale
// windows are swept at most once per window length.
type localFixedWindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*windowCount
	nextSweep time.Time
	now       func() time.Time
}

func NewLocalFixedWindowLimiter() Limiter {
	return &localFixedWindowLimiter{
		windows: make(map[string]*windowCount),
		now:     time.Now,
	}
}

func (l *localFixedWindowLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now, window)

	w, ok := l.windows[key]
	if !ok || now.Sub(w.started) >= window {
		l.windows[key] = &windowCount{hits: 1, started: now}
		return true, 0, nil
	}
	if w.hits >= limit {
		return false, max(window-now.Sub(w.started), 0), nil
	}
	w.hits++
	return true, 0, nil
}

func (l *localFixedWindowLimiter) sweep(now time.Time, window time.Duration) {
	if now.Before(l.nextSweep) {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.started) >= window {
			delete(l.windows, k)
		}
	}
	l.nextSweep = now.Add(window)
}
