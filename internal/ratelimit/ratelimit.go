// Package ratelimit throttles repeated sign-in attempts.
//
// FIXED WINDOW:
// Each key (an email for the identity provider, an IP for the login route)
// gets a bucket. The first attempt opens a window; attempts inside the
// window are counted, and once the count passes maxAttempts Allow returns
// false until the window ends. A successful sign-in calls Reset.
//
// State is in memory. The service runs as a single instance, so no shared
// store is needed. A background goroutine drops stale buckets; Close stops it.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter counts attempts per key inside a fixed window.
//
//	limiter := ratelimit.New(5, 2*time.Minute)
//	defer limiter.Close()
//	if !limiter.Allow(email) { return too-many-requests }
//	limiter.Reset(email) // after success
type Limiter struct {
	mu          sync.RWMutex
	buckets     map[string]*bucket
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New creates a Limiter and starts its cleanup goroutine.
func New(maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 2 * time.Minute
	}
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow records an attempt for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= l.maxAttempts
}

// Blocked reports whether key is over the limit, without recording an attempt.
func (l *Limiter) Blocked(key string) bool {
	key = normalizeKey(key)

	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.buckets[key]
	if !ok || l.now().Sub(b.windowStart) > l.window {
		return false
	}
	return b.count >= l.maxAttempts
}

// Reset forgets key, typically after a successful sign-in.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, normalizeKey(key))
}

// RetryAfterSeconds is the value for a Retry-After header. Zero when key
// has no open window.
func (l *Limiter) RetryAfterSeconds(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.buckets[normalizeKey(key)]
	if !ok {
		return 0
	}
	remaining := l.window - l.now().Sub(b.windowStart)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > l.window {
			delete(l.buckets, key)
		}
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ExtractIP returns the client address: the first X-Forwarded-For entry,
// then X-Real-IP, then the host part of RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatRetryMessage renders a wait in seconds for humans: "2 minute(s)".
func FormatRetryMessage(seconds int) string {
	if seconds >= 60 {
		return fmt.Sprintf("%d minute(s)", seconds/60)
	}
	return fmt.Sprintf("%d second(s)", seconds)
}
