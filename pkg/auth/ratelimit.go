package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/hawkgate/pkg/observability"
)

// RateLimiter checks whether a request by the given principal should be
// allowed.
type RateLimiter interface {
	Allow(ctx context.Context, creds *Credentials) error
}

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per user in memory.
type InProcessLimiter struct {
	overrides  map[string]int
	defaultRPM int
	now        func() time.Time
	mu         sync.Mutex
	counters   map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a rate limiter allowing defaultRPM requests
// per minute per user, with per-user overrides. A limit of 0 disables
// limiting for that user.
func NewInProcessLimiter(overrides map[string]int, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		overrides:  overrides,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, creds *Credentials) error {
	key := principal(creds)

	rpm := l.defaultRPM
	if v, ok := l.overrides[key]; ok {
		rpm = v
	}
	if rpm <= 0 {
		return nil // no limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// RateLimit returns middleware enforcing limiter for requests that passed a
// guard. Requests without credentials in their context are passed through.
func RateLimit(limiter RateLimiter, presenter ErrorPresenter) func(http.Handler) http.Handler {
	if presenter == nil {
		presenter = JSONPresenter
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromContext(r.Context())
			if limiter == nil || creds == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := limiter.Allow(r.Context(), creds); err != nil {
				slog.Warn("rate limit exceeded",
					"id", creds.ID,
					"user", principal(creds),
				)
				observability.RateLimitRejectedTotal.WithLabelValues(principal(creds)).Inc()
				presenter.Present(w, http.StatusTooManyRequests, "Too Many Requests", &ErrorPayload{
					StatusCode: http.StatusTooManyRequests,
					Error:      "Too Many Requests",
					Message:    err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(creds *Credentials) string {
	if creds.User != "" {
		return creds.User
	}
	return creds.ID
}
