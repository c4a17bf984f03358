package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter limits requests per client over a sliding minute and hour.
// A zero limit disables that window.
type RateLimiter struct {
	mu sync.Mutex

	perMinute int
	perHour   int
	now       func() time.Time

	// Request times per client within the last hour, oldest first.
	clients map[string][]time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
		clients:   make(map[string][]time.Time),
	}
}

// Allow records a request from client, or returns a *RateLimitError when a
// window is full. Rejected requests are not recorded.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	times := prune(rl.clients[client], now.Add(-time.Hour))

	if rl.perMinute > 0 {
		recent := prune(times, now.Add(-time.Minute))
		if len(recent) >= rl.perMinute {
			rl.clients[client] = times
			return &RateLimitError{Window: "minute", Limit: rl.perMinute, RetryAfter: recent[0].Add(time.Minute).Sub(now)}
		}
	}
	if rl.perHour > 0 && len(times) >= rl.perHour {
		rl.clients[client] = times
		return &RateLimitError{Window: "hour", Limit: rl.perHour, RetryAfter: times[0].Add(time.Hour).Sub(now)}
	}

	rl.clients[client] = append(times, now)
	return nil
}

// Usage returns the number of requests recorded for client in the last hour.
func (rl *RateLimiter) Usage(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(prune(rl.clients[client], rl.now().Add(-time.Hour)))
}

// prune drops times at or before cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter.Round(time.Second))
}
