package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(perMinute, perHour int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl, _ := newTestLimiter(0, 0)
	for range 100 {
		require.NoError(t, rl.Allow("a"))
	}
	assert.Equal(t, 100, rl.Usage("a"))
}

func TestRateLimiter_PerMinute(t *testing.T) {
	rl, clock := newTestLimiter(2, 0)

	require.NoError(t, rl.Allow("a"))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.Allow("a"))

	err := rl.Allow("a")
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Window)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 50*time.Second, rle.RetryAfter)

	assert.NoError(t, rl.Allow("b"), "clients are tracked separately")

	clock.advance(51 * time.Second)
	assert.NoError(t, rl.Allow("a"), "the oldest request left the window")
}

func TestRateLimiter_PerHour(t *testing.T) {
	rl, clock := newTestLimiter(0, 3)
	for range 3 {
		require.NoError(t, rl.Allow("a"))
		clock.advance(5 * time.Minute)
	}

	err := rl.Allow("a")
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Window)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)
	assert.Equal(t, 3, rl.Usage("a"), "rejections are not recorded")

	clock.advance(46 * time.Minute)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Window: "minute", Limit: 5, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, "rate limit exceeded for minute (limit: 5, retry after: 2s)", err.Error())
}
