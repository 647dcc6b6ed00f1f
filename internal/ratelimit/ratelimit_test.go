package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rps float64, burst int) (*MemoryRateLimiter, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewMemoryRateLimiter(&Config{RequestsPerSecond: rps, Burst: burst, IdleTTL: time.Minute})
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestMemoryRateLimiter_BurstThenRefill(t *testing.T) {
	rl, now := newTestLimiter(1, 2)
	defer rl.Close()

	ok, info := rl.Allow("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, 1, info.Remaining)

	ok, _ = rl.Allow("1.2.3.4")
	require.True(t, ok)

	ok, info = rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Second, info.RetryAfter)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "clients are limited independently")

	*now = now.Add(time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
}

func TestMemoryRateLimiter_CleanupForgetsIdleClients(t *testing.T) {
	rl, now := newTestLimiter(1, 1)
	defer rl.Close()

	rl.Allow("a")
	*now = now.Add(2 * time.Minute)
	rl.Allow("b")
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", GetClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", GetClientIP(r))

	r.Header.Set("X-Forwarded-For", " 192.168.1.9 , 10.0.0.3")
	assert.Equal(t, "192.168.1.9", GetClientIP(r))
}
