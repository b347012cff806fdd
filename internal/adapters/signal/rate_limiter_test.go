package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per connection")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("a"), "window slid past the old attempts")

	rl.Forget("a")
	rl.mu.Lock()
	_, ok := rl.history["a"]
	rl.mu.Unlock()
	assert.False(t, ok)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("a"))
	}
}
