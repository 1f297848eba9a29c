package velocity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func TestMemoryCounterCountsDistinctEvents(t *testing.T) {
	c := NewMemoryCounter()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Observe(ctx, "ip:1.2.3.4", fmt.Sprintf("req-%d", i), base, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	n, _ := c.Observe(ctx, "ip:5.6.7.8", "req-9", base, time.Minute)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCounterRepeatIsIdempotent(t *testing.T) {
	c := NewMemoryCounter()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	first, err := c.Observe(ctx, "ip", "req-1", base, time.Minute)
	require.NoError(t, err)
	_, _ = c.Observe(ctx, "ip", "req-2", base.Add(time.Second), time.Minute)

	// A retry of req-1 only sees events up to its own time.
	again, err := c.Observe(ctx, "ip", "req-1", base, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, int64(1), again)
}

func TestMemoryCounterSlidingWindow(t *testing.T) {
	c := NewMemoryCounter()
	now := base
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = c.Observe(ctx, "ip", "a", now, time.Minute)
	_, _ = c.Observe(ctx, "ip", "b", now.Add(30*time.Second), time.Minute)

	now = base.Add(61 * time.Second)
	n, _ := c.Observe(ctx, "ip", "c", now, time.Minute)
	assert.Equal(t, int64(2), n, "a has left the window, b has not")

	now = base.Add(5 * time.Minute)
	n, _ = c.Observe(ctx, "other", "d", now, time.Minute)
	assert.Equal(t, int64(1), n)
	assert.Len(t, c.events, 1, "stale keys are swept")
}

func TestMemoryCounterConcurrent(t *testing.T) {
	c := NewMemoryCounter()
	c.now = func() time.Time { return base }

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Observe(context.Background(), "k", fmt.Sprintf("req-%d", i%50), base, time.Minute)
		}()
	}
	wg.Wait()
	n, _ := c.Observe(context.Background(), "k", "last", base, time.Minute)
	assert.Equal(t, int64(51), n)
}

// TestRedisCounter_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisCounter_Integration(t *testing.T) {
	c := NewRedisCounter("localhost:6379", "", 0)
	defer c.Close()
	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	c.prefix = "trust:test:" + time.Now().Format("150405.000000") + ":"
	now := time.Now()

	n, err := c.Observe(ctx, "ip", "req-1", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Observe(ctx, "ip", "req-2", now.Add(time.Millisecond), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = c.Observe(ctx, "ip", "req-1", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
