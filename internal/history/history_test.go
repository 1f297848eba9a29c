package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeoutPassesThrough(t *testing.T) {
	var gotTiers []string
	inner := LookupFunc(func(_ context.Context, subject, engine string, tiers []string, _ time.Time) (int, error) {
		gotTiers = tiers
		assert.Equal(t, "user-1", subject)
		assert.Equal(t, "task_approval", engine)
		return 4, nil
	})

	n, err := WithTimeout(inner, time.Second).CountOutcomes(context.Background(), "user-1", "task_approval", []string{"rejected"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"rejected"}, gotTiers)
}

func TestWithTimeoutWrapsErrors(t *testing.T) {
	inner := LookupFunc(func(context.Context, string, string, []string, time.Time) (int, error) {
		return 0, errors.New("connection refused")
	})

	_, err := WithTimeout(inner, time.Second).CountOutcomes(context.Background(), "u", "e", nil, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithTimeoutRecoversPanics(t *testing.T) {
	inner := LookupFunc(func(context.Context, string, string, []string, time.Time) (int, error) {
		var counts map[string]int
		counts["u"]++
		return counts["u"], nil
	})

	n, err := WithTimeout(inner, time.Second).CountOutcomes(context.Background(), "u", "e", nil, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, 0, n)
}

func TestWithTimeoutAbandonsSlowLookups(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	inner := LookupFunc(func(context.Context, string, string, []string, time.Time) (int, error) {
		<-release // ignores ctx on purpose
		return 9, nil
	})

	start := time.Now()
	_, err := WithTimeout(inner, 20*time.Millisecond).CountOutcomes(context.Background(), "u", "e", nil, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutHonorsParentCancel(t *testing.T) {
	inner := LookupFunc(func(ctx context.Context, _, _ string, _ []string, _ time.Time) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(inner, time.Minute).CountOutcomes(ctx, "u", "e", nil, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
