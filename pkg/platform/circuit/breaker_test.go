package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker(t *testing.T) {
	now := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	newBreaker := func() *Breaker {
		return New("cbe-direct",
			WithFailureThreshold(2),
			WithSuccessThreshold(2),
			WithCooldown(time.Minute),
			WithClock(func() time.Time { return now }),
		)
	}

	t.Run("opens after consecutive failures", func(t *testing.T) {
		b := newBreaker()
		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback)
		assert.False(t, change.Opened)

		useFallback, change = b.RecordFailure()
		assert.True(t, useFallback)
		assert.True(t, change.Opened)
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, "open", b.State().String())
		assert.Equal(t, now, b.OpenedAt())
	})

	t.Run("success resets failure count while closed", func(t *testing.T) {
		b := newBreaker()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.False(t, b.IsOpen())
	})

	t.Run("open circuit allows one probe per cooldown", func(t *testing.T) {
		b := newBreaker()
		b.RecordFailure()
		b.RecordFailure()
		require.True(t, b.IsOpen())

		assert.False(t, b.Allow())
		now = now.Add(time.Minute)
		assert.True(t, b.Allow())
		assert.False(t, b.Allow(), "second probe within the same cooldown")
	})

	t.Run("closes after consecutive successes", func(t *testing.T) {
		b := newBreaker()
		b.RecordFailure()
		b.RecordFailure()

		usePrimary, change := b.RecordSuccess()
		assert.False(t, usePrimary)
		assert.False(t, change.Closed)

		usePrimary, change = b.RecordSuccess()
		assert.True(t, usePrimary)
		assert.True(t, change.Closed)
		assert.True(t, b.Allow())
	})

	t.Run("reset", func(t *testing.T) {
		b := newBreaker()
		b.RecordFailure()
		b.RecordFailure()
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.OpenedAt().IsZero())
		assert.Equal(t, "cbe-direct", b.Name())
	})
}
