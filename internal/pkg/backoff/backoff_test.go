//go:build unit

package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	base := 10 * time.Millisecond

	t.Run("grows with attempt", func(t *testing.T) {
		for attempt := 0; attempt < 4; attempt++ {
			floor := time.Duration(1<<attempt) * base
			got := Exponential(attempt, base, 0)
			assert.GreaterOrEqual(t, got, floor)
			assert.LessOrEqual(t, got, floor+floor/5)
		}
	})

	t.Run("caps at max", func(t *testing.T) {
		got := Exponential(10, base, 50*time.Millisecond)
		assert.GreaterOrEqual(t, got, 50*time.Millisecond)
		assert.LessOrEqual(t, got, 60*time.Millisecond)
	})

	t.Run("zero base yields zero", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), Exponential(3, 0, 0))
	})
}

func TestSleep_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
}
