package ticksource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	n atomic.Uint64
}

func (c *countingTicker) Tick() { c.n.Add(1) }

func TestSource_DeliversTicks(t *testing.T) {
	target := &countingTicker{}
	src := New(time.Millisecond, target)

	require.NoError(t, src.Start(context.Background()))
	require.Eventually(t, func() bool { return target.n.Load() >= 20 }, 2*time.Second, time.Millisecond)
	src.Stop()

	assert.Equal(t, target.n.Load(), src.Count())

	// No ticks after Stop returns.
	stopped := target.n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, target.n.Load())
}

func TestSource_StartTwice(t *testing.T) {
	src := New(time.Millisecond, &countingTicker{})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	assert.ErrorIs(t, src.Start(context.Background()), ErrRunning)
}

func TestSource_StopIsIdempotent(t *testing.T) {
	src := New(time.Millisecond, &countingTicker{})
	src.Stop()
	require.NoError(t, src.Start(context.Background()))
	src.Stop()
	src.Stop()

	// Restartable after Stop.
	require.NoError(t, src.Start(context.Background()))
	src.Stop()
}

func TestSource_StopsOnContextCancel(t *testing.T) {
	target := &countingTicker{}
	src := New(time.Millisecond, target)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.Eventually(t, func() bool { return target.n.Load() > 0 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSource_CatchUpIsBounded(t *testing.T) {
	target := &countingTicker{}
	src := New(time.Millisecond, target, WithMaxCatchUp(5))

	// A clock that jumps an hour ahead on every read after the first.
	base := time.Now()
	var calls atomic.Int64
	src.now = func() time.Time {
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(time.Hour)
	}

	require.NoError(t, src.Start(context.Background()))
	require.Eventually(t, func() bool { return target.n.Load() >= 5 }, 2*time.Second, time.Millisecond)
	src.Stop()

	// The first wakeup owes an hour of ticks and replays five of them; later
	// wakeups see a frozen clock and deliver one tick each.
	assert.Equal(t, uint64(time.Hour/time.Millisecond)-5, src.Skipped())
	assert.GreaterOrEqual(t, src.Count(), uint64(5))
}

func TestNew_NonPositivePeriod(t *testing.T) {
	src := New(0, &countingTicker{})
	assert.Equal(t, time.Millisecond, src.Period())
}
