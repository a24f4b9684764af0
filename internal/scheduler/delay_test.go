package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArmDelay_ExpiresOnNthTick(t *testing.T) {
	s := newTestScheduler(t, 1, 2, 1)
	require.NoError(t, s.ArmDelay(7, 4))

	for i := 0; i < 3; i++ {
		s.Tick()
		assert.False(t, s.DelayDone(7), "tick %d", s.Now())
	}
	s.Tick()
	assert.True(t, s.DelayDone(7))

	// Expired stays expired.
	advance(s, 5)
	assert.True(t, s.DelayDone(7))
	require.Len(t, s.Delays(), 1)
	assert.Equal(t, DelayInfo{Key: 7, Remaining: 0, Expired: true}, s.Delays()[0])
}

func TestArmDelay_ZeroTicksIsInvalid(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	assert.Equal(t, StatusInvalidParameter, StatusOf(s.ArmDelay(1, 0)))
	assert.Empty(t, s.Delays())
}

func TestArmDelay_RearmRestartsInPlace(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	require.NoError(t, s.ArmDelay(1, 2))
	advance(s, 2)
	require.True(t, s.DelayDone(1))

	// Capacity is 1; re-arming must reuse the entry.
	require.NoError(t, s.ArmDelay(1, 3))
	assert.False(t, s.DelayDone(1))
	advance(s, 3)
	assert.True(t, s.DelayDone(1))
}

func TestArmDelay_PoolExhausted(t *testing.T) {
	s := newTestScheduler(t, 1, 2, 1)
	require.NoError(t, s.ArmDelay(1, 5))
	require.NoError(t, s.ArmDelay(2, 5))

	err := s.ArmDelay(3, 5)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StatusBusy, StatusOf(err))

	require.NoError(t, s.RemoveDelay(1))
	require.NoError(t, s.ArmDelay(3, 5))
	assert.NoError(t, s.CheckPools())
}

func TestRemoveDelay(t *testing.T) {
	s := newTestScheduler(t, 1, 2, 1)
	require.NoError(t, s.ArmDelay(9, 1))
	assert.True(t, s.DelayActive(9))
	s.Tick()
	require.True(t, s.DelayDone(9))
	assert.True(t, s.DelayActive(9))

	require.NoError(t, s.RemoveDelay(9))
	assert.False(t, s.DelayDone(9))
	assert.False(t, s.DelayActive(9))
	assert.Empty(t, s.Delays())

	assert.NoError(t, s.RemoveDelay(9))
	assert.NoError(t, s.RemoveDelay(1234))
}

func TestDelayDone_UnknownKey(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	assert.False(t, s.DelayDone(0))
}

func TestDelays_IndependentCountdowns(t *testing.T) {
	s := newTestScheduler(t, 1, 3, 1)
	require.NoError(t, s.ArmDelay(1, 1))
	require.NoError(t, s.ArmDelay(2, 3))

	s.Tick()
	assert.True(t, s.DelayDone(1))
	assert.False(t, s.DelayDone(2))

	advance(s, 2)
	assert.True(t, s.DelayDone(2))
}

func TestDelay_PolledFromTask(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var done []uint32
	require.NoError(t, s.ArmDelay(5, 3))
	require.NoError(t, s.AddTask(0, "poller", func(any) {
		if s.DelayDone(5) {
			done = append(done, s.Now())
			require.NoError(t, s.RemoveDelay(5))
		}
	}, nil, 1))

	for i := 0; i < 6; i++ {
		s.Tick()
		s.RunOnce()
	}
	assert.Equal(t, []uint32{3}, done)
	assert.Empty(t, s.Delays())
}
