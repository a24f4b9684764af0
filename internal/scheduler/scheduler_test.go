package scheduler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, tasks, delays, events int, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(Config{TaskCapacity: tasks, DelayCapacity: delays, EventCapacity: events}, opts...)
	require.NoError(t, err)
	return s
}

// advance ticks n times without running a pass.
func advance(s *Scheduler, n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

// counter returns a TaskFunc that counts its invocations.
func counter(n *int) TaskFunc {
	return func(any) { *n++ }
}

type recordingObserver struct {
	runs  []TaskRun
	fires []EventFire
}

func (o *recordingObserver) TaskRan(r TaskRun)      { o.runs = append(o.runs, r) }
func (o *recordingObserver) EventFired(f EventFire) { o.fires = append(o.fires, f) }

func TestNew_RejectsZeroCapacity(t *testing.T) {
	for _, cfg := range []Config{
		{TaskCapacity: 0, DelayCapacity: 1, EventCapacity: 1},
		{TaskCapacity: 1, DelayCapacity: 0, EventCapacity: 1},
		{TaskCapacity: 1, DelayCapacity: 1, EventCapacity: -1},
	} {
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidParameter, "%+v", cfg)
	}
}

func TestInit_ReturnsToPristineState(t *testing.T) {
	s := newTestScheduler(t, 4, 2, 2)
	var n int
	require.NoError(t, s.AddTask(1, "a", counter(&n), nil, 1))
	require.NoError(t, s.ArmDelay(7, 3))
	require.NoError(t, s.RegisterEvent(9, "e", func(any) {}, nil))
	advance(s, 5)

	s.Init()

	st := s.Stats()
	assert.Equal(t, uint32(0), st.Tick)
	assert.Zero(t, st.TaskCount)
	assert.Zero(t, st.EventCount)
	assert.Zero(t, st.DelayCount)
	assert.Empty(t, s.Tasks())
	assert.NoError(t, s.CheckPools())
}

func TestAddTask_InvalidParameters(t *testing.T) {
	s := newTestScheduler(t, 3, 1, 1)
	fn := func(any) {}

	for _, idx := range []int{-1, 3, 100} {
		err := s.AddTask(idx, "x", fn, nil, 1)
		assert.Equal(t, StatusInvalidParameter, StatusOf(err), "index %d", idx)
	}
	assert.Equal(t, StatusInvalidParameter, StatusOf(s.AddTask(0, "x", nil, nil, 1)))
	assert.Empty(t, s.Tasks())
}

func TestAddTask_OccupiedSlotIsRejected(t *testing.T) {
	s := newTestScheduler(t, 3, 1, 1)
	require.NoError(t, s.AddTask(1, "first", func(any) {}, nil, 5))

	err := s.AddTask(1, "second", func(any) {}, nil, 9)
	require.ErrorIs(t, err, ErrSlotInUse)
	assert.Equal(t, StatusError, StatusOf(err))

	info, err := s.Task(1)
	require.NoError(t, err)
	assert.Equal(t, "first", info.Name)
	assert.Equal(t, uint32(5), info.Period)
	assert.Equal(t, 1, s.Stats().TaskCount)
}

func TestDeleteTask_LeavesSlotZeroed(t *testing.T) {
	s := newTestScheduler(t, 4, 1, 1)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.AddTask(i, "t", func(any) {}, i, uint32(i+1)))
		require.NoError(t, s.SleepTask(i, 3))
		require.NoError(t, s.DeleteTask(i))
		assert.Equal(t, taskSlot{}, s.tasks[i], "slot %d", i)
	}
	assert.Zero(t, s.Stats().TaskCount)
	assert.Empty(t, s.Tasks())
}

func TestDeleteTask_EmptySlotIsOK(t *testing.T) {
	s := newTestScheduler(t, 2, 1, 1)
	assert.NoError(t, s.DeleteTask(0))
	assert.Zero(t, s.Stats().TaskCount)
	assert.Equal(t, StatusInvalidParameter, StatusOf(s.DeleteTask(2)))
}

func TestDeleteTask_SuspendedTaskKeepsCount(t *testing.T) {
	s := newTestScheduler(t, 3, 1, 1)
	require.NoError(t, s.AddTask(0, "a", func(any) {}, nil, 1))
	require.NoError(t, s.AddTask(1, "b", func(any) {}, nil, 1))
	require.NoError(t, s.SuspendTask(1))

	require.NoError(t, s.DeleteTask(0))
	require.NoError(t, s.DeleteTask(1))

	assert.Equal(t, 1, s.Stats().TaskCount)
	assert.Empty(t, s.Tasks())
}

func TestTaskOperations_OnEmptySlot(t *testing.T) {
	s := newTestScheduler(t, 2, 1, 1)

	assert.Equal(t, StatusNotInitialized, StatusOf(s.SuspendTask(0)))
	assert.Equal(t, StatusNotInitialized, StatusOf(s.ResumeTask(0)))
	assert.Equal(t, StatusNotInitialized, StatusOf(s.SleepTask(0, 4)))
	assert.Equal(t, StatusNotInitialized, StatusOf(s.WakeTask(0)))
	assert.Equal(t, StatusNotInitialized, StatusOf(s.ResetTask(0)))
	_, err := s.Task(0)
	assert.Equal(t, StatusNotInitialized, StatusOf(err))

	assert.Equal(t, StatusInvalidParameter, StatusOf(s.SuspendTask(-1)))
	assert.Equal(t, StatusInvalidParameter, StatusOf(s.WakeTask(2)))
}

func TestTaskPeriod_MeasuredFromAddTime(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int

	advance(s, 5)
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 3))

	for i := 0; i < 3; i++ {
		s.RunOnce()
		assert.Zero(t, n, "ran at tick %d", s.Now())
		s.Tick()
	}
	// tick 8
	s.RunOnce()
	assert.Equal(t, 1, n)

	info, err := s.Task(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), info.LastRun)
	assert.Equal(t, uint64(1), info.Runs)
}

func TestTaskPeriod_NoCatchUpAfterSkew(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 2))

	// Seven ticks pass before the loop gets around to a pass.
	advance(s, 7)
	s.RunOnce()
	s.RunOnce()
	assert.Equal(t, 1, n)

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 1, n, "next run is a full period after the late one")

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 2, n)
}

func TestTaskPeriodZero_RunsEveryPass(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "busy", counter(&n), nil, 0))

	s.RunOnce()
	s.RunOnce()
	s.RunOnce()
	assert.Equal(t, 3, n)
}

func TestTasks_RunInIndexOrder(t *testing.T) {
	obs := &recordingObserver{}
	s := newTestScheduler(t, 4, 1, 1, WithObserver(obs))

	var order []int
	record := func(v any) { order = append(order, v.(int)) }
	for _, idx := range []int{3, 0, 2, 1} {
		require.NoError(t, s.AddTask(idx, "t", record, idx, 1))
	}
	s.Tick()

	assert.Equal(t, 4, s.RunOnce())
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	require.Len(t, obs.runs, 4)
	assert.Equal(t, TaskRun{Index: 2, Name: "t", Tick: 1}, obs.runs[2])
}

func TestSuspendResumeTask(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 1))
	require.NoError(t, s.SuspendTask(0))

	advance(s, 3)
	s.RunOnce()
	assert.Zero(t, n)

	require.NoError(t, s.ResumeTask(0))
	require.NoError(t, s.ResumeTask(0))
	s.RunOnce()
	assert.Equal(t, 1, n)
}

func TestSleepTask(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 1))
	s.Tick()
	s.RunOnce()
	require.Equal(t, 1, n)

	require.NoError(t, s.SleepTask(0, 5))
	for i := 0; i < 4; i++ {
		s.Tick()
		s.RunOnce()
	}
	assert.Equal(t, 1, n, "still asleep at tick %d", s.Now())

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 2, n)

	info, err := s.Task(0)
	require.NoError(t, err)
	assert.False(t, info.Sleeping)
}

func TestSleepTask_ZeroTicksIsInvalid(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	require.NoError(t, s.AddTask(0, "p", func(any) {}, nil, 1))
	assert.Equal(t, StatusInvalidParameter, StatusOf(s.SleepTask(0, 0)))
}

func TestWakeTask_EndsSleepEarly(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 1))
	require.NoError(t, s.SleepTask(0, 100))

	advance(s, 2)
	s.RunOnce()
	assert.Zero(t, n)

	require.NoError(t, s.WakeTask(0))
	s.RunOnce()
	assert.Equal(t, 1, n)
}

func TestResetTask_ReanchorsPeriod(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "p", counter(&n), nil, 4))

	advance(s, 3)
	require.NoError(t, s.ResetTask(0))
	advance(s, 3)
	s.RunOnce()
	assert.Zero(t, n)

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 1, n)
}

func TestTaskPeriod_AcrossWraparound(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	s.tick.Store(math.MaxUint32 - 1)

	var n int
	require.NoError(t, s.AddTask(0, "wrap", counter(&n), nil, 4))

	advance(s, 3)
	require.Equal(t, uint32(1), s.Now())
	s.RunOnce()
	assert.Zero(t, n)

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 1, n)
}

func TestSleepTask_AcrossWraparound(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	s.tick.Store(math.MaxUint32)

	var n int
	require.NoError(t, s.AddTask(0, "wrap", counter(&n), nil, 1))
	require.NoError(t, s.SleepTask(0, 2))

	s.Tick()
	s.RunOnce()
	assert.Zero(t, n)

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 1, n)
}

func TestTaskCallback_MayDeleteItself(t *testing.T) {
	s := newTestScheduler(t, 2, 1, 1)
	require.NoError(t, s.AddTask(0, "once", func(any) {
		require.NoError(t, s.DeleteTask(0))
	}, nil, 1))

	s.Tick()
	assert.Equal(t, 1, s.RunOnce())
	assert.Equal(t, taskSlot{}, s.tasks[0])

	s.Tick()
	assert.Zero(t, s.RunOnce())
}

func TestTaskCallback_MayAddLaterTask(t *testing.T) {
	s := newTestScheduler(t, 2, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "spawner", func(any) {
		if err := s.AddTask(1, "child", counter(&n), nil, 0); err != nil {
			assert.ErrorIs(t, err, ErrSlotInUse)
		}
	}, nil, 1))

	s.Tick()
	s.RunOnce()
	assert.Equal(t, 1, n, "child at a higher index runs in the same pass")
}

func TestTaskCallback_PanicIsRecovered(t *testing.T) {
	s := newTestScheduler(t, 2, 1, 1)
	var n int
	require.NoError(t, s.AddTask(0, "boom", func(any) { panic("boom") }, nil, 1))
	require.NoError(t, s.AddTask(1, "after", counter(&n), nil, 1))

	s.Tick()
	assert.NotPanics(t, func() { s.RunOnce() })
	assert.Equal(t, 1, n)

	info, err := s.Task(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Runs)
}

func TestRunOnce_NestedCallIsNoop(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	nested := -1
	require.NoError(t, s.AddTask(0, "nest", func(any) {
		nested = s.RunOnce()
	}, nil, 1))

	s.Tick()
	assert.Equal(t, 1, s.RunOnce())
	assert.Zero(t, nested)
}

func TestUserdataIsPassedThrough(t *testing.T) {
	s := newTestScheduler(t, 1, 1, 1)
	type payload struct{ hits int }
	p := &payload{}
	require.NoError(t, s.AddTask(0, "u", func(v any) { v.(*payload).hits++ }, p, 1))

	advance(s, 2)
	s.RunOnce()
	assert.Equal(t, 1, p.hits)
}

func TestStats_TracksCurrentTask(t *testing.T) {
	s := newTestScheduler(t, 3, 2, 2)
	require.NoError(t, s.AddTask(2, "last", func(any) {}, nil, 1))
	require.NoError(t, s.ArmDelay(1, 10))

	s.Tick()
	s.RunOnce()

	st := s.Stats()
	assert.Equal(t, 2, st.CurrentTask)
	assert.Equal(t, 1, st.TaskCount)
	assert.Equal(t, 1, st.DelayCount)
	assert.Equal(t, 3, st.TaskCapacity)
	assert.Equal(t, 2, st.DelayCapacity)
	assert.Equal(t, 2, st.EventCapacity)
}
