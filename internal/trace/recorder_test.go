package trace

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
	"github.com/fentz26/tickos/internal/store"
)

type memSink struct {
	mu      sync.Mutex
	batches [][]models.Dispatch
	err     error
}

func (m *memSink) WriteDispatches(_ context.Context, batch []models.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]models.Dispatch(nil), batch...))
	return nil
}

func (m *memSink) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestRecorder_RecentNewestFirst(t *testing.T) {
	r := NewRecorder("s1", nil, 3)
	for i := 0; i < 5; i++ {
		r.TaskRan(scheduler.TaskRun{Index: i, Name: "t", Tick: uint32(i)})
	}

	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint32(4), recent[0].Tick)
	assert.Equal(t, uint32(2), recent[2].Tick)
	assert.Equal(t, "s1", recent[0].SessionID)

	assert.Len(t, r.Recent(2), 2)
	assert.Equal(t, uint64(2), r.Dropped(), "nobody drains the channel")
}

func TestRecorder_RecentBeforeWrap(t *testing.T) {
	r := NewRecorder("s1", nil, 8)
	r.EventFired(scheduler.EventFire{ID: 3, Name: "e", Tick: 9})

	recent := r.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, models.DispatchEvent, recent[0].Kind)
	assert.Equal(t, 3, recent[0].Ref)
}

func TestRecorder_FlushesOnCancel(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder("s1", sink, 16, WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 5; i++ {
		r.TaskRan(scheduler.TaskRun{Index: 0, Tick: uint32(i)})
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 5, sink.total())
	assert.Equal(t, uint64(5), r.Written())
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder("s1", sink, 16, WithFlushInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.EventFired(scheduler.EventFire{ID: 1, Tick: 1})
	require.Eventually(t, func() bool { return sink.total() == 1 }, 2*time.Second, time.Millisecond)
}

func TestRecorder_SinkErrorIsLogged(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	r := NewRecorder("s1", sink, 4, WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	r.TaskRan(scheduler.TaskRun{Index: 1})
	cancel()

	require.NoError(t, <-done)
	assert.Zero(t, r.Written())
}

func TestRecorder_WithSchedulerAndStore(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.StartSession(1000, 2, 1, 1)
	require.NoError(t, err)

	rec := NewRecorder(sess.ID, st, 64, WithFlushInterval(time.Hour))
	s, err := scheduler.New(scheduler.Config{TaskCapacity: 2, DelayCapacity: 1, EventCapacity: 1},
		scheduler.WithObserver(rec))
	require.NoError(t, err)
	require.NoError(t, s.AddTask(0, "hb", func(any) {}, nil, 1))
	require.NoError(t, s.RegisterEvent(7, "btn", func(any) {}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	for i := 0; i < 3; i++ {
		s.Tick()
		s.RunOnce()
	}
	require.NoError(t, s.TriggerEvent(7))
	s.RunOnce()
	cancel()
	require.NoError(t, <-done)

	counts, err := st.CountDispatches(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.DispatchTask])
	assert.Equal(t, 1, counts[models.DispatchEvent])
}
